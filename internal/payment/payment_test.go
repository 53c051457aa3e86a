package payment_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vwigmore/cloudomate/internal/daemon"
	"github.com/vwigmore/cloudomate/internal/daemon/daemontest"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
	"github.com/vwigmore/cloudomate/internal/payment"
	"github.com/vwigmore/cloudomate/lib/fees"
)

type fixedFee struct {
	fee   btcutil.Amount
	err   error
	tiers []string
}

func (f *fixedFee) EstimateNetworkFee(_ context.Context, tier string) (btcutil.Amount, error) {
	f.tiers = append(f.tiers, tier)
	return f.fee, f.err
}

type fixedRate struct {
	coin string
	err  error
}

func (f fixedRate) Convert(_ context.Context, amount decimal.Decimal, currency string) (*decimal.Decimal, error) {
	if currency == "" {
		return nil, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	d := decimal.RequireFromString(f.coin)
	return &d, nil
}

type mempool struct {
	seen []string
	ok   bool
	err  error
}

func (m *mempool) InMempool(_ context.Context, txid string) (bool, error) {
	m.seen = append(m.seen, txid)
	return m.ok, m.err
}

func session(t *testing.T, fake *daemontest.Runner, walletPath string) *daemon.Session {
	t.Helper()
	ctx := context.Background()
	s, err := daemon.Acquire(ctx, fake, fake.Options(walletPath))
	require.NoError(t, err)
	t.Cleanup(func() { s.Release(ctx) })
	return s
}

func rawTx(t *testing.T) (string, chainhash.Hash) {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	prev := chainhash.DoubleHashH([]byte("funding"))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{0x51}, nil))
	tx.AddTxOut(wire.NewTxOut(3000000, []byte{0x00, 0x14, 0xaa, 0xbb}))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return hex.EncodeToString(buf.Bytes()), tx.TxHash()
}

func amount(a btcutil.Amount) *btcutil.Amount {
	return &a
}

func TestPayInsufficientFundsNeverBuilds(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		amount  btcutil.Amount
		fee     *btcutil.Amount
	}{
		{"empty wallet", `{}`, 1, nil},
		{"fee tips over", `{"confirmed": "0.03"}`, 3000000, amount(1)},
		{"unconfirmed counted", `{"confirmed": "0.01", "unconfirmed": "0.01"}`, 2000000, amount(100)},
		{"large spend", `{"confirmed": "0.05"}`, 5000001, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := daemontest.New(true)
			fake.Respond("getbalance", tt.balance)
			s := session(t, fake, "")

			out, err := payment.New(payment.Config{}, payment.Deps{}).Pay(context.Background(), s, "addr", tt.amount, tt.fee)
			require.NoError(t, err)
			assert.Equal(t, payment.StatusInsufficientFunds, out.Status)
			assert.Less(t, int64(out.Available), int64(out.Required))
			assert.Nil(t, out.Transaction)
			assert.Empty(t, fake.CallsTo("payto"))
			assert.Empty(t, fake.CallsTo("broadcast"))
		})
	}
}

func TestPayScenario(t *testing.T) {
	fake := daemontest.New(false)
	fake.Respond("getbalance", `{"confirmed": "0.05"}`)
	fake.Respond("payto", `{"hex": "0100abcd", "complete": true}`)
	fake.Respond("broadcast", `["true", "abc123"]`)
	s := session(t, fake, "")

	out, err := payment.New(payment.Config{}, payment.Deps{}).Pay(context.Background(), s, "addr", 3000000, amount(100000))
	require.NoError(t, err)

	assert.Equal(t, payment.StatusBroadcast, out.Status)
	assert.True(t, out.Succeeded())
	assert.Equal(t, btcutil.Amount(3100000), out.Required)
	assert.Equal(t, btcutil.Amount(5000000), out.Available)
	require.Equal(t, [][]string{{"payto", "addr", "0.03", "-f", "0.001"}}, fake.CallsTo("payto"))
	require.Equal(t, [][]string{{"broadcast", "0100abcd"}}, fake.CallsTo("broadcast"))

	require.NotNil(t, out.Transaction)
	assert.Equal(t, "0100abcd", out.Transaction.RawHex)
	assert.True(t, out.Transaction.BroadcastSucceeded)
	assert.Equal(t, "abc123", out.Transaction.Message)
	assert.Empty(t, out.TxID) // not a decodable transaction
}

func TestPayWithoutFeeLetsDaemonChoose(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": 0.03}`)
	fake.Respond("payto", `{"hex": "00"}`)
	fake.Respond("broadcast", `[true, "hash"]`)
	s := session(t, fake, "")

	// Balance exactly equal to the amount passes when no fee is given.
	out, err := payment.New(payment.Config{}, payment.Deps{}).Pay(context.Background(), s, "addr", 3000000, nil)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusBroadcast, out.Status)
	assert.Equal(t, btcutil.Amount(0), out.Fee)
	assert.Equal(t, [][]string{{"payto", "addr", "0.03"}}, fake.CallsTo("payto"))
}

func TestPayRejectedKeepsRawHex(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "1"}`)
	fake.Respond("payto", `{"hex": "deadbeef"}`)
	fake.Respond("broadcast", `["false", "insufficient fee"]`)
	s := session(t, fake, "")

	out, err := payment.New(payment.Config{}, payment.Deps{}).Pay(context.Background(), s, "addr", 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRejected, out.Status)
	assert.False(t, out.Succeeded())
	require.NotNil(t, out.Transaction)
	assert.Equal(t, "deadbeef", out.Transaction.RawHex)
	assert.False(t, out.Transaction.BroadcastSucceeded)
	assert.Equal(t, "insufficient fee", out.Transaction.Message)
}

func TestPayMalformedBroadcastKeepsRawHex(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "1"}`)
	fake.Respond("payto", `{"hex": "deadbeef"}`)
	fake.Respond("broadcast", `["true"]`)
	s := session(t, fake, "")

	out, err := payment.New(payment.Config{}, payment.Deps{}).Pay(context.Background(), s, "addr", 1000, nil)
	assert.ErrorIs(t, err, daemon.ErrMalformedResponse)
	require.NotNil(t, out)
	assert.Equal(t, "deadbeef", out.Transaction.RawHex)
}

func TestPayMalformedBroadcastIsRecorded(t *testing.T) {
	ledger, err := walletstatedb.InitSQLiteDB(filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	defer ledger.Close()

	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "1"}`)
	fake.Respond("payto", `{"hex": "deadbeef"}`)
	fake.Respond("broadcast", `["true"]`)
	s := session(t, fake, "")

	svc := payment.New(payment.Config{}, payment.Deps{Ledger: ledger})
	out, err := svc.Pay(context.Background(), s, "addr", 1000, nil)
	assert.ErrorIs(t, err, daemon.ErrMalformedResponse)
	require.NotNil(t, out)
	assert.Equal(t, payment.StatusBroadcastUnknown, out.Status)
	assert.NotZero(t, out.LedgerID)

	payments, err := ledger.ListPayments(0)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, walletstatedb.StatusBroadcastUnknown, payments[0].Status)
	assert.Equal(t, "deadbeef", payments[0].RawTx)
}

func TestPayExplicitZeroFee(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "0.00001"}`)
	fake.Respond("payto", `{"hex": "00"}`)
	fake.Respond("broadcast", `["true", "abc123"]`)
	s := session(t, fake, "")

	svc := payment.New(payment.Config{}, payment.Deps{})
	out, err := svc.Pay(context.Background(), s, "addr", 1000, amount(0))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusBroadcast, out.Status)
	assert.Equal(t, [][]string{{"payto", "addr", "0.00001", "-f", "0"}}, fake.CallsTo("payto"))

	_, err = svc.Pay(context.Background(), s, "addr", 1000, amount(-1))
	assert.ErrorIs(t, err, payment.ErrInvalidAmount)
}

func TestPayCreateTransactionFails(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "1"}`)
	fake.Fail("payto", 1, "Insufficient funds")
	s := session(t, fake, "")

	out, err := payment.New(payment.Config{}, payment.Deps{}).Pay(context.Background(), s, "addr", 1000, nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, daemon.ErrCommandFailed)
	assert.Empty(t, fake.CallsTo("broadcast"))
}

func TestPayInvalidAmount(t *testing.T) {
	fake := daemontest.New(true)
	s := session(t, fake, "")
	svc := payment.New(payment.Config{}, payment.Deps{})

	_, err := svc.Pay(context.Background(), s, "addr", 0, nil)
	assert.ErrorIs(t, err, payment.ErrInvalidAmount)

	_, err = svc.PayInvoice(context.Background(), s, payment.Invoice{Address: "addr", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, payment.ErrInvalidAmount)
	assert.Empty(t, fake.CallsTo("getbalance"))
}

func TestPayWithAutoFee(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "0.05"}`)
	fake.Respond("payto", `{"hex": "00"}`)
	fake.Respond("broadcast", `["true", "hash"]`)
	s := session(t, fake, "")

	est := &fixedFee{fee: 11300}
	svc := payment.New(payment.Config{GatewayFee: 10000, FeeTier: fees.HourFee}, payment.Deps{Fees: est})

	out, err := svc.PayWithAutoFee(context.Background(), s, "addr", 3000000)
	require.NoError(t, err)

	assert.Equal(t, []string{fees.HourFee}, est.tiers)
	assert.Equal(t, payment.StatusBroadcast, out.Status)
	assert.Equal(t, btcutil.Amount(3000000+11300+10000), out.Required)
	assert.Equal(t, btcutil.Amount(11300), out.Fee)
	assert.Equal(t, btcutil.Amount(10000), out.GatewayFee)
	assert.Equal(t, [][]string{{"payto", "addr", "0.0301", "-f", "0.000113"}}, fake.CallsTo("payto"))
}

func TestPayWithAutoFeeCountsBothFees(t *testing.T) {
	fake := daemontest.New(true)
	// Covers the amount and the network fee but not the gateway fee.
	fake.Respond("getbalance", `{"confirmed": "0.030113"}`)
	s := session(t, fake, "")

	svc := payment.New(payment.Config{GatewayFee: 1}, payment.Deps{Fees: &fixedFee{fee: 11300}})

	out, err := svc.PayWithAutoFee(context.Background(), s, "addr", 3000000)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInsufficientFunds, out.Status)
	assert.Empty(t, fake.CallsTo("payto"))
}

func TestPayWithAutoFeeEstimateUnavailable(t *testing.T) {
	fake := daemontest.New(true)
	s := session(t, fake, "")

	svc := payment.New(payment.Config{}, payment.Deps{Fees: &fixedFee{err: fees.ErrRateUnavailable}})

	_, err := svc.PayWithAutoFee(context.Background(), s, "addr", 3000000)
	assert.ErrorIs(t, err, fees.ErrRateUnavailable)
	assert.Empty(t, fake.CallsTo("payto"))
}

func TestPayInvoice(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		currency string
		want     string
	}{
		{"fiat", "9.99", "USD", "0.00024976"}, // 24975 sat + 1 sat gateway fee
		{"coin", "0.001", "", "0.00100001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := daemontest.New(true)
			fake.Respond("getbalance", `{"confirmed": "1"}`)
			fake.Respond("payto", `{"hex": "00"}`)
			fake.Respond("broadcast", `["true", "hash"]`)
			s := session(t, fake, "")

			svc := payment.New(payment.Config{GatewayFee: 1}, payment.Deps{
				Fees:  &fixedFee{fee: 226},
				Rates: fixedRate{coin: "0.00024975"},
			})

			out, err := svc.PayInvoice(context.Background(), s, payment.Invoice{
				Address:  "addr",
				Price:    decimal.RequireFromString(tt.price),
				Currency: tt.currency,
			})
			require.NoError(t, err)
			assert.Equal(t, payment.StatusBroadcast, out.Status)
			assert.Equal(t, [][]string{{"payto", "addr", tt.want, "-f", "0.00000226"}}, fake.CallsTo("payto"))
		})
	}
}

func TestPayInvoiceRateUnavailable(t *testing.T) {
	fake := daemontest.New(true)
	s := session(t, fake, "")

	svc := payment.New(payment.Config{}, payment.Deps{
		Fees:  &fixedFee{fee: 226},
		Rates: fixedRate{err: errors.New("both sources down")},
	})

	_, err := svc.PayInvoice(context.Background(), s, payment.Invoice{
		Address:  "addr",
		Price:    decimal.NewFromInt(5),
		Currency: "EUR",
	})
	assert.Error(t, err)
	assert.Empty(t, fake.CallsTo("getbalance"))
}

func TestEmptyWallet(t *testing.T) {
	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "0.02", "unconfirmed": "0.005"}`)
	fake.Respond("payto", `{"hex": "00"}`)
	fake.Respond("broadcast", `["true", "hash"]`)
	s := session(t, fake, "")

	out, err := payment.New(payment.Config{}, payment.Deps{}).EmptyWallet(context.Background(), s, "addr")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusBroadcast, out.Status)
	assert.True(t, out.Sweep)
	assert.Equal(t, btcutil.Amount(2500000), out.Amount)
	assert.Equal(t, [][]string{{"payto", "addr", "!"}}, fake.CallsTo("payto"))
}

func TestEmptyWalletAlreadyEmpty(t *testing.T) {
	for _, reply := range []string{`{}`, `{"confirmed": "0", "unconfirmed": "0.0"}`} {
		fake := daemontest.New(true)
		fake.Respond("getbalance", reply)
		s := session(t, fake, "")

		out, err := payment.New(payment.Config{}, payment.Deps{}).EmptyWallet(context.Background(), s, "addr")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusAlreadyEmpty, out.Status, reply)
		assert.Empty(t, fake.CallsTo("payto"))
	}
}

func TestPaymentsAreRecordedAndVerified(t *testing.T) {
	ledger, err := walletstatedb.InitSQLiteDB(filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	defer ledger.Close()

	rawHex, txid := rawTx(t)

	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "0.05"}`)
	fake.Respond("payto", `{"hex": "`+rawHex+`"}`)
	fake.Respond("broadcast", `["true", "`+txid.String()+`"]`)
	s := session(t, fake, "/wallets/default_wallet")

	verifier := &mempool{ok: true}
	svc := payment.New(payment.Config{}, payment.Deps{Ledger: ledger, Verifier: verifier})

	out, err := svc.Pay(context.Background(), s, "addr", 3000000, amount(100000))
	require.NoError(t, err)
	assert.Equal(t, txid.String(), out.TxID)
	require.NotNil(t, out.Verified)
	assert.True(t, *out.Verified)
	assert.Equal(t, []string{txid.String()}, verifier.seen)
	assert.NotZero(t, out.LedgerID)

	_, err = svc.Pay(context.Background(), s, "addr", 9000000, nil)
	require.NoError(t, err)

	payments, err := ledger.ListPayments(0)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	assert.Equal(t, walletstatedb.StatusInsufficientFunds, payments[0].Status)
	assert.Empty(t, payments[0].RawTx)

	got := payments[1]
	assert.Equal(t, out.LedgerID, got.ID)
	assert.Equal(t, walletstatedb.StatusBroadcast, got.Status)
	assert.Equal(t, "/wallets/default_wallet", got.WalletPath)
	assert.Equal(t, rawHex, got.RawTx)
	assert.Equal(t, txid.String(), got.TxID)
	assert.Equal(t, btcutil.Amount(100000), got.Fee)
}

func TestVerificationFailureIsNotFatal(t *testing.T) {
	rawHex, _ := rawTx(t)

	fake := daemontest.New(true)
	fake.Respond("getbalance", `{"confirmed": "0.05"}`)
	fake.Respond("payto", `{"hex": "`+rawHex+`"}`)
	fake.Respond("broadcast", `["true", "ok"]`)
	s := session(t, fake, "")

	svc := payment.New(payment.Config{}, payment.Deps{Verifier: &mempool{err: errors.New("connection refused")}})

	out, err := svc.Pay(context.Background(), s, "addr", 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusBroadcast, out.Status)
	assert.Nil(t, out.Verified)
}
