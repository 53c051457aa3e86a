package walletstatedb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := InitSQLiteDB(filepath.Join(t.TempDir(), "nested", "payments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndListPayments(t *testing.T) {
	l := openLedger(t)

	first := Payment{
		Destination: "addr1",
		WalletPath:  "/wallets/a",
		Amount:      3000000,
		Fee:         100000,
		Required:    3100000,
		Available:   5000000,
		Status:      StatusBroadcast,
		TxID:        "abc123",
		RawTx:       "0100",
		Message:     "abc123",
	}
	id1, err := l.RecordPayment(first)
	require.NoError(t, err)

	id2, err := l.RecordPayment(Payment{Destination: "addr2", Status: StatusInsufficientFunds, Available: 10})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	payments, err := l.ListPayments(0)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	// newest first
	assert.Equal(t, "addr2", payments[0].Destination)
	assert.Equal(t, StatusInsufficientFunds, payments[0].Status)

	got := payments[1]
	assert.Equal(t, id1, got.ID)
	assert.Equal(t, btcutil.Amount(3000000), got.Amount)
	assert.Equal(t, btcutil.Amount(100000), got.Fee)
	assert.Equal(t, btcutil.Amount(3100000), got.Required)
	assert.Equal(t, btcutil.Amount(5000000), got.Available)
	assert.Equal(t, "abc123", got.TxID)
	assert.Equal(t, "/wallets/a", got.WalletPath)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestListPaymentsLimit(t *testing.T) {
	l := openLedger(t)
	for _, dest := range []string{"a", "b", "c"} {
		_, err := l.RecordPayment(Payment{Destination: dest, Status: StatusBroadcast})
		require.NoError(t, err)
	}

	payments, err := l.ListPayments(2)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "c", payments[0].Destination)
	assert.Equal(t, "b", payments[1].Destination)
}

func TestMetadata(t *testing.T) {
	l := openLedger(t)

	v, err := l.GetMetadata(LastWalletKey)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, l.SetMetadata(LastWalletKey, "/wallets/a"))
	require.NoError(t, l.SetMetadata(LastWalletKey, "/wallets/b"))

	v, err = l.GetMetadata(LastWalletKey)
	require.NoError(t, err)
	assert.Equal(t, "/wallets/b", v)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.db")

	l, err := InitSQLiteDB(path)
	require.NoError(t, err)
	_, err = l.RecordPayment(Payment{Destination: "addr", Status: StatusRejected, Message: "insufficient fee"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = InitSQLiteDB(path)
	require.NoError(t, err)
	defer l.Close()

	payments, err := l.ListPayments(0)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "insufficient fee", payments[0].Message)
}
