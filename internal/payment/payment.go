// Package payment pays from the wallet: it checks that the balance covers the
// spend, has the daemon build a transaction and broadcasts it.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/vwigmore/cloudomate/internal/daemon"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
	"github.com/vwigmore/cloudomate/lib/rates"
	"github.com/vwigmore/cloudomate/lib/transaction"
)

// ErrInvalidAmount is returned for payments of zero or less.
var ErrInvalidAmount = errors.New("payment amount must be positive")

// Wallet is the subset of a daemon session used to pay. *daemon.Session
// implements it.
type Wallet interface {
	GetBalance(ctx context.Context) (daemon.Balance, error)
	CreateTransaction(ctx context.Context, req daemon.TransactionRequest) (string, error)
	Broadcast(ctx context.Context, rawHex string) (daemon.BroadcastResult, error)
}

// FeeEstimator quotes the network fee of an average transaction.
type FeeEstimator interface {
	EstimateNetworkFee(ctx context.Context, tier string) (btcutil.Amount, error)
}

// Converter turns a fiat price into coin. A nil result means the amount was
// already in coin.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string) (*decimal.Decimal, error)
}

// Recorder stores payment outcomes.
type Recorder interface {
	RecordPayment(p walletstatedb.Payment) (uint, error)
}

// Verifier checks that a broadcast transaction reached the mempool.
type Verifier interface {
	InMempool(ctx context.Context, txid string) (bool, error)
}

// Config holds the payment settings.
type Config struct {
	// GatewayFee is the fixed surcharge added by PayWithAutoFee.
	GatewayFee btcutil.Amount

	// FeeTier selects the fee recommendation tier. Empty means half hour.
	FeeTier string
}

// Deps are the collaborators of a Service. Only Fees is needed for
// PayWithAutoFee and Rates for PayInvoice; Ledger and Verifier are optional.
type Deps struct {
	Fees     FeeEstimator
	Rates    Converter
	Ledger   Recorder
	Verifier Verifier
}

// Service pays from a wallet session.
type Service struct {
	cfg  Config
	deps Deps
}

// New returns a Service.
func New(cfg Config, deps Deps) *Service {
	return &Service{cfg: cfg, deps: deps}
}

// Invoice is a price to pay to an address, as supplied by a provider.
type Invoice struct {
	Address string
	Price   decimal.Decimal
	// Currency of Price. Empty means Price is in coin.
	Currency string
}

// Pay sends amount to dest. A nil fee counts as zero in the funds check and
// leaves the fee choice to the daemon. Insufficient funds is reported in the
// Outcome, not as an error.
func (s *Service) Pay(ctx context.Context, w Wallet, dest string, amount btcutil.Amount, fee *btcutil.Amount) (*Outcome, error) {
	if amount <= 0 || (fee != nil && *fee < 0) {
		return nil, ErrInvalidAmount
	}

	var txFee btcutil.Amount
	if fee != nil {
		txFee = *fee
	}

	out := &Outcome{
		Destination: dest,
		Amount:      amount,
		Fee:         txFee,
		Required:    amount + txFee,
	}
	req := daemon.TransactionRequest{
		Destination: dest,
		Amount:      amount,
		Fee:         fee,
	}
	return s.pay(ctx, w, req, out)
}

// PayWithAutoFee sends amount to dest plus the gateway fee, paying an
// estimated network fee on top. The wallet must cover amount + network fee
// + gateway fee.
func (s *Service) PayWithAutoFee(ctx context.Context, w Wallet, dest string, amount btcutil.Amount) (*Outcome, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if s.deps.Fees == nil {
		return nil, errors.New("no fee estimator configured")
	}

	networkFee, err := s.deps.Fees.EstimateNetworkFee(ctx, s.cfg.FeeTier)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate network fee: %w", err)
	}
	log.Infof("Network fee estimate: %v, gateway fee: %v", networkFee, s.cfg.GatewayFee)

	out := &Outcome{
		Destination: dest,
		Amount:      amount,
		Fee:         networkFee,
		GatewayFee:  s.cfg.GatewayFee,
		Required:    amount + networkFee + s.cfg.GatewayFee,
	}
	req := daemon.TransactionRequest{
		Destination: dest,
		Amount:      amount + s.cfg.GatewayFee,
		Fee:         &networkFee,
	}
	return s.pay(ctx, w, req, out)
}

// PayInvoice converts the invoice price to coin and pays it with
// PayWithAutoFee.
func (s *Service) PayInvoice(ctx context.Context, w Wallet, inv Invoice) (*Outcome, error) {
	if !inv.Price.IsPositive() {
		return nil, ErrInvalidAmount
	}

	coin := inv.Price
	if inv.Currency != "" {
		if s.deps.Rates == nil {
			return nil, errors.New("no currency converter configured")
		}
		converted, err := s.deps.Rates.Convert(ctx, inv.Price, inv.Currency)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s %s: %w", inv.Price, inv.Currency, err)
		}
		if converted != nil {
			coin = *converted
		}
	}

	amount := rates.ToAmount(coin)
	log.Infof("Paying invoice of %s %s (%v) to %s", inv.Price, inv.Currency, amount, inv.Address)
	return s.PayWithAutoFee(ctx, w, inv.Address, amount)
}

// EmptyWallet sweeps the whole balance to dest. A wallet with a zero
// balance is reported as already empty without building a transaction.
func (s *Service) EmptyWallet(ctx context.Context, w Wallet, dest string) (*Outcome, error) {
	balance, err := w.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	available := balance.Total()
	out := &Outcome{
		Destination: dest,
		Amount:      available,
		Available:   available,
		Required:    available,
		Sweep:       true,
	}
	if available == 0 {
		log.Infof("Wallet is already empty")
		out.Status = StatusAlreadyEmpty
		s.record(w, out)
		return out, nil
	}

	req := daemon.TransactionRequest{Destination: dest, Sweep: true}
	return s.transact(ctx, w, req, out)
}

// pay runs the funds check and, if it passes, builds and broadcasts req.
func (s *Service) pay(ctx context.Context, w Wallet, req daemon.TransactionRequest, out *Outcome) (*Outcome, error) {
	balance, err := w.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	out.Available = balance.Total()
	log.Debugf("Available balance: %v (confirmed %v, unconfirmed %v)", out.Available, balance.Confirmed, balance.Unconfirmed)

	if out.Available < out.Required {
		log.Warnf("Insufficient balance: have %v, need %v", out.Available, out.Required)
		out.Status = StatusInsufficientFunds
		s.record(w, out)
		return out, nil
	}

	return s.transact(ctx, w, req, out)
}

// transact builds and broadcasts req. The raw transaction is attached to
// the outcome even when broadcasting fails.
func (s *Service) transact(ctx context.Context, w Wallet, req daemon.TransactionRequest, out *Outcome) (*Outcome, error) {
	rawHex, err := w.CreateTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	out.Transaction = &daemon.TransactionResult{RawHex: rawHex}

	if txid, err := transaction.DecodeTxID(rawHex); err == nil {
		out.TxID = txid.String()
	} else {
		log.Debugf("Could not decode transaction id: %v", err)
	}

	result, err := w.Broadcast(ctx, rawHex)
	if err != nil {
		log.Errorf("Broadcast of %s has unknown result: %v", out.Destination, err)
		out.Status = StatusBroadcastUnknown
		s.record(w, out)
		return out, fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	out.Transaction.BroadcastSucceeded = result.Success
	out.Transaction.Message = result.Message

	if result.Success {
		log.Infof("Transaction broadcast: %s", result.Message)
		out.Status = StatusBroadcast
		s.verify(ctx, out)
	} else {
		log.Warnf("Transaction not broadcast: %s", result.Message)
		out.Status = StatusRejected
	}

	s.record(w, out)
	return out, nil
}

func (s *Service) verify(ctx context.Context, out *Outcome) {
	if s.deps.Verifier == nil || out.TxID == "" {
		return
	}

	ok, err := s.deps.Verifier.InMempool(ctx, out.TxID)
	if err != nil {
		log.Warnf("Failed to verify transaction %s: %v", out.TxID, err)
		return
	}
	out.Verified = &ok
}

// record stores out in the ledger. w may report the wallet file it paid
// from through a WalletPath method.
func (s *Service) record(w interface{}, out *Outcome) {
	if s.deps.Ledger == nil {
		return
	}

	var walletPath string
	if p, ok := w.(interface{ WalletPath() string }); ok {
		walletPath = p.WalletPath()
	}

	id, err := s.deps.Ledger.RecordPayment(out.ledgerEntry(walletPath))
	if err != nil {
		log.Errorf("Failed to record payment to %s: %v", out.Destination, err)
		return
	}
	out.LedgerID = id
}
