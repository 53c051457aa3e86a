package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/vwigmore/cloudomate/internal/daemon"
	"github.com/vwigmore/cloudomate/lib/tribler"
)

// TransferWallet is a wallet that builds and broadcasts in one call, such
// as the Tribler wallet. *tribler.Client implements it.
type TransferWallet interface {
	Balance(ctx context.Context) (btcutil.Amount, error)
	Transfer(ctx context.Context, dest string, amount btcutil.Amount) (string, error)
}

// PayTransfer sends amount plus fee to dest through a TransferWallet. The
// funds check is the same as Pay's; the wallet receives the sum as a single
// transfer amount.
func (s *Service) PayTransfer(ctx context.Context, w TransferWallet, dest string, amount btcutil.Amount, fee *btcutil.Amount) (*Outcome, error) {
	if amount <= 0 || (fee != nil && *fee < 0) {
		return nil, ErrInvalidAmount
	}

	var txFee btcutil.Amount
	if fee != nil {
		txFee = *fee
	}

	available, err := w.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	out := &Outcome{
		Destination: dest,
		Amount:      amount,
		Fee:         txFee,
		Required:    amount + txFee,
		Available:   available,
	}
	if available < out.Required {
		log.Warnf("Insufficient balance: have %v, need %v", available, out.Required)
		out.Status = StatusInsufficientFunds
		s.record(w, out)
		return out, nil
	}

	txid, err := w.Transfer(ctx, dest, out.Required)
	switch {
	case errors.Is(err, tribler.ErrTransferFailed):
		log.Warnf("Transfer not made: %v", err)
		out.Status = StatusRejected
		out.Transaction = &daemon.TransactionResult{Message: err.Error()}
		s.record(w, out)
		return out, nil
	case err != nil:
		log.Errorf("Transfer to %s has unknown result: %v", dest, err)
		out.Status = StatusBroadcastUnknown
		s.record(w, out)
		return out, fmt.Errorf("failed to transfer: %w", err)
	}

	out.Status = StatusBroadcast
	out.TxID = txid
	out.Transaction = &daemon.TransactionResult{BroadcastSucceeded: true, Message: txid}
	s.verify(ctx, out)
	s.record(w, out)
	return out, nil
}
