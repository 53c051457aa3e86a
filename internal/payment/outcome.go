package payment

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/vwigmore/cloudomate/internal/daemon"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
)

// Status values reported in an Outcome.
const (
	StatusBroadcast         = walletstatedb.StatusBroadcast
	StatusRejected          = walletstatedb.StatusRejected
	StatusInsufficientFunds = walletstatedb.StatusInsufficientFunds
	StatusAlreadyEmpty      = walletstatedb.StatusAlreadyEmpty
	StatusBroadcastUnknown  = walletstatedb.StatusBroadcastUnknown
)

// Outcome reports what happened to a payment. Amounts are in satoshis.
type Outcome struct {
	Status      string                    `json:"status"`
	Destination string                    `json:"destination"`
	Amount      btcutil.Amount            `json:"amount"`
	Fee         btcutil.Amount            `json:"fee"`
	GatewayFee  btcutil.Amount            `json:"gateway_fee,omitempty"`
	Required    btcutil.Amount            `json:"required"`
	Available   btcutil.Amount            `json:"available"`
	Sweep       bool                      `json:"sweep,omitempty"`
	Transaction *daemon.TransactionResult `json:"transaction,omitempty"`
	TxID        string                    `json:"txid,omitempty"`
	Verified    *bool                     `json:"verified,omitempty"`
	LedgerID    uint                      `json:"ledger_id,omitempty"`
}

// Succeeded reports whether the transaction was accepted by the network.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusBroadcast
}

func (o *Outcome) ledgerEntry(walletPath string) walletstatedb.Payment {
	p := walletstatedb.Payment{
		Destination: o.Destination,
		WalletPath:  walletPath,
		Amount:      o.Amount,
		Fee:         o.Fee + o.GatewayFee,
		Required:    o.Required,
		Available:   o.Available,
		Sweep:       o.Sweep,
		Status:      o.Status,
		TxID:        o.TxID,
	}
	if o.Transaction != nil {
		p.RawTx = o.Transaction.RawHex
		p.Message = o.Transaction.Message
	}
	return p
}
