package walletstatedb

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// Payment is one attempt to pay from the wallet, as recorded in the ledger.
type Payment struct {
	ID          uint           `json:"id"`
	Destination string         `json:"destination"`
	WalletPath  string         `json:"wallet_path,omitempty"`
	Amount      btcutil.Amount `json:"amount"`
	Fee         btcutil.Amount `json:"fee"`
	Required    btcutil.Amount `json:"required"`
	Available   btcutil.Amount `json:"available"`
	Sweep       bool           `json:"sweep,omitempty"`
	Status      string         `json:"status"`
	TxID        string         `json:"txid,omitempty"`
	RawTx       string         `json:"raw_tx,omitempty"`
	Message     string         `json:"message,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
