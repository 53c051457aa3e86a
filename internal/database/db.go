// Package walletstatedb keeps a local record of payments made from the
// wallet, together with a small key/value metadata table.
package walletstatedb

import "github.com/btcsuite/btclog"

// Payment statuses stored in the ledger.
const (
	StatusBroadcast         = "broadcast"
	StatusRejected          = "rejected"
	StatusInsufficientFunds = "insufficient_funds"
	StatusAlreadyEmpty      = "already_empty"

	// StatusBroadcastUnknown marks a transaction handed to the daemon whose
	// broadcast reply could not be read. It may or may not be on the network.
	StatusBroadcastUnknown = "broadcast_unknown"
)

// LastWalletKey holds the wallet path used by the most recent payment.
const LastWalletKey = "last_wallet_path"

var log = btclog.Disabled

// UseLogger sets the logger used by the ledger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
