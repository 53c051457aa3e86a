package walletstatedb

import (
	"gorm.io/gorm"
)

// SQLitePayment stores a payment attempt. Amounts are in satoshis.
type SQLitePayment struct {
	gorm.Model
	Destination string `gorm:"index"`
	WalletPath  string
	Amount      int64
	Fee         int64
	Required    int64
	Available   int64
	Sweep       bool
	Status      string `gorm:"index"` // broadcast, rejected, insufficient_funds, already_empty
	TxID        string `gorm:"index"`
	RawTx       string // hex, kept for audit
	Message     string // broadcast hash or daemon error
}

// SQLiteMetadata stores miscellaneous metadata about the wallet
type SQLiteMetadata struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex"`
	Value string
}
