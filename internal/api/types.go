package api

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"

	"github.com/vwigmore/cloudomate/internal/payment"
)

// PayRequest is the body of POST /pay. Amounts are in coins.
type PayRequest struct {
	Address string           `json:"address"`
	Amount  decimal.Decimal  `json:"amount"`
	Fee     *decimal.Decimal `json:"fee,omitempty"`
	AutoFee bool             `json:"auto_fee"`
}

// InvoiceRequest is the body of POST /invoice. An empty currency means the
// price is in coins.
type InvoiceRequest struct {
	Address  string          `json:"address"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// EmptyRequest is the body of POST /empty.
type EmptyRequest struct {
	Address string `json:"address"`
}

// BalanceResponse reports the wallet balance in satoshis.
type BalanceResponse struct {
	Confirmed   btcutil.Amount `json:"confirmed"`
	Unconfirmed btcutil.Amount `json:"unconfirmed"`
	Total       btcutil.Amount `json:"total"`
}

// FeeResponse reports a network fee estimate in satoshis.
type FeeResponse struct {
	Tier string         `json:"tier"`
	Fee  btcutil.Amount `json:"fee"`
}

// ErrorResponse is written for every failed request. Outcome is set when a
// payment got as far as building a transaction.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Outcome *payment.Outcome `json:"outcome,omitempty"`
}
