package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// SweepAmount is the payto amount that spends every available coin.
const SweepAmount = "!"

const feeFlag = "-f"

// Balance is the wallet balance as reported by getbalance.
type Balance struct {
	Confirmed   btcutil.Amount `json:"confirmed"`
	Unconfirmed btcutil.Amount `json:"unconfirmed"`
}

// Total returns confirmed plus unconfirmed funds.
func (b Balance) Total() btcutil.Amount {
	return b.Confirmed + b.Unconfirmed
}

// TransactionRequest describes a payto invocation.
type TransactionRequest struct {
	Destination string
	Amount      btcutil.Amount

	// Fee is the absolute fee. Nil lets the daemon choose.
	Fee *btcutil.Amount

	// Sweep spends the whole balance; Amount is ignored.
	Sweep bool
}

// Args returns the payto arguments for r.
func (r TransactionRequest) Args() []string {
	amount := FormatAmount(r.Amount)
	if r.Sweep {
		amount = SweepAmount
	}

	args := []string{"payto", r.Destination, amount}
	if r.Fee != nil {
		args = append(args, feeFlag, FormatAmount(*r.Fee))
	}
	return args
}

// BroadcastResult is the daemon's positional [success, hash-or-error] reply.
type BroadcastResult struct {
	Success bool
	Message string
}

// TransactionResult is what a payment left behind for audit.
type TransactionResult struct {
	RawHex             string `json:"raw_hex"`
	BroadcastSucceeded bool   `json:"broadcast_succeeded"`
	Message            string `json:"message"`
}

// FormatAmount renders a in whole coins without trailing zeros, the way the
// wallet command line expects it.
func FormatAmount(a btcutil.Amount) string {
	return decimal.New(int64(a), -8).String()
}

// ParseAmount parses a coin amount given either as a JSON string or number.
func ParseAmount(raw json.RawMessage) (btcutil.Amount, error) {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return 0, err
	}
	return btcutil.Amount(d.Shift(8).Round(0).IntPart()), nil
}

// GetBalance returns the wallet balance. Fields missing from the daemon's
// reply are zero.
func (s *Session) GetBalance(ctx context.Context) (Balance, error) {
	args := []string{"getbalance"}

	var fields map[string]json.RawMessage
	if err := s.ExecuteJSON(ctx, args, &fields); err != nil {
		return Balance{}, err
	}

	var balance Balance
	for key, dst := range map[string]*btcutil.Amount{
		"confirmed":   &balance.Confirmed,
		"unconfirmed": &balance.Unconfirmed,
	} {
		raw, ok := fields[key]
		if !ok || bytes.Equal(raw, []byte("null")) {
			continue
		}
		amount, err := ParseAmount(raw)
		if err != nil {
			return Balance{}, &CommandError{
				Args:   args,
				Output: string(raw),
				Err:    fmt.Errorf("%w: %s: %v", ErrMalformedResponse, key, err),
			}
		}
		*dst = amount
	}

	log.Debugf("Balance: confirmed %v, unconfirmed %v", balance.Confirmed, balance.Unconfirmed)
	return balance, nil
}

// GetAddresses returns the decoded listaddresses reply as-is.
func (s *Session) GetAddresses(ctx context.Context) ([]interface{}, error) {
	var addresses []interface{}
	if err := s.ExecuteJSON(ctx, []string{"listaddresses"}, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

// CreateTransaction builds and signs a transaction and returns its raw hex.
// The transaction is not broadcast.
func (s *Session) CreateTransaction(ctx context.Context, req TransactionRequest) (string, error) {
	args := req.Args()

	var tx struct {
		Hex string `json:"hex"`
	}
	if err := s.ExecuteJSON(ctx, args, &tx); err != nil {
		return "", err
	}
	if tx.Hex == "" {
		return "", &CommandError{
			Args: args,
			Err:  fmt.Errorf("%w: no hex field in payto reply", ErrMalformedResponse),
		}
	}

	return tx.Hex, nil
}

// Broadcast submits a raw transaction to the network.
func (s *Session) Broadcast(ctx context.Context, rawHex string) (BroadcastResult, error) {
	args := []string{"broadcast", rawHex}

	var reply []json.RawMessage
	if err := s.ExecuteJSON(ctx, args, &reply); err != nil {
		return BroadcastResult{}, err
	}
	if len(reply) != 2 {
		return BroadcastResult{}, &CommandError{
			Args: args,
			Err:  fmt.Errorf("%w: broadcast reply has %d elements, want 2", ErrMalformedResponse, len(reply)),
		}
	}

	success, err := parseFlag(reply[0])
	if err != nil {
		return BroadcastResult{}, &CommandError{
			Args:   args,
			Output: string(reply[0]),
			Err:    fmt.Errorf("%w: broadcast success flag: %v", ErrMalformedResponse, err),
		}
	}

	return BroadcastResult{Success: success, Message: parseMessage(reply[1])}, nil
}

// parseFlag accepts a JSON boolean or a string such as "true".
func parseFlag(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(s)
}

// parseMessage returns a JSON string's contents, or the raw JSON otherwise.
func parseMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
