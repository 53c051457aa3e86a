package payment

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

// ValidateAddress checks that addr is a valid address on the network
// described by params.
func ValidateAddress(addr string, params *chaincfg.Params) error {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if !decoded.IsForNet(params) {
		return fmt.Errorf("address %q is not for %s", addr, params.Name)
	}
	return nil
}

// ParseCoins converts a coin amount such as 0.03 to satoshis. Amounts with
// more than eight decimal places are rejected.
func ParseCoins(coins decimal.Decimal) (btcutil.Amount, error) {
	sat := coins.Shift(8)
	if !sat.IsInteger() {
		return 0, fmt.Errorf("%w: %s has sub-satoshi precision", ErrInvalidAmount, coins)
	}
	if !sat.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, coins)
	}
	return btcutil.Amount(sat.IntPart()), nil
}

// ParseFee is ParseCoins for an explicit fee, which may be zero.
func ParseFee(coins decimal.Decimal) (btcutil.Amount, error) {
	if coins.IsZero() {
		return 0, nil
	}
	return ParseCoins(coins)
}
