package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// Fee tiers published by the recommendation service.
const (
	FastestFee  = "fastestFee"
	HalfHourFee = "halfHourFee"
	HourFee     = "hourFee"
	EconomyFee  = "economyFee"
	MinimumFee  = "minimumFee"
)

// AvgTxSize is the size in bytes of an average transaction, used to turn a
// per-byte rate into an absolute fee.
const AvgTxSize = 226

// DefaultURL is the public fee recommendation endpoint.
const DefaultURL = "https://mempool.space/api/v1/fees/recommended"

// ErrRateUnavailable is returned when no rate can be obtained for a tier.
var ErrRateUnavailable = errors.New("fee rate unavailable")

// Recommendation maps tier names to satoshi per byte rates.
type Recommendation map[string]decimal.Decimal

// Estimator fetches fee recommendations. Quotes are never cached.
type Estimator struct {
	URL    string
	Client *http.Client
}

// NewEstimator returns an Estimator for url, or DefaultURL if empty. The
// client has no timeout; callers bound requests through their context.
func NewEstimator(url string) *Estimator {
	if url == "" {
		url = DefaultURL
	}
	return &Estimator{URL: url, Client: &http.Client{}}
}

// Recommend fetches the current tier to rate mapping.
func (e *Estimator) Recommend(ctx context.Context) (Recommendation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrRateUnavailable, e.URL, resp.StatusCode, body)
	}

	var rec Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decoding recommendation: %v", ErrRateUnavailable, err)
	}
	return rec, nil
}

// Rate returns the satoshi per byte rate for tier.
func (r Recommendation) Rate(tier string) (decimal.Decimal, error) {
	rate, ok := r[tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for tier %q", ErrRateUnavailable, tier)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative rate %s for tier %q", ErrRateUnavailable, rate, tier)
	}
	return rate, nil
}

// FeeForSize converts a satoshi per byte rate into an absolute fee for size
// bytes, rounding up to the next satoshi.
func FeeForSize(rate decimal.Decimal, size int64) btcutil.Amount {
	return btcutil.Amount(rate.Mul(decimal.NewFromInt(size)).Ceil().IntPart())
}

// EstimateNetworkFee returns the fee of an average transaction confirming
// within tier. An empty tier means HalfHourFee. Failures are returned rather
// than defaulted: an under-estimated fee risks a stuck transaction.
func (e *Estimator) EstimateNetworkFee(ctx context.Context, tier string) (btcutil.Amount, error) {
	if tier == "" {
		tier = HalfHourFee
	}

	rec, err := e.Recommend(ctx)
	if err != nil {
		return 0, err
	}

	rate, err := rec.Rate(tier)
	if err != nil {
		return 0, err
	}

	fee := FeeForSize(rate, AvgTxSize)
	log.Debugf("Network fee for %s at %s sat/B: %v", tier, rate, fee)
	return fee, nil
}
