package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPrimaryURL is a format string taking the currency code; it
	// returns the price of one coin in that currency.
	DefaultPrimaryURL = "https://api.coindesk.com/v1/bpi/currentprice/%s.json"

	// DefaultFallbackURL is a format string taking the currency code; it
	// returns the coin value of one unit of that currency as a plain number.
	DefaultFallbackURL = "https://blockchain.info/tobtc?currency=%s&value=1"

	fiatPlaces = 2
)

// ErrRateUnavailable is returned when neither rate source yields a rate.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Converter converts fiat amounts to coin using a primary price source and a
// fallback lookup service.
type Converter struct {
	PrimaryURL  string
	FallbackURL string
	Client      *http.Client
}

// NewConverter returns a Converter, substituting the defaults for empty URLs.
func NewConverter(primaryURL, fallbackURL string) *Converter {
	if primaryURL == "" {
		primaryURL = DefaultPrimaryURL
	}
	if fallbackURL == "" {
		fallbackURL = DefaultFallbackURL
	}
	return &Converter{
		PrimaryURL:  primaryURL,
		FallbackURL: fallbackURL,
		Client:      &http.Client{},
	}
}

// Rate returns the coin value of one unit of currency.
func (c *Converter) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)

	price, err := c.primaryPrice(ctx, currency)
	switch {
	case err != nil:
		log.Warnf("Primary rate source has no %s price (%v), using fallback", currency, err)
	case !price.IsPositive():
		log.Warnf("Primary rate source returned %s price %s, using fallback", currency, price)
	default:
		return decimal.NewFromInt(1).Div(price), nil
	}

	rate, err := c.fallbackRate(ctx, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, currency, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: fallback returned %s", ErrRateUnavailable, currency, rate)
	}
	return rate, nil
}

// Rates returns Rate for every currency.
func (c *Converter) Rates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(currencies))
	for _, cur := range currencies {
		rate, err := c.Rate(ctx, cur)
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(cur)] = rate
	}
	return out, nil
}

// Convert returns amount of currency expressed in coin, at full precision.
// An empty currency means no conversion is needed and yields nil.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, currency string) (*decimal.Decimal, error) {
	if currency == "" {
		return nil, nil
	}

	rate, err := c.Rate(ctx, currency)
	if err != nil {
		return nil, err
	}

	coin := amount.Mul(rate)
	return &coin, nil
}

// ConvertFiat converts between two fiat currencies through the coin price,
// rounded to cents.
func (c *Converter) ConvertFiat(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return amount.Round(fiatPlaces), nil
	}

	fromRate, err := c.Rate(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := c.Rate(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}

	return amount.Mul(fromRate).Div(toRate).Round(fiatPlaces), nil
}

// ToAmount rounds a coin value up to the next satoshi so that a converted
// price is never under-paid.
func ToAmount(coin decimal.Decimal) btcutil.Amount {
	return btcutil.Amount(coin.Shift(8).Ceil().IntPart())
}

// FiatValue returns the fiat value of a coin amount, rounded to cents.
func FiatValue(a btcutil.Amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrRateUnavailable, rate)
	}
	return decimal.New(int64(a), -8).Div(rate).Round(fiatPlaces), nil
}

// primaryPrice returns the price of one coin in currency.
func (c *Converter) primaryPrice(ctx context.Context, currency string) (decimal.Decimal, error) {
	body, err := c.get(ctx, fmt.Sprintf(c.PrimaryURL, url.PathEscape(currency)))
	if err != nil {
		return decimal.Zero, err
	}

	var reply struct {
		BPI map[string]struct {
			RateFloat *decimal.Decimal `json:"rate_float"`
		} `json:"bpi"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return decimal.Zero, fmt.Errorf("decoding price: %w", err)
	}

	entry, ok := reply.BPI[currency]
	if !ok || entry.RateFloat == nil {
		return decimal.Zero, fmt.Errorf("no %s price in reply", currency)
	}
	return *entry.RateFloat, nil
}

// fallbackRate returns the coin value of one unit of currency.
func (c *Converter) fallbackRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	body, err := c.get(ctx, fmt.Sprintf(c.FallbackURL, url.QueryEscape(currency)))
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(string(body)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing fallback rate %q: %w", body, err)
	}
	return rate, nil
}

func (c *Converter) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", u, resp.StatusCode)
	}
	return body, nil
}
