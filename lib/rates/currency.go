package rates

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DetectCurrency guesses the currency of a scraped price string. The check is
// naive: "NZ$" also reads as USD. An empty result means unknown.
func DetectCurrency(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(text, "$") || strings.Contains(lower, "usd"):
		return "USD"
	case strings.Contains(text, "€") || strings.Contains(lower, "eur"):
		return "EUR"
	default:
		return ""
	}
}

// ParsePrice extracts the number and currency from a price such as
// "$4.99" or "3,50 EUR". A comma is read as the decimal separator.
func ParsePrice(text string) (decimal.Decimal, string, error) {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}

	price, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("no price in %q", text)
	}
	return price, DetectCurrency(text), nil
}
