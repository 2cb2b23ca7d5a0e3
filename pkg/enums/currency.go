package enums

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents supported payment denominations.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyBTC Currency = "BTC"
	CurrencyETH Currency = "ETH"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyBTC,
	CurrencyETH,
}

// minimumUnits is the smallest representable amount per currency.
var minimumUnits = map[Currency]decimal.Decimal{
	CurrencyUSD: decimal.New(1, -2),  // one cent
	CurrencyBTC: decimal.New(1, -8),  // one satoshi
	CurrencyETH: decimal.New(1, -18), // one wei
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// MinimumUnit returns the smallest representable amount for the currency.
func (c Currency) MinimumUnit() decimal.Decimal {
	if unit, ok := minimumUnits[c]; ok {
		return unit
	}
	return decimal.New(1, -8)
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
