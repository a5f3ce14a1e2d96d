package models

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code from the supported set.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
	CurrencyBGN Currency = "BGN"
)

var currencyDecimals = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyJPY: 0,
	CurrencyBGN: 2,
}

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported currency %q", s)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	_, ok := currencyDecimals[c]
	return ok
}

// Decimals is the number of minor-unit digits for the currency.
func (c Currency) Decimals() int32 {
	return currencyDecimals[c]
}
