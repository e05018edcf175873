// Package currency normalizes ISO-like currency codes and renders amounts
// for alert text. Amounts in different currencies are never converted.
package currency

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// Default is applied when a document carries no currency.
const Default = "USD"

var symbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
}

// Normalize upper-cases and trims a currency code, maps common symbols to
// their code and falls back to Default for an empty value.
func Normalize(code string) string {
	c := strings.TrimSpace(code)
	if c == "" {
		return Default
	}
	if mapped, ok := symbols[c]; ok {
		return mapped
	}
	return strings.ToUpper(c)
}

// Amount formats v with thousands separators and two decimals: 1,000.00.
func Amount(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

// Format renders v followed by its currency code: 1,000.00 USD.
func Format(v float64, code string) string {
	return Amount(v) + " " + code
}
