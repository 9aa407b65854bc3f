// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals end to end. Rounding to cents happens only
// when a figure leaves the engine, never while summing.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a signed decimal string to a Decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// sign and surrounding whitespace. Precision is kept as written.
//
// Examples:
//
//	ParseAmount("12.34")   -> 12.34
//	ParseAmount("-12,345") -> -12.345
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
