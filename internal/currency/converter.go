// Package currency converts amounts between currencies using point-in-time
// rate tables and fetches those tables from external sources.
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"insights/internal/core"
)

// ErrMissingRate is returned when a conversion needs a currency the table
// does not carry. It is fatal for the report being computed.
var ErrMissingRate = errors.New("missing exchange rate")

// RateTable maps currency codes to their rate against one implied base
// currency. The base itself is conventionally 1.
type RateTable map[string]decimal.Decimal

// Convert moves amount from one currency to another. Equal currencies return
// the amount untouched without consulting the table.
func Convert(amount decimal.Decimal, from, to string, rates RateTable) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return amount, nil
	}
	fromRate, err := rates.lookup(from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := rates.lookup(to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(toRate).Div(fromRate), nil
}

func (r RateTable) lookup(code string) (decimal.Decimal, error) {
	rate, ok := r[strings.ToUpper(code)]
	if !ok || rate.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingRate, code)
	}
	return rate, nil
}

// Require checks that every code has a usable rate.
func (r RateTable) Require(codes ...string) error {
	var missing []string
	for _, code := range codes {
		if _, err := r.lookup(code); err != nil {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRate, strings.Join(missing, ", "))
	}
	return nil
}

// Subset returns a copy holding only the given codes that are present.
func (r RateTable) Subset(codes []string) RateTable {
	out := make(RateTable, len(codes))
	for _, code := range codes {
		if rate, ok := r[code]; ok {
			out[code] = rate
		}
	}
	return out
}

// RequiredCurrencies is the sorted union of the currencies observed in txns
// and the display currency. It is the exact set a rate fetch must cover.
func RequiredCurrencies(txns []core.Transaction, display string) []string {
	seen := map[string]struct{}{strings.ToUpper(display): {}}
	for _, t := range txns {
		seen[strings.ToUpper(t.Currency)] = struct{}{}
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		if code != "" {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
