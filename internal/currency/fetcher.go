package currency

import (
	"context"
	"fmt"
	"strings"

	"insights/internal/core"
)

// RateFetcher returns a table covering the requested currency codes.
type RateFetcher interface {
	FetchRates(ctx context.Context, codes []string) (RateTable, error)
}

// StaticFetcher serves a fixed table. Used for the memory backend, offline
// CLI runs and tests.
type StaticFetcher struct {
	table RateTable
}

func NewStaticFetcher(table RateTable) *StaticFetcher {
	normalized := make(RateTable, len(table))
	for code, rate := range table {
		normalized[strings.ToUpper(code)] = rate
	}
	return &StaticFetcher{table: normalized}
}

func (s *StaticFetcher) FetchRates(_ context.Context, codes []string) (RateTable, error) {
	return s.table.Subset(codes), nil
}

// ParseStaticRates reads "EUR=1,USD=1.08" into a table.
func ParseStaticRates(raw string) (RateTable, error) {
	table := RateTable{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("parse rate %q: expected CODE=RATE", pair)
		}
		normalized, err := core.NormalizeCurrency(code)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", pair, err)
		}
		rate, err := core.ParseAmount(value)
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("parse rate %q: %w", pair, core.ErrInvalidAmount)
		}
		table[normalized] = rate
	}
	return table, nil
}
