package currency

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"
)

// CachedFetcher keeps recent rate tables in memory and collapses concurrent
// requests for the same currency set into one upstream call.
type CachedFetcher struct {
	next  RateFetcher
	cache *ristretto.Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedFetcher(next RateFetcher, ttl time.Duration) (*CachedFetcher, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // keys to track frequency of
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create rate cache: %w", err)
	}
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedFetcher) FetchRates(ctx context.Context, codes []string) (RateTable, error) {
	key := setKey(codes)
	if v, ok := c.cache.Get(key); ok {
		return v.(RateTable).clone(), nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		table, err := c.next.FetchRates(ctx, codes)
		if err != nil {
			return nil, err
		}
		c.cache.SetWithTTL(key, table, int64(len(table))+1, c.ttl)
		c.cache.Wait()
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "Rate fetch shared with concurrent request", "currencies", key)
	}
	return v.(RateTable).clone(), nil
}

// Invalidate drops every cached table.
func (c *CachedFetcher) Invalidate() {
	c.cache.Clear()
}

func (c *CachedFetcher) Close() {
	c.cache.Close()
}

func (r RateTable) clone() RateTable {
	out := make(RateTable, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func setKey(codes []string) string {
	norm := make([]string, len(codes))
	for i, c := range codes {
		norm[i] = strings.ToUpper(c)
	}
	sort.Strings(norm)
	return strings.Join(norm, ",")
}
