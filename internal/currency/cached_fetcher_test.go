package currency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingFetcher struct {
	calls int32
	delay time.Duration
	err   error
	table RateTable
}

func (c *countingFetcher) FetchRates(_ context.Context, codes []string) (RateTable, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.table.Subset(codes), nil
}

func TestCachedFetcherReusesTable(t *testing.T) {
	upstream := &countingFetcher{table: RateTable{"EUR": d("1"), "USD": d("1.1")}}
	f, err := NewCachedFetcher(upstream, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx := context.Background()
	first, err := f.FetchRates(ctx, []string{"USD", "EUR"})
	if err != nil {
		t.Fatal(err)
	}
	// mutation by a caller must not leak into the cache
	first["USD"] = d("99")

	second, err := f.FetchRates(ctx, []string{"eur", "usd"})
	if err != nil {
		t.Fatal(err)
	}
	if !second["USD"].Equal(d("1.1")) {
		t.Errorf("cached USD = %s", second["USD"])
	}
	if calls := atomic.LoadInt32(&upstream.calls); calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}

	f.Invalidate()
	if _, err := f.FetchRates(ctx, []string{"EUR", "USD"}); err != nil {
		t.Fatal(err)
	}
	if calls := atomic.LoadInt32(&upstream.calls); calls != 2 {
		t.Errorf("upstream calls after invalidate = %d, want 2", calls)
	}
}

func TestCachedFetcherCollapsesConcurrentRequests(t *testing.T) {
	upstream := &countingFetcher{delay: 50 * time.Millisecond, table: RateTable{"EUR": d("1"), "USD": d("1.1")}}
	f, err := NewCachedFetcher(upstream, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.FetchRates(context.Background(), []string{"EUR", "USD"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&upstream.calls); calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	upstream := &countingFetcher{err: ErrRateSource}
	f, err := NewCachedFetcher(upstream, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for i := 0; i < 2; i++ {
		if _, err := f.FetchRates(context.Background(), []string{"USD"}); !errors.Is(err, ErrRateSource) {
			t.Fatalf("error = %v", err)
		}
	}
	if calls := atomic.LoadInt32(&upstream.calls); calls != 2 {
		t.Errorf("upstream calls = %d, want 2", calls)
	}
}
