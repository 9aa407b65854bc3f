package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"insights/internal/log"
)

// ErrRateSource wraps failures talking to the remote rate provider.
var ErrRateSource = errors.New("rate source unavailable")

// HTTPFetcher reads latest rates from a Frankfurter-compatible endpoint:
//
//	GET {baseURL}/latest?base=EUR&symbols=USD,GBP
//	{"base":"EUR","date":"2024-05-15","rates":{"USD":1.08,"GBP":0.86}}
type HTTPFetcher struct {
	baseURL string
	base    string
	client  *http.Client
}

// NewHTTPFetcher anchors every table at base. A nil client gets a pooled
// default with the given timeout.
func NewHTTPFetcher(baseURL, base string, client *http.Client, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = newHTTPClientWithPooling(timeout)
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    strings.ToUpper(base),
		client:  client,
	}
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (f *HTTPFetcher) FetchRates(ctx context.Context, codes []string) (RateTable, error) {
	table := RateTable{f.base: decimal.NewFromInt(1)}

	symbols := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(code)
		if code != f.base {
			symbols = append(symbols, code)
		}
	}
	if len(symbols) == 0 {
		return table, nil
	}

	q := url.Values{}
	q.Set("base", f.base)
	q.Set("symbols", strings.Join(symbols, ","))
	endpoint := f.baseURL + "/latest?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRateSource, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode rates response: %v", ErrRateSource, err)
	}
	if payload.Base != "" && !strings.EqualFold(payload.Base, f.base) {
		return nil, fmt.Errorf("%w: base %s, want %s", ErrRateSource, payload.Base, f.base)
	}

	for code, rate := range payload.Rates {
		table[strings.ToUpper(code)] = rate
	}

	slog.DebugContext(ctx, "Fetched exchange rates",
		log.FieldComponent, log.ComponentRates,
		log.FieldOperation, log.OpFetchRates,
		"base", f.base,
		"symbols", len(symbols),
		"received", len(payload.Rates),
		"as_of", payload.Date,
		"duration_ms", time.Since(start).Milliseconds())

	return table, nil
}

func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
