package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"insights/internal/cache"
	"insights/internal/core"
	"insights/internal/currency"
	"insights/internal/ledger"
	"insights/internal/log"
)

// CategoryReportQuery selects the transactions a category report covers.
// Range, when set, replaces the window derived from DateReference and
// Granularity.
type CategoryReportQuery struct {
	Type          core.TransactionType
	DateReference time.Time
	Granularity   core.Granularity
	Range         *core.DateRange
	AccountIDs    []string
	CategoryIDs   []string
	Currency      string
}

// BudgetQuery selects the window and currency of a budget report. An empty
// Granularity reports in the budget's own granularity.
type BudgetQuery struct {
	DateReference time.Time
	Granularity   core.Granularity
	Currency      string
}

// Caches holds the optional result caches. Entries are partitioned by user
// so a ledger change can drop everything computed for that user.
type Caches struct {
	Reports cache.Cache[core.CategoryReport]
	Budgets cache.Cache[core.BudgetReport]
}

// ReportService answers category report and budget queries. Each call works
// on its own snapshot of the ledger; nothing computed is shared except
// through the caches.
type ReportService struct {
	transactions    ledger.TransactionSource
	categories      ledger.CategorySource
	budgets         ledger.BudgetSource
	rates           currency.RateFetcher
	caches          Caches
	defaultCurrency string
	now             func() time.Time
}

type Option func(*ReportService)

func WithCaches(c Caches) Option {
	return func(s *ReportService) { s.caches = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

func WithDefaultCurrency(code string) Option {
	return func(s *ReportService) {
		if normalized, err := core.NormalizeCurrency(code); err == nil {
			s.defaultCurrency = normalized
		}
	}
}

func NewReportService(source ledger.Source, rates currency.RateFetcher, opts ...Option) *ReportService {
	s := &ReportService{
		transactions:    source,
		categories:      source,
		budgets:         source,
		rates:           rates,
		defaultCurrency: core.DefaultCurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCategoryReport sums the user's transactions of one type per category in
// the requested currency.
func (s *ReportService) GetCategoryReport(ctx context.Context, userID string, q CategoryReportQuery) (core.CategoryReport, error) {
	display, err := s.displayCurrency(q.Currency)
	if err != nil {
		return core.CategoryReport{}, err
	}
	q.Currency = display
	if q.DateReference.IsZero() {
		q.DateReference = s.now()
	}

	window := core.ResolveRange(q.DateReference, q.Granularity)
	if q.Range != nil {
		window = *q.Range
	}

	key := categoryCacheKey(q, window)
	var gen uint64
	if s.caches.Reports != nil {
		gen = s.caches.Reports.Generation(userID)
		if report, ok := s.caches.Reports.Get(userID, key); ok {
			slog.DebugContext(ctx, "Category report served from cache", log.FieldUserID, userID, log.FieldCacheHit, true)
			return report, nil
		}
	}

	filter := ledger.TransactionFilter{
		Range:       window,
		AccountIDs:  q.AccountIDs,
		CategoryIDs: q.CategoryIDs,
	}
	if q.Type != "" {
		filter.Types = []core.TransactionType{q.Type}
	}

	txns, cats, err := s.load(ctx, userID, filter)
	if err != nil {
		return core.CategoryReport{}, err
	}
	rates, err := s.fetchRates(ctx, txns, display)
	if err != nil {
		return core.CategoryReport{}, err
	}

	report, err := AggregateByCategory(txns, cats, display, rates)
	if err != nil {
		return core.CategoryReport{}, fmt.Errorf("aggregate categories: %w", err)
	}

	if s.caches.Reports != nil && !s.caches.Reports.SetIfGeneration(userID, key, report, gen) {
		slog.DebugContext(ctx, "Category report not cached, ledger changed while computing", log.FieldUserID, userID)
	}

	slog.InfoContext(ctx, "Category report computed",
		log.FieldComponent, log.ComponentReports,
		log.FieldUserID, userID,
		log.FieldReportType, q.Type,
		log.FieldFrom, window.From.String(),
		log.FieldUntil, window.Until.String(),
		log.FieldCurrency, display,
		"transactions", len(txns),
		"categories", len(report.Categories))

	return report, nil
}

// GetBudget materializes the user's budget over the window containing the
// reference date, rescaling targets to the requested granularity.
func (s *ReportService) GetBudget(ctx context.Context, userID string, q BudgetQuery) (core.BudgetReport, error) {
	display, err := s.displayCurrency(q.Currency)
	if err != nil {
		return core.BudgetReport{}, err
	}
	if q.DateReference.IsZero() {
		q.DateReference = s.now()
	}

	var gen uint64
	if s.caches.Budgets != nil {
		gen = s.caches.Budgets.Generation(userID)
	}

	budget, err := s.budgets.GetOrCreateBudget(ctx, userID)
	if err != nil {
		return core.BudgetReport{}, fmt.Errorf("get budget: %w", err)
	}

	output := budget.Granularity
	if q.Granularity != "" {
		output = core.ParseGranularity(string(q.Granularity))
	}
	window := core.ResolveRange(q.DateReference, output)

	key := budgetCacheKey(budget, output, display, window)
	if s.caches.Budgets != nil {
		if report, ok := s.caches.Budgets.Get(userID, key); ok {
			slog.DebugContext(ctx, "Budget served from cache", log.FieldUserID, userID, log.FieldCacheHit, true)
			return report, nil
		}
	}

	txns, cats, err := s.load(ctx, userID, ledger.TransactionFilter{
		Range:        window,
		ExcludeTypes: []core.TransactionType{core.Transfer},
	})
	if err != nil {
		return core.BudgetReport{}, err
	}
	rates, err := s.fetchRates(ctx, txns, display)
	if err != nil {
		return core.BudgetReport{}, err
	}

	entries, err := MaterializeBudget(budget, cats, txns, output, display, rates)
	if err != nil {
		return core.BudgetReport{}, fmt.Errorf("materialize budget: %w", err)
	}

	report := core.BudgetReport{
		BudgetID:    budget.ID,
		Granularity: output,
		Currency:    display,
		From:        window.From,
		Until:       window.Until,
		Entries:     entries,
	}
	if s.caches.Budgets != nil && !s.caches.Budgets.SetIfGeneration(userID, key, report, gen) {
		slog.DebugContext(ctx, "Budget not cached, ledger changed while computing", log.FieldUserID, userID)
	}

	slog.InfoContext(ctx, "Budget computed",
		log.FieldComponent, log.ComponentReports,
		log.FieldUserID, userID,
		"budget_granularity", budget.Granularity,
		log.FieldGranular, output,
		log.FieldFrom, window.From.String(),
		log.FieldUntil, window.Until.String(),
		log.FieldCurrency, display,
		"entries", len(entries))

	return report, nil
}

// Invalidate drops every cached result for the user and returns how many
// entries were removed.
func (s *ReportService) Invalidate(userID string) int {
	removed := 0
	if s.caches.Reports != nil {
		removed += s.caches.Reports.InvalidateUser(userID)
	}
	if s.caches.Budgets != nil {
		removed += s.caches.Budgets.InvalidateUser(userID)
	}
	return removed
}

// load fetches transactions and the category catalog concurrently.
func (s *ReportService) load(ctx context.Context, userID string, filter ledger.TransactionFilter) ([]core.Transaction, []core.Category, error) {
	var (
		txns []core.Transaction
		cats []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = s.transactions.ListTransactions(gctx, userID, filter)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cats, err = s.categories.ListCategories(gctx, userID)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return txns, cats, nil
}

// fetchRates computes the required currency set and fetches a table for it.
// A ledger already entirely in the display currency needs no table.
func (s *ReportService) fetchRates(ctx context.Context, txns []core.Transaction, display string) (currency.RateTable, error) {
	codes := currency.RequiredCurrencies(txns, display)
	if len(codes) == 1 && codes[0] == display {
		return currency.RateTable{}, nil
	}

	rates, err := s.rates.FetchRates(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	if err := rates.Require(codes...); err != nil {
		return nil, err
	}
	return rates, nil
}

func (s *ReportService) displayCurrency(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return s.defaultCurrency, nil
	}
	return core.NormalizeCurrency(code)
}

func categoryCacheKey(q CategoryReportQuery, window core.DateRange) string {
	return fmt.Sprintf("categories|%s|%s|%s|%s|a=%s|c=%s",
		q.Type, window.From, window.Until, q.Currency,
		joinSorted(q.AccountIDs), joinSorted(q.CategoryIDs))
}

// budgetCacheKey includes a digest of the budget itself, so editing its
// granularity or targets misses the entries computed from the old version.
func budgetCacheKey(budget core.Budget, g core.Granularity, display string, window core.DateRange) string {
	h := fnv.New64a()
	for _, e := range budget.Entries {
		fmt.Fprintf(h, "%s|%s|%s;", e.CategoryID, e.Type, e.Target.String())
	}
	return fmt.Sprintf("budget|%s|%s:%x|%s|%s|%s|%s",
		budget.ID, budget.Granularity, h.Sum64(), g, window.From, window.Until, display)
}

func joinSorted(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
