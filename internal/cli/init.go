// Package cli holds the startup steps shared by cmd/insights and
// cmd/insights-report.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"insights/internal/cache"
	"insights/internal/config"
	"insights/internal/core"
	"insights/internal/currency"
	"insights/internal/ledger"
	"insights/internal/log"
	"insights/internal/services"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// makes it the slog default.
func SetupLogger(component string) *log.Logger {
	level := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := log.New(log.Config{
		Level:     level,
		Component: component,
		Handler:   log.NewHandler(os.Stdout, level, os.Getenv("LOG_FORMAT")),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// NewRateFetcher returns the static table when STATIC_RATES is set and the
// cached HTTP source otherwise. The returned close func is never nil.
func NewRateFetcher(cfg *config.Config) (currency.RateFetcher, func(), error) {
	if cfg.StaticRates != "" {
		table, err := currency.ParseStaticRates(cfg.StaticRates)
		if err != nil {
			return nil, nil, fmt.Errorf("static rates: %w", err)
		}
		return currency.NewStaticFetcher(table), func() {}, nil
	}

	base := cfg.DefaultCurrency
	if base == "" {
		base = core.DefaultCurrency
	}
	remote := currency.NewHTTPFetcher(cfg.RatesURL, base, nil, cfg.RatesTimeout)
	if cfg.RatesCacheTTL <= 0 {
		return remote, func() {}, nil
	}
	cached, err := currency.NewCachedFetcher(remote, cfg.RatesCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// NewReportService wires the report caches around source. The manager is
// nil when caching is disabled; otherwise its cleanup loop is already running.
func NewReportService(cfg *config.Config, source ledger.Source, rates currency.RateFetcher) (*services.ReportService, *cache.Manager) {
	opts := []services.Option{services.WithDefaultCurrency(cfg.DefaultCurrency)}
	if cfg.ReportCacheSize <= 0 || cfg.ReportCacheTTL <= 0 {
		return services.NewReportService(source, rates, opts...), nil
	}

	reports := cache.NewLRUCache[core.CategoryReport](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	budgets := cache.NewLRUCache[core.BudgetReport](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	manager := cache.NewManager()
	manager.Register("category_reports", reports)
	manager.Register("budgets", budgets)
	manager.StartCleanup(cfg.ReportCacheTTL)

	opts = append(opts, services.WithCaches(services.Caches{Reports: reports, Budgets: budgets}))
	return services.NewReportService(source, rates, opts...), manager
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown, "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown, "timeout", timeout)
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
