package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"insights/internal/amqp"
	"insights/internal/backend"
	"insights/internal/cli"
	"insights/internal/config"
	apphttp "insights/internal/http"
	"insights/internal/log"
	"insights/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, cfg *config.Config) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	result, err := backend.NewFactory(logger.Logger.With("component", log.ComponentBackend)).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return fmt.Errorf("ledger backend %s: %w", cfg.DataBackend, err)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}()
	}

	rates, closeRates, err := cli.NewRateFetcher(cfg)
	if err != nil {
		return err
	}
	defer closeRates()

	reports, cacheManager := cli.NewReportService(cfg, result.Source, rates)
	if cacheManager != nil {
		defer cacheManager.Stop()
	}

	var ready apphttp.ReadinessChecker
	if result.Pinger != nil {
		ready = result.Pinger
	}
	serverCfg := apphttp.ServerConfig{
		Addr:           ":" + cfg.Port,
		DefaultUserID:  cfg.DefaultUserID,
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: cfg.TrustedProxies,
		RequestTimeout: cfg.RequestTimeout,
	}
	if cacheManager != nil {
		serverCfg.Caches = cacheManager
	}
	srv := apphttp.NewServer(serverCfg, logger.WithComponent(log.ComponentHTTP), reports, ready)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	if cfg.AMQPURL != "" {
		startInvalidationConsumer(ctx, logger, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, reports, result.Refresher)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	logger.Info("Starting insights server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"default_currency", cfg.DefaultCurrency,
		"static_rates", cfg.StaticRates != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}

// startInvalidationConsumer drops cached reports whenever a ledger.changed
// event arrives. A broker that is down at startup only disables the consumer.
func startInvalidationConsumer(ctx context.Context, logger *log.Logger, url, exchange, queue string, reports worker.ReportInvalidator, refresher backend.Refresher) {
	client, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		logger.Error("Failed to connect to AMQP, cache invalidation disabled", "error", err)
		return
	}

	var invalidator *worker.InvalidationWorker
	if refresher != nil {
		invalidator = worker.NewInvalidationWorker(reports, refresher)
	} else {
		invalidator = worker.NewInvalidationWorker(reports)
	}

	go func() {
		defer client.Close()
		if err := client.ConsumeLedgerChanged(ctx, invalidator.HandleLedgerChanged); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithComponent(log.ComponentAMQP).Error("Ledger event consumption stopped", "error", err)
		}
	}()
	logger.Info("Consuming ledger events", "exchange", exchange, "queue", queue)
}
