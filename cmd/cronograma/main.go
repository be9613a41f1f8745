package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cronograma/internal/amqp"
	"cronograma/internal/cli"
	"cronograma/internal/core"
	apphttp "cronograma/internal/http"
	"cronograma/internal/log"
	"cronograma/internal/services"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	// Queued exports need a broker; synchronous downloads work without one.
	var (
		publisher  services.Publisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WithComponent(log.ComponentAMQP).Warn("AMQP unavailable, queued exports disabled", log.FieldError, err)
		} else {
			amqpClient = client
			publisher = client
		}
	}

	app, err := cli.Build(context.Background(), cfg, logger, publisher)
	if err != nil {
		logger.Error("Failed to start", log.FieldError, err)
		os.Exit(1)
	}
	app.Caches.StartCleanup(cacheCleanupInterval)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Schedule:            app.Schedule,
		Overrides:           app.Overrides,
		Calculations:        app.Calculations,
		Export:              app.Export,
		Metrics:             app.Metrics,
		Ready:               app.Backend.Ping,
		Locale:              core.MatchLocale(cfg.ReportLocale),
		ExportRatePerMinute: cfg.ExportRatePerMinute,
		Logger:              logger.WithComponent(log.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(context.Background(), logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		app.Close()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.WithComponent(log.ComponentAMQP).Warn("AMQP close failed", log.FieldError, err)
			}
		}
	})

	go func() {
		logger.Info("Starting cronograma server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"budget_source", cfg.BudgetSource,
			"queued_exports", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
