package main

import (
	"context"
	"os"
	"time"

	"cronograma/internal/amqp"
	"cronograma/internal/cli"
	"cronograma/internal/log"
	"cronograma/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	logger.Info("Starting cronograma-worker",
		log.FieldOperation, log.OpStartup,
		"backend", cfg.DataBackend,
		"output_dir", cfg.ExportOutputDir,
		"queue", cfg.AMQPQueue)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.WithComponent(log.ComponentAMQP).Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}

	// The worker only renders, so it never publishes.
	app, err := cli.Build(context.Background(), cfg, logger, nil)
	if err != nil {
		_ = client.Close()
		logger.Error("Failed to start", log.FieldError, err)
		os.Exit(1)
	}

	exports := worker.NewExportWorker(app.Export, cfg.ExportOutputDir, app.Metrics)

	ctx, done := cli.GracefulShutdown(context.Background(), logger, shutdownTimeout, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Warn("AMQP close failed", log.FieldError, err)
		}
		app.Close()
	})

	go func() {
		if err := client.ConsumeExportJobs(ctx, exports.HandleExportJob); err != nil && ctx.Err() == nil {
			logger.Error("Export consumer stopped", log.FieldError, err)
			os.Exit(1)
		}
	}()

	logger.Info("Worker started, waiting for export jobs")
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
