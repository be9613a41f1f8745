// Package cli provides common process bootstrap shared by cmd/cronograma,
// cmd/cronograma-worker and cmd/cronograma-export.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cronograma/internal/backend"
	"cronograma/internal/cache"
	"cronograma/internal/config"
	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/report"
	"cronograma/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// makes it the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.FromSettings(cfg.LogLevel, cfg.LogFormat, component)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// The logger depends on the config, so report straight to stderr.
		fmt.Fprintf(os.Stderr, "configuration validation failed: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// App is the service graph every binary runs on.
type App struct {
	Config       *config.Config
	Logger       *log.Logger
	Metrics      *metrics.Metrics
	Backend      *backend.BackendResult
	Catalog      *cache.Catalog
	Caches       *cache.Manager
	Schedule     *services.ScheduleService
	Overrides    *services.OverrideService
	Calculations *services.CalculationService
	Export       *services.ExportService
}

// Build opens the configured backend and wires the services over it.
// publisher may be nil, which disables queued exports.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger, publisher services.Publisher) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	be, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}

	branding, err := report.LoadBranding(cfg.ReportBrandingFile)
	if err != nil {
		if be.Cleanup != nil {
			_ = be.Cleanup()
		}
		return nil, err
	}

	m := metrics.New()
	catalog := cache.NewCatalog(be.Store, cfg.CategoryCacheTTL)
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(catalog)

	schedule := services.NewScheduleService(be.Store, services.ScheduleOptions{
		HorizonMonths: cfg.DefaultHorizonMonths,
		Catalog:       catalog,
		Metrics:       m,
		Logger:        logger,
	})
	calc := services.NewCalculationService(services.NewSnapshotLoader(schedule, services.SnapshotSources{
		Lines:     be.Store,
		Overrides: be.Store,
		Budget:    be.Store,
		Payments:  be.Store,
		Catalog:   catalog,
	}), nil, m, logger)

	overrides := services.NewOverrideService(schedule, be.Store, services.OverrideOptions{Metrics: m, Logger: logger})
	export := services.NewExportService(calc, services.ExportOptions{
		ReportName: cfg.ReportName,
		Branding:   branding,
		Locale:     core.MatchLocale(cfg.ReportLocale),
		Timeout:    cfg.RenderTimeout,
		Publisher:  publisher,
		Metrics:    m,
		Logger:     logger,
	})

	return &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      m,
		Backend:      be,
		Catalog:      catalog,
		Caches:       caches,
		Schedule:     schedule,
		Overrides:    overrides,
		Calculations: calc,
		Export:       export,
	}, nil
}

// Close stops background cache cleanup and releases the backend.
func (a *App) Close() {
	a.Caches.Stop()
	if a.Backend.Cleanup != nil {
		if err := a.Backend.Cleanup(); err != nil {
			a.Logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}
}

// GracefulShutdown returns a context cancelled on SIGINT, SIGTERM or when
// parent ends. cleanup then runs once with a context bounded by timeout, and
// done closes after it.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
