package backend

import (
	"context"
	"fmt"
	"log/slog"

	"cronograma/internal/sources"
	"cronograma/internal/sources/google"
	"cronograma/internal/sources/memory"
	"cronograma/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLBackend(storage.NewSQLiteRepository(config.SQLiteDBPath))
		if err == nil {
			f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		}
	case PostgresBackend:
		res, err = f.createSQLBackend(storage.NewPostgresRepository(config.PostgresDSN))
		if err == nil {
			f.logger.Info("Initialized PostgreSQL backend")
		}
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.BudgetSource == BudgetFromSheets {
		cli, err := google.New(ctx, config.Sheets)
		if err != nil {
			if res.Cleanup != nil {
				_ = res.Cleanup()
			}
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		res.Store = withSheets(res.Store, cli)
		f.logger.Info("Budget, payments and categories read from Google Sheets",
			"spreadsheet_id", config.Sheets.SpreadsheetID)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLBackend(repo *storage.Repository, err error) (*BackendResult, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	return &BackendResult{
		Store:      repo,
		Repository: repo,
		Cleanup:    repo.Close,
		Ping:       repo.Ping,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var (
		store *memory.Store
		err   error
	)
	if config.MemorySeedDir != "" {
		store, err = memory.NewFromFiles(config.MemorySeedDir)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory backend: %w", err)
		}
	} else {
		store = memory.New(memory.DefaultCategories())
	}

	f.logger.Info("Initialized memory backend", "seed_directory", config.MemorySeedDir)

	return &BackendResult{
		Store: store,
		Ping:  func(context.Context) error { return nil },
	}, nil
}

// sheetsStore keeps schedule and overrides in the data backend and reads the
// external collaborators from a spreadsheet.
type sheetsStore struct {
	sources.ScheduleStore
	sources.OverrideStore
	sources.CategoryReader
	sources.BudgetReader
	sources.PaymentPlanReader
}

func withSheets(base sources.Store, cli *google.Client) sources.Store {
	return sheetsStore{
		ScheduleStore:     base,
		OverrideStore:     base,
		CategoryReader:    cli,
		BudgetReader:      cli,
		PaymentPlanReader: cli,
	}
}
