package backend

import (
	"context"

	"cronograma/internal/sources"
	"cronograma/internal/sources/google"
	"cronograma/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and what the process needs to manage it.
type BackendResult struct {
	Store sources.Store
	// Repository is set for the SQL backends; admin commands import into it.
	Repository *storage.Repository
	Cleanup    CleanupFunc
	Ping       func(ctx context.Context) error
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresDSN  string

	// Memory backend seed files; empty uses the built-in categories only.
	MemorySeedDir string

	// BudgetSource decides where budget totals, installments and the
	// category catalog come from.
	BudgetSource BudgetSource
	Sheets       google.Config
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

type BudgetSource string

const (
	BudgetFromStore  BudgetSource = "store"
	BudgetFromSheets BudgetSource = "sheets"
)

func (bs BudgetSource) IsValid() bool {
	return bs == BudgetFromStore || bs == BudgetFromSheets
}
