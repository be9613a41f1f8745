package backend

import (
	"fmt"
	"strings"

	"cronograma/internal/config"
	"cronograma/internal/sources/google"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	source := BudgetSource(appConfig.BudgetSource)
	if source == "" {
		source = BudgetFromStore
	}

	cfg := Config{
		Type:          backendType,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		PostgresDSN:   appConfig.PostgresDSN,
		MemorySeedDir: appConfig.MemorySeedDir,
		BudgetSource:  source,
		Sheets: google.Config{
			SpreadsheetID:   appConfig.GoogleSpreadsheetID,
			BudgetRange:     appConfig.GoogleBudgetRange,
			PaymentsRange:   appConfig.GooglePaymentsRange,
			CategoriesRange: appConfig.GoogleCategoriesRange,
		},
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("PostgreSQL DSN is required for postgres backend")
		}
	case MemoryBackend:
		// Seeds are optional
	}

	if !c.BudgetSource.IsValid() {
		return fmt.Errorf("invalid budget source: %q", c.BudgetSource)
	}
	if c.BudgetSource == BudgetFromSheets && strings.TrimSpace(c.Sheets.SpreadsheetID) == "" {
		return fmt.Errorf("Google Spreadsheet ID is required when the budget comes from sheets")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
