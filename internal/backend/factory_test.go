package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"cronograma/internal/config"
	"cronograma/internal/core"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend, BudgetSource: BudgetFromStore}, ""},
		{"sqlite without path", Config{Type: SQLiteBackend, BudgetSource: BudgetFromStore}, "SQLite database path"},
		{"postgres without dsn", Config{Type: PostgresBackend, BudgetSource: BudgetFromStore}, "PostgreSQL DSN"},
		{"unknown type", Config{Type: "mongo", BudgetSource: BudgetFromStore}, "invalid backend type"},
		{"unknown source", Config{Type: MemoryBackend, BudgetSource: "csv"}, "invalid budget source"},
		{"sheets without id", Config{Type: MemoryBackend, BudgetSource: BudgetFromSheets}, "Spreadsheet ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "data/x.db", GoogleBudgetRange: "B!A:D"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.BudgetSource != BudgetFromStore {
		t.Errorf("got %+v", cfg)
	}
	if cfg.Sheets.BudgetRange != "B!A:D" {
		t.Errorf("sheets range not carried over: %+v", cfg.Sheets)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for the retired sheets backend type")
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	seed := "c1;p1;1;1500.00\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_budget.txt"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		MemorySeedDir: dir,
		BudgetSource:  BudgetFromStore,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Repository != nil {
		t.Error("memory backend has no repository")
	}
	if err := res.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	bt, err := res.Store.BudgetTotals(context.Background(), core.PlanRef{ClientID: "c1", ProjectID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if !bt.Total.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("budget total = %s", bt.Total)
	}
	cats, err := res.Store.ListCategories(context.Background())
	if err != nil || len(cats) == 0 {
		t.Errorf("expected default categories, got %v (%v)", cats, err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "cronograma.db")
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: path,
		BudgetSource: BudgetFromStore,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if res.Repository == nil {
		t.Fatal("expected repository")
	}
	if err := res.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	plan, err := res.Store.GetOrCreatePlan(context.Background(), core.Plan{
		ClientID: "c1", ProjectID: "p1", StartMonth: core.Month{Year: 2026, Month: 1}, MonthsCount: 12,
	})
	if err != nil {
		t.Fatalf("GetOrCreatePlan: %v", err)
	}
	if plan.ID == 0 {
		t.Error("plan should have an id")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := strings.Join(GetBackendTypeStrings(), ",")
	if got != "memory,sqlite,postgres" {
		t.Errorf("got %s", got)
	}
}
