package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cronograma/internal/core"
	"cronograma/internal/sources"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client reads the budget, the payment plan and the category catalog from
// one spreadsheet. Each range starts with a header row.
type Client struct {
	svc             *gsheet.Service
	spreadsheetID   string
	budgetRange     string
	paymentsRange   string
	categoriesRange string
}

// Ensure interface conformance
var (
	_ sources.BudgetReader      = (*Client)(nil)
	_ sources.PaymentPlanReader = (*Client)(nil)
	_ sources.CategoryReader    = (*Client)(nil)
)

type Config struct {
	SpreadsheetID   string
	BudgetRange     string
	PaymentsRange   string
	CategoriesRange string
}

func (c Config) withDefaults() Config {
	if c.BudgetRange == "" {
		c.BudgetRange = "Presupuesto!A:D"
	}
	if c.PaymentsRange == "" {
		c.PaymentsRange = "Ministraciones!A:D"
	}
	if c.CategoriesRange == "" {
		c.CategoriesRange = "Mayores!A:D"
	}
	return c
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:             svc,
		spreadsheetID:   cfg.SpreadsheetID,
		budgetRange:     cfg.BudgetRange,
		paymentsRange:   cfg.PaymentsRange,
		categoriesRange: cfg.CategoriesRange,
	}, nil
}

// NewFromEnv reads GOOGLE_SPREADSHEET_ID and the optional
// GOOGLE_BUDGET_RANGE, GOOGLE_PAYMENTS_RANGE and GOOGLE_CATEGORIES_RANGE.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		BudgetRange:     strings.TrimSpace(os.Getenv("GOOGLE_BUDGET_RANGE")),
		PaymentsRange:   strings.TrimSpace(os.Getenv("GOOGLE_PAYMENTS_RANGE")),
		CategoriesRange: strings.TrimSpace(os.Getenv("GOOGLE_CATEGORIES_RANGE")),
	})
}

// newSheetsService initializes a read-only Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "scope", gsheet.SpreadsheetsReadonlyScope)
	return service, nil
}

func (c *Client) read(ctx context.Context, rng string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) BudgetTotals(ctx context.Context, ref core.PlanRef) (core.BudgetTotals, error) {
	values, err := c.read(ctx, c.budgetRange)
	if err != nil {
		return core.BudgetTotals{}, err
	}
	rows, err := parseBudget(values, ref)
	if err != nil {
		return core.BudgetTotals{}, err
	}
	return core.NewBudgetTotals(rows), nil
}

func (c *Client) Installments(ctx context.Context, ref core.PlanRef) ([]core.Installment, error) {
	values, err := c.read(ctx, c.paymentsRange)
	if err != nil {
		return nil, err
	}
	return parseInstallments(values, ref)
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	values, err := c.read(ctx, c.categoriesRange)
	if err != nil {
		return nil, err
	}
	return parseCategories(values)
}
