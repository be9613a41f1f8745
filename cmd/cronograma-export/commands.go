package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cronograma/internal/cli"
	"cronograma/internal/core"
	"cronograma/internal/report"
	"cronograma/internal/services"
	"cronograma/internal/sources/memory"
	"cronograma/internal/storage"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func renderCmd() *cobra.Command {
	var (
		clientID    string
		projectID   string
		clientName  string
		projectName string
		format      string
		refDate     string
		lang        string
		out         string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a plan as PDF or XLSX",
		Long: `Render the schedule of one plan and write it to disk.

--out may name a file or an existing directory; in the latter case the
standard report filename is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			var reference time.Time
			if refDate != "" {
				reference, err = time.Parse(time.DateOnly, refDate)
				if err != nil {
					return fmt.Errorf("--ref must be YYYY-MM-DD: %w", err)
				}
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			app, err := cli.Build(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			doc, err := app.Export.Render(ctx, services.ExportRequest{
				Ref:         core.PlanRef{ClientID: clientID, ProjectID: projectID},
				ClientName:  clientName,
				ProjectName: projectName,
				Format:      f,
				Reference:   reference,
				Lang:        lang,
			})
			if err != nil {
				return err
			}

			path := out
			if info, err := os.Stat(out); err == nil && info.IsDir() {
				path = filepath.Join(out, doc.Filename)
			}
			if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pages, %d bytes)\n", path, doc.Pages, len(doc.Content))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Client ID (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&clientName, "client-name", "", "Client name printed in the header")
	cmd.Flags().StringVar(&projectName, "project-name", "", "Project name printed in the header")
	cmd.Flags().StringVar(&format, "format", "pdf", "Output format: pdf or xlsx")
	cmd.Flags().StringVar(&refDate, "ref", "", "Reference date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&lang, "lang", "", "Language for labels (default REPORT_LOCALE)")
	cmd.Flags().StringVar(&out, "out", ".", "Output file or directory")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func monthsCmd() *cobra.Command {
	var (
		ref    string
		offset int
		count  int
		lang   string
	)

	cmd := &cobra.Command{
		Use:   "months",
		Short: "Print a range of months with their labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := core.MonthOf(time.Now())
			if ref != "" {
				m, err := core.ParseMonth(ref)
				if err != nil {
					return err
				}
				start = m
			}
			if count < 0 {
				return errors.New("--count must not be negative")
			}
			loc := core.MatchLocale(lang)
			for _, m := range core.GenerateMonthRange(start, offset, count) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.Token(), loc.MonthLabel(m))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ref, "ref", "", "Reference month YYYYMM (default current month)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Months to shift the start by")
	cmd.Flags().IntVar(&count, "count", 12, "Number of months")
	cmd.Flags().StringVar(&lang, "lang", "", "Language for labels")

	return cmd
}

// sqlTarget resolves the configured SQL backend; the memory backend has no
// schema to manage.
func sqlTarget(dataBackend, sqlitePath, postgresDSN string) (storage.Dialect, string, error) {
	switch strings.ToLower(dataBackend) {
	case string(storage.SQLite):
		return storage.SQLite, sqlitePath, nil
	case string(storage.Postgres):
		return storage.Postgres, postgresDSN, nil
	default:
		return "", "", fmt.Errorf("DATA_BACKEND %q has no database to manage", dataBackend)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			dialect, dsn, err := sqlTarget(cfg.DataBackend, cfg.SQLiteDBPath, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			if err := storage.RunMigrations(dialect, dsn); err != nil {
				return err
			}
			logger.Info("Schema up to date", "dialect", dialect)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import categories, budgets and payment plans from seed files",
		Long: `Load seed_categories.txt, seed_budget.txt and seed_payments.txt from
--dir and write them to the configured SQL database. Budgets and payment
plans replace what the database holds for the same client and project.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := memory.NewFromFiles(dir)
			if err != nil {
				return fmt.Errorf("read seed files: %w", err)
			}
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			app, err := cli.Build(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer app.Close()
			repo := app.Backend.Repository
			if repo == nil {
				return fmt.Errorf("DATA_BACKEND %q has no database to seed", cfg.DataBackend)
			}

			cats, _ := seed.ListCategories(ctx)
			if err := repo.ImportCategories(ctx, cats); err != nil {
				return err
			}
			scopes := seed.Scopes()
			for _, ref := range scopes {
				if err := repo.ReplaceBudget(ctx, ref, seed.BudgetRows(ref)); err != nil {
					return fmt.Errorf("%s/%s: %w", ref.ClientID, ref.ProjectID, err)
				}
				inst, _ := seed.Installments(ctx, ref)
				if err := repo.ReplaceInstallments(ctx, ref, inst); err != nil {
					return fmt.Errorf("%s/%s: %w", ref.ClientID, ref.ProjectID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d categories and %d scopes\n", len(cats), len(scopes))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "seed", "Directory with the seed files")

	return cmd
}
