package cli

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cronograma/internal/config"
	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/services"
)

func TestBuildMemoryApp(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("MEMORY_SEED_DIR", t.TempDir())
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	app, err := Build(context.Background(), cfg, log.FromSettings("error", "text", "test"), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	ref := core.PlanRef{ClientID: "acme", ProjectID: "casa-1"}
	plan, err := app.Schedule.Plan(context.Background(), ref)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.MonthsCount != cfg.DefaultHorizonMonths {
		t.Fatalf("months = %d", plan.MonthsCount)
	}
	if _, err := app.Export.Enqueue(context.Background(), services.ExportRequest{Ref: ref}, "test"); !errors.Is(err, services.ErrExportsDisabled) {
		t.Fatalf("enqueue without broker: %v", err)
	}
}

func TestBuildRejectsMissingBranding(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("MEMORY_SEED_DIR", t.TempDir())
	cfg := config.Load()
	cfg.ReportBrandingFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := Build(context.Background(), cfg, log.FromSettings("error", "text", "test"), nil); err == nil {
		t.Fatal("expected error for missing branding file")
	}
}

func TestGracefulShutdownFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cleaned := make(chan struct{})
	ctx, done := GracefulShutdown(parent, log.FromSettings("error", "text", "test"), time.Second, func(context.Context) {
		close(cleaned)
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	<-cleaned
	if ctx.Err() == nil {
		t.Fatal("context not cancelled")
	}
}
