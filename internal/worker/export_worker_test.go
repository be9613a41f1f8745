package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cronograma/internal/amqp"
	"cronograma/internal/core"
	"cronograma/internal/report"
	"cronograma/internal/services"
)

type fakeRenderer struct {
	calls int
	got   services.ExportRequest
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, req services.ExportRequest) (*services.Export, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.Export{
		Filename:    "Cronograma_c1_p1_2026-03-10.xlsx",
		ContentType: req.Format.ContentType(),
		Format:      req.Format,
		Content:     []byte("document"),
	}, nil
}

func job(format string) *amqp.ExportJobMessage {
	ref := core.PlanRef{ClientID: "c1", ProjectID: "p1"}
	return amqp.NewExportJobMessage(ref, format, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExportWorker_WritesDocument(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	r := &fakeRenderer{}
	w := NewExportWorker(r, dir, nil)

	if err := w.HandleExportJob(context.Background(), job("xlsx")); err != nil {
		t.Fatalf("HandleExportJob: %v", err)
	}
	if r.got.Format != report.FormatXLSX {
		t.Errorf("format = %q", r.got.Format)
	}
	names := listDir(t, dir)
	if len(names) != 1 || names[0] != "Cronograma_c1_p1_2026-03-10.xlsx" {
		t.Fatalf("unexpected files: %v", names)
	}
	data, err := os.ReadFile(filepath.Join(dir, names[0]))
	if err != nil || string(data) != "document" {
		t.Errorf("content = %q (%v)", data, err)
	}
}

func TestExportWorker_RenderFailureIsRetried(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRenderer{err: errors.New("boom")}
	w := NewExportWorker(r, dir, nil)

	if err := w.HandleExportJob(context.Background(), job("pdf")); err == nil {
		t.Fatal("expected error so the job is requeued")
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("no file expected, got %v", names)
	}
}

func TestExportWorker_DropsPermanentFailures(t *testing.T) {
	dir := t.TempDir()

	r := &fakeRenderer{}
	w := NewExportWorker(r, dir, nil)
	if err := w.HandleExportJob(context.Background(), job("docx")); err != nil {
		t.Fatalf("bad format should be dropped, got %v", err)
	}
	if r.calls != 0 {
		t.Error("renderer should not run for an unsupported format")
	}

	r = &fakeRenderer{err: &core.ValidationError{Field: "client_id", Reason: "required", Err: core.ErrInvalidScope}}
	w = NewExportWorker(r, dir, nil)
	if err := w.HandleExportJob(context.Background(), job("pdf")); err != nil {
		t.Fatalf("validation failure should be dropped, got %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("no file expected, got %v", names)
	}
}
