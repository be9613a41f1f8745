// Package worker consumes export jobs and writes the rendered documents.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cronograma/internal/amqp"
	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/services"
)

// Renderer produces a finished document. *services.ExportService satisfies it.
type Renderer interface {
	Render(ctx context.Context, req services.ExportRequest) (*services.Export, error)
}

// ExportWorker renders the documents requested through the queue
type ExportWorker struct {
	renderer  Renderer
	outputDir string
	metrics   *metrics.Metrics
}

func NewExportWorker(renderer Renderer, outputDir string, m *metrics.Metrics) *ExportWorker {
	return &ExportWorker{
		renderer:  renderer,
		outputDir: outputDir,
		metrics:   m,
	}
}

// HandleExportJob renders one job and stores it under the output directory.
// Jobs that can never succeed (bad format, unknown scope) are dropped with a
// log line instead of being returned to the queue.
func (w *ExportWorker) HandleExportJob(ctx context.Context, msg *amqp.ExportJobMessage) error {
	start := time.Now()
	slog.InfoContext(ctx, "Processing export job",
		"job_id", msg.JobID,
		"client_id", msg.ClientID,
		"project_id", msg.ProjectID,
		"format", msg.Format)

	req, err := services.RequestFromJob(msg)
	if err != nil {
		w.metrics.CountExportJob("rejected")
		slog.ErrorContext(ctx, "Dropping export job", "job_id", msg.JobID, "error", err)
		return nil
	}

	doc, err := w.renderer.Render(ctx, req)
	if err != nil {
		if core.IsValidation(err) || errors.Is(err, core.ErrNotFound) {
			w.metrics.CountExportJob("rejected")
			slog.ErrorContext(ctx, "Dropping export job", "job_id", msg.JobID, "error", err)
			return nil
		}
		w.metrics.CountExportJob("failed")
		w.fail(ctx, msg, "Export render failed", err)
		return fmt.Errorf("render job %s: %w", msg.JobID, err)
	}

	path, err := w.write(doc)
	if err != nil {
		w.metrics.CountExportJob("failed")
		w.fail(ctx, msg, "Export write failed", err)
		return fmt.Errorf("write job %s: %w", msg.JobID, err)
	}

	w.metrics.CountExportJob("completed")
	slog.InfoContext(ctx, "Export job completed",
		"job_id", msg.JobID,
		"path", path,
		"pages", doc.Pages,
		"bytes", len(doc.Content),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *ExportWorker) fail(ctx context.Context, msg *amqp.ExportJobMessage, text string, err error) {
	fields := log.NewFields().WithScope(core.PlanRef{ClientID: msg.ClientID, ProjectID: msg.ProjectID})
	fields["job_id"] = msg.JobID
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, text, err, log.ComponentWorker, log.OpExport, fields)
}

// write stores the document through a temporary file in the same directory
// so readers never see a truncated file.
func (w *ExportWorker) write(doc *services.Export) (string, error) {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(w.outputDir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.Content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	final := filepath.Join(w.outputDir, doc.Filename)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("rename: %w", err)
	}
	return final, nil
}
