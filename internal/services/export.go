package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronograma/internal/amqp"
	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/report"
)

// ErrExportsDisabled is returned by Enqueue when no broker is configured.
var ErrExportsDisabled = errors.New("asynchronous exports are not configured")

// Publisher sends export jobs to the worker. *amqp.Client satisfies it.
type Publisher interface {
	PublishExportJob(ctx context.Context, msg *amqp.ExportJobMessage) error
}

type ExportOptions struct {
	ReportName string
	Branding   report.Branding
	Locale     core.Locale
	Timeout    time.Duration
	Now        func() time.Time
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Logger     *log.Logger
}

// ExportRequest names the plan and how to present it. Empty names fall back
// to the scope ids; an empty Lang uses the service locale.
type ExportRequest struct {
	Ref         core.PlanRef
	ClientName  string
	ProjectName string
	Format      report.Format
	Reference   time.Time
	Lang        string
}

// Export is a finished document, ready to be written or streamed.
type Export struct {
	Filename    string
	ContentType string
	Format      report.Format
	Content     []byte
	Pages       int
}

type ExportService struct {
	calc       *CalculationService
	reportName string
	branding   report.Branding
	locale     core.Locale
	timeout    time.Duration
	now        func() time.Time
	publisher  Publisher
	metrics    *metrics.Metrics
	logger     *log.Logger
	events     *log.StructuredLogger
}

func NewExportService(calc *CalculationService, opts ExportOptions) *ExportService {
	if opts.ReportName == "" {
		opts.ReportName = "Cronograma"
	}
	if opts.Locale.Symbol == "" {
		opts.Locale = core.DefaultLocale()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	logger := opts.Logger.WithComponent(log.ComponentExport)
	return &ExportService{
		calc:       calc,
		reportName: opts.ReportName,
		branding:   opts.Branding,
		locale:     opts.Locale,
		timeout:    opts.Timeout,
		now:        opts.Now,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
	}
}

func (s *ExportService) localeFor(lang string) core.Locale {
	if strings.TrimSpace(lang) == "" {
		return s.locale
	}
	return core.MatchLocale(lang)
}

// Render builds the document synchronously under the render timeout. Either
// the whole artifact or an error is returned; a timeout surfaces as
// report.ErrRender wrapping context.DeadlineExceeded.
func (s *ExportService) Render(ctx context.Context, req ExportRequest) (*Export, error) {
	if err := req.Ref.Validate(); err != nil {
		return nil, err
	}
	if req.Reference.IsZero() {
		req.Reference = s.now()
	}
	if req.Format == "" {
		req.Format = report.FormatPDF
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	loc := s.localeFor(req.Lang)
	calc, err := s.calc.Calculate(ctx, req.Ref, req.Reference, loc.Lang())
	if err != nil {
		return nil, fmt.Errorf("calculate: %w", err)
	}

	clientName := firstNonEmpty(req.ClientName, req.Ref.ClientID)
	projectName := firstNonEmpty(req.ProjectName, req.Ref.ProjectID)
	generated := s.now()
	res, err := report.Render(ctx, req.Format, report.Data{
		Branding:    s.branding,
		ReportName:  s.reportName,
		ClientName:  clientName,
		ProjectName: projectName,
		Plan:        calc.Plan,
		GeneratedAt: generated,
		Reference:   calc.Reference,
		Locale:      loc,
		Lines:       calc.Lines,
		Bars:        calc.Bars,
		TotalBudget: calc.Calculations.TotalBudget,
		Matrix:      calc.Matrix,
	})
	if err == nil && ctx.Err() != nil {
		res, err = nil, fmt.Errorf("%w: %w", report.ErrRender, ctx.Err())
	}
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveRender(string(req.Format), elapsed, 0, err)
		s.logger.ErrorContext(ctx, "Document render failed",
			log.NewFields().WithScope(req.Ref).WithOperation(log.OpRender).WithError(err).ToSlice()...)
		return nil, err
	}
	s.metrics.ObserveRender(string(res.Format), elapsed, res.Pages, nil)

	out := &Export{
		Filename:    core.ReportFilename(s.reportName, clientName, projectName, generated, res.Format.Ext()),
		ContentType: res.Format.ContentType(),
		Format:      res.Format,
		Content:     res.Content,
		Pages:       res.Pages,
	}
	s.events.LogDocumentRendered(ctx, req.Ref, string(res.Format), out.Filename, out.Pages, len(out.Content), elapsed.Milliseconds())
	return out, nil
}

// Enqueue publishes an export job for the worker and returns it.
func (s *ExportService) Enqueue(ctx context.Context, req ExportRequest, requestedBy string) (*amqp.ExportJobMessage, error) {
	if s.publisher == nil {
		return nil, ErrExportsDisabled
	}
	if err := req.Ref.Validate(); err != nil {
		return nil, err
	}
	if req.Reference.IsZero() {
		req.Reference = s.now()
	}
	if req.Format == "" {
		req.Format = report.FormatPDF
	}
	msg := amqp.NewExportJobMessage(req.Ref, string(req.Format), req.Reference)
	msg.ClientName = req.ClientName
	msg.ProjectName = req.ProjectName
	msg.RequestedBy = requestedBy
	if err := s.publisher.PublishExportJob(ctx, msg); err != nil {
		s.metrics.CountExportJob("publish_failed")
		return nil, fmt.Errorf("publish export job: %w", err)
	}
	s.metrics.CountExportJob("queued")
	fields := log.NewFields().WithScope(req.Ref).WithOperation(log.OpExport)
	fields[log.FieldJobID] = msg.JobID
	fields[log.FieldFormat] = msg.Format
	s.logger.InfoContext(ctx, "Export job queued", fields.ToSlice()...)
	return msg, nil
}

// RequestFromJob rebuilds the render request carried by a job message.
func RequestFromJob(msg *amqp.ExportJobMessage) (ExportRequest, error) {
	format, err := report.ParseFormat(msg.Format)
	if err != nil {
		return ExportRequest{}, err
	}
	return ExportRequest{
		Ref:         msg.Ref(),
		ClientName:  msg.ClientName,
		ProjectName: msg.ProjectName,
		Format:      format,
		Reference:   msg.Reference,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
