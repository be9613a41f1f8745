package log

import (
	"context"
	"log/slog"
	"net/http"

	"cronograma/internal/core"
)

type contextKey struct{}

// LoggerContextKey holds the request-scoped *Logger.
var LoggerContextKey = contextKey{}

// NewContext returns ctx carrying logger; FromContext reads it back.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger, or one over slog.Default with
// component "unknown" outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// StructuredLogger writes the recurring events of the API and the export
// pipeline with a fixed field layout.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.write(ctx, slog.LevelInfo, "HTTP request started", fields)
}

// LogHTTPEnd logs at WARN for 4xx and ERROR for 5xx.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.write(ctx, level, "HTTP request completed", fields)
}

// LogLineCreated logs a line stored together with its activity.
func (sl *StructuredLogger) LogLineCreated(ctx context.Context, ref core.PlanRef, l core.Line) {
	fields := NewFields().
		WithScope(ref).
		WithLine(l).
		WithOperation(OpCreate).
		WithComponent(ComponentSchedule)
	if l.Activity != nil {
		fields[FieldActivityID] = l.Activity.ID
	}
	sl.write(ctx, slog.LevelInfo, "Line created successfully", fields)
}

// LogDocumentRendered logs a finished export.
func (sl *StructuredLogger) LogDocumentRendered(ctx context.Context, ref core.PlanRef, format, filename string, pages, size int, durationMs int64) {
	fields := NewFields().
		WithScope(ref).
		WithOperation(OpRender).
		WithComponent(ComponentReport)
	fields[FieldFormat] = format
	fields[FieldFilename] = filename
	fields[FieldPages] = pages
	fields[FieldBytes] = size
	fields[FieldDuration] = durationMs
	sl.write(ctx, slog.LevelInfo, "Document rendered", fields)
}

// LogError attaches err, operation and component to fields and logs at ERROR.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields = fields.WithError(err).WithOperation(operation).WithComponent(component)
	sl.write(ctx, slog.LevelError, msg, fields)
}

// write logs through the underlying slog.Logger so the component in fields
// is the only one on the record.
func (sl *StructuredLogger) write(ctx context.Context, level slog.Level, msg string, fields LogFields) {
	if _, ok := fields[FieldComponent]; !ok {
		fields[FieldComponent] = sl.logger.component
	}
	sl.logger.Logger.Log(ctx, level, msg, fields.ToSlice()...)
}
