package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"cronograma/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONHandlerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentApp, Handler: NewHandler(&buf, "json", slog.LevelInfo)})

	logger.WithComponent(ComponentSchedule).Info("line stored", FieldLineID, 7)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec[FieldComponent] != ComponentSchedule {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentSchedule)
	}
	if rec[FieldLineID] != float64(7) {
		t.Errorf("line_id = %v, want 7", rec[FieldLineID])
	}
}

func TestStructuredLoggerError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentApp, Handler: NewHandler(&buf, "text", slog.LevelInfo)})
	sl := NewStructuredLogger(logger)

	fields := NewFields().WithScope(core.PlanRef{ClientID: "acme", ProjectID: "tower"})
	sl.LogError(context.Background(), "render failed", errors.New("boom"), ComponentReport, OpRender, fields)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=boom", "client_id=acme", "operation=render", "component=report"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected fallback logger: %+v", l)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Handler: NewHandler(&buf, "json", slog.LevelInfo)})
	ctx := NewContext(context.Background(), base.With(FieldRequestID, "req_1"))

	got := FromContext(ctx)
	if got.Component() != ComponentHTTP {
		t.Fatalf("component = %q", got.Component())
	}
	NewStructuredLogger(got).LogError(ctx, "boom", errors.New("x"), ComponentExport, OpExport, NewFields())

	if n := strings.Count(buf.String(), `"component"`); n != 1 {
		t.Fatalf("component appears %d times in %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"request_id":"req_1"`) {
		t.Fatalf("request id missing: %s", buf.String())
	}
}
