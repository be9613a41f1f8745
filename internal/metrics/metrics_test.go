package metrics

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cronograma/internal/core"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "rejected", Result(&core.ValidationError{Field: "amount", Reason: "bad", Err: core.ErrInvalidAmount}))
	assert.Equal(t, "not_found", Result(fmt.Errorf("line 1: %w", core.ErrNotFound)))
	assert.Equal(t, "partial", Result(fmt.Errorf("%w: %w", core.ErrPartialWrite, errors.New("x"))))
	assert.Equal(t, "error", Result(errors.New("disk full")))
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveMutation("line", "create", nil)
	m.ObserveMutation("line", "create", nil)
	m.CountWarning("missing_budget")
	m.CountExportJob("published")
	m.ObserveRender("pdf", 120*time.Millisecond, 3, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("line", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings.WithLabelValues("missing_budget")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportJobs.WithLabelValues("published")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveMutation("line", "delete", nil)
	m.CountWarning("negative_month")
	m.CountHTTPRequest("GET", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.CountHTTPRequest("GET", 404)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `cronograma_http_requests_total{class="4xx",method="GET"} 1`))
}
