package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cronograma/internal/amqp"
	"cronograma/internal/cache"
	"cronograma/internal/core"
	"cronograma/internal/metrics"
	"cronograma/internal/services"
	"cronograma/internal/sources/memory"
)

var testScope = core.PlanRef{ClientID: "c1", ProjectID: "p1"}

func fixedNow() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []*amqp.ExportJobMessage
}

func (p *recordingPublisher) PublishExportJob(_ context.Context, msg *amqp.ExportJobMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, msg)
	return nil
}

type testServer struct {
	srv *Server
	mem *memory.Store
}

type options struct {
	publisher services.Publisher
	ready     func(context.Context) error
	rate      int
}

func newTestServer(t *testing.T, opts options) *testServer {
	t.Helper()
	mem := memory.New([]core.Category{
		{ID: 1, Code: "01", Name: "Preliminares"},
		{ID: 2, Code: "02", Name: "Cimentación"},
	})
	m := metrics.New()
	catalog := cache.NewCatalog(mem, time.Minute)
	schedule := services.NewScheduleService(mem, services.ScheduleOptions{Now: fixedNow, Catalog: catalog, Metrics: m})
	calc := services.NewCalculationService(services.NewSnapshotLoader(schedule, services.SnapshotSources{
		Lines:     mem,
		Overrides: mem,
		Budget:    mem,
		Payments:  mem,
		Catalog:   catalog,
	}), nil, m, nil)
	srv := NewServer(":0", Deps{
		Schedule:     schedule,
		Overrides:    services.NewOverrideService(schedule, mem, services.OverrideOptions{Now: fixedNow, Metrics: m}),
		Calculations: calc,
		Export: services.NewExportService(calc, services.ExportOptions{
			Now:       fixedNow,
			Publisher: opts.publisher,
			Metrics:   m,
			Timeout:   time.Minute,
		}),
		Metrics:             m,
		Ready:               opts.ready,
		Now:                 fixedNow,
		ExportRatePerMinute: opts.rate,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, mem: mem}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, want, rr.Body.String())
	}
}

const lineBody = `{"category_id":1,"amount":"120,000.00","start":{"month":"202603","week":1},"end":{"month":"202605","week":4}}`

func createLine(t *testing.T, ts *testServer) core.Line {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/plans/c1/p1/lines", lineBody)
	expectStatus(t, rr, http.StatusCreated)
	var l core.Line
	decodeBody(t, rr, &l)
	return l
}

func TestHealthReadyAndMetrics(t *testing.T) {
	ts := newTestServer(t, options{ready: func(context.Context) error { return errors.New("db down") }})

	rr := ts.do(t, http.MethodGet, "/healthz", "")
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	rr = ts.do(t, http.MethodGet, "/readyz", "")
	expectStatus(t, rr, http.StatusServiceUnavailable)

	rr = ts.do(t, http.MethodGet, "/metrics", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "cronograma_http_requests_total") {
		t.Fatal("http request counter not exported")
	}
}

func TestMonths(t *testing.T) {
	ts := newTestServer(t, options{})

	rr := ts.do(t, http.MethodGet, "/api/months?offset=-1&count=3", "", "Accept-Language", "en-US")
	expectStatus(t, rr, http.StatusOK)
	var got struct {
		Current string `json:"current"`
		Months  []struct {
			Month string `json:"month"`
			Label string `json:"label"`
		} `json:"months"`
	}
	decodeBody(t, rr, &got)
	if got.Current != "202603" {
		t.Fatalf("current = %q", got.Current)
	}
	if len(got.Months) != 3 || got.Months[0].Month != "202602" || got.Months[2].Month != "202604" {
		t.Fatalf("months = %+v", got.Months)
	}
	if got.Months[0].Label != "February 2026" {
		t.Fatalf("label = %q", got.Months[0].Label)
	}

	for _, q := range []string{"count=0", "count=500", "offset=x"} {
		rr := ts.do(t, http.MethodGet, "/api/months?"+q, "")
		expectStatus(t, rr, http.StatusBadRequest)
	}
}

func TestLineLifecycle(t *testing.T) {
	ts := newTestServer(t, options{})

	l := createLine(t, ts)
	if l.ID == 0 || l.Activity == nil || l.Activity.DurationWeeks != 12 {
		t.Fatalf("line = %+v", l)
	}
	if !l.Amount.Equal(decimal.RequireFromString("120000")) {
		t.Fatalf("amount = %s", l.Amount)
	}

	rr := ts.do(t, http.MethodGet, "/api/plans/c1/p1", "")
	expectStatus(t, rr, http.StatusOK)
	var plan struct {
		Plan  core.Plan   `json:"plan"`
		Lines []core.Line `json:"lines"`
	}
	decodeBody(t, rr, &plan)
	if plan.Plan.StartMonth != (core.Month{Year: 2026, Month: 3}) || len(plan.Lines) != 1 {
		t.Fatalf("plan = %+v", plan)
	}

	lineURL := "/api/lines/" + itoa(l.ID)
	rr = ts.do(t, http.MethodPatch, lineURL, `{"amount":1000,"is_discount":true}`)
	expectStatus(t, rr, http.StatusOK)
	var patched core.Line
	decodeBody(t, rr, &patched)
	if !patched.IsDiscount || !patched.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("patched = %+v", patched)
	}

	actURL := "/api/activities/" + itoa(l.Activity.ID)
	rr = ts.do(t, http.MethodPatch, actURL, `{"start":{"month":"202606","week":1}}`)
	expectStatus(t, rr, http.StatusBadRequest)
	rr = ts.do(t, http.MethodPatch, actURL, `{"end":{"month":"202603","week":4}}`)
	expectStatus(t, rr, http.StatusOK)
	var act core.Activity
	decodeBody(t, rr, &act)
	if act.DurationWeeks != 4 {
		t.Fatalf("duration = %d", act.DurationWeeks)
	}

	rr = ts.do(t, http.MethodPost, lineURL+"/activity", `{"start":{"month":"202603","week":1},"end":{"month":"202603","week":2}}`)
	expectStatus(t, rr, http.StatusConflict)

	expectStatus(t, ts.do(t, http.MethodDelete, actURL, ""), http.StatusNoContent)
	rr = ts.do(t, http.MethodPost, lineURL+"/activity", `{"start":{"month":"202603","week":1},"end":{"month":"202603","week":2}}`)
	expectStatus(t, rr, http.StatusCreated)

	expectStatus(t, ts.do(t, http.MethodDelete, lineURL, ""), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodDelete, lineURL, ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/lines/abc", ""), http.StatusBadRequest)
}

func TestCreateLineRejections(t *testing.T) {
	ts := newTestServer(t, options{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown field", `{"category_id":1,"amount":"1","colour":"red"}`, ""},
		{"empty body", ``, ""},
		{"bad amount", `{"category_id":1,"amount":"-5","start":{"month":"202603","week":1},"end":{"month":"202603","week":2}}`, "amount"},
		{"unknown category", `{"category_id":99,"amount":"5","start":{"month":"202603","week":1},"end":{"month":"202603","week":2}}`, "category_id"},
		{"end before start", `{"category_id":1,"amount":"5","start":{"month":"202604","week":1},"end":{"month":"202603","week":2}}`, ""},
		{"bad week", `{"category_id":1,"amount":"5","start":{"month":"202603","week":5},"end":{"month":"202604","week":2}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/plans/c1/p1/lines", tt.body)
			expectStatus(t, rr, http.StatusBadRequest)
			var body errorBody
			decodeBody(t, rr, &body)
			if body.Error == "" {
				t.Fatal("empty error message")
			}
			if tt.field != "" && body.Field != tt.field {
				t.Fatalf("field = %q, want %q", body.Field, tt.field)
			}
		})
	}

	rr := ts.do(t, http.MethodGet, "/api/plans/c1/p1", "")
	var plan struct {
		Lines []core.Line `json:"lines"`
	}
	decodeBody(t, rr, &plan)
	if len(plan.Lines) != 0 {
		t.Fatalf("rejected input was stored: %+v", plan.Lines)
	}
}

func TestCalculationsAndOverrides(t *testing.T) {
	ts := newTestServer(t, options{})
	ts.mem.SetBudget(testScope, []core.CategoryAmount{{CategoryID: 1, Amount: decimal.RequireFromString("120000")}})
	createLine(t, ts)

	rr := ts.do(t, http.MethodPut, "/api/plans/c1/p1/overrides",
		`{"overrides":[{"month":"202604","concept":"gastoPorMes","value":"750.50"}],"updated_by":"ana"}`)
	expectStatus(t, rr, http.StatusOK)
	var saved struct {
		Overrides []core.MatrixOverride `json:"overrides"`
	}
	decodeBody(t, rr, &saved)
	if len(saved.Overrides) != 1 || saved.Overrides[0].UpdatedBy != "ana" || !saved.Overrides[0].Supersedes {
		t.Fatalf("saved = %+v", saved)
	}

	rr = ts.do(t, http.MethodPut, "/api/plans/c1/p1/overrides",
		`{"overrides":[{"month":"202604","concept":"nope","value":"1"}]}`)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodGet, "/api/plans/c1/p1/calculations?ref=2026-04-15", "")
	expectStatus(t, rr, http.StatusOK)
	var calc struct {
		Reference core.MonthWeek `json:"reference"`
		Matrix    struct {
			HasOverrides bool `json:"has_overrides"`
		} `json:"matrix"`
	}
	decodeBody(t, rr, &calc)
	if !calc.Matrix.HasOverrides {
		t.Fatal("override not reflected in matrix")
	}
	if calc.Reference != (core.MonthWeek{Month: core.Month{Year: 2026, Month: 4}, Week: 3}) {
		t.Fatalf("reference = %+v", calc.Reference)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/plans/c1/p1/calculations?ref=soon", ""), http.StatusBadRequest)

	rr = ts.do(t, http.MethodGet, "/api/plans/c1/p1/overrides", "")
	expectStatus(t, rr, http.StatusOK)

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/plans/c1/p1/overrides/202604/gastoPorMes", ""), http.StatusNoContent)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/plans/c1/p1/overrides/202604/gastoPorMes", ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/plans/c1/p1/overrides/2026/gastoPorMes", ""), http.StatusBadRequest)
}

func TestReportDownloadIsRateLimited(t *testing.T) {
	ts := newTestServer(t, options{rate: 1})
	createLine(t, ts)

	rr := ts.do(t, http.MethodGet, "/api/plans/c1/p1/report.pdf?client_name=ACME", "")
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Cronograma_ACME_p1_2026-03-10.pdf") {
		t.Fatalf("content disposition = %q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "%PDF") {
		t.Fatal("body is not a PDF")
	}

	rr = ts.do(t, http.MethodGet, "/api/plans/c1/p1/report.xlsx", "")
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestSpreadsheetDownload(t *testing.T) {
	ts := newTestServer(t, options{})
	createLine(t, ts)

	rr := ts.do(t, http.MethodGet, "/api/plans/c1/p1/report.xlsx", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "_2026-03-10.xlsx") {
		t.Fatalf("content disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	// xlsx files are zip archives.
	if !strings.HasPrefix(rr.Body.String(), "PK") {
		t.Fatal("body is not a zip archive")
	}
}

func TestEnqueueExport(t *testing.T) {
	ts := newTestServer(t, options{})
	rr := ts.do(t, http.MethodPost, "/api/plans/c1/p1/exports", "")
	expectStatus(t, rr, http.StatusServiceUnavailable)

	pub := &recordingPublisher{}
	ts = newTestServer(t, options{publisher: pub})
	rr = ts.do(t, http.MethodPost, "/api/plans/c1/p1/exports", `{"format":"xlsx","reference":"2026-05-01","requested_by":"ana"}`)
	expectStatus(t, rr, http.StatusAccepted)
	var job struct {
		JobID     string `json:"job_id"`
		Format    string `json:"format"`
		Reference string `json:"reference"`
	}
	decodeBody(t, rr, &job)
	if job.JobID == "" || job.Format != "xlsx" || job.Reference != "2026-05-01" {
		t.Fatalf("job = %+v", job)
	}
	if len(pub.jobs) != 1 || pub.jobs[0].RequestedBy != "ana" {
		t.Fatalf("published = %+v", pub.jobs)
	}

	rr = ts.do(t, http.MethodPost, "/api/plans/c1/p1/exports", `{"format":"docx"}`)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t, options{})
	expectStatus(t, ts.do(t, http.MethodGet, "/api/nowhere", ""), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodPut, "/api/lines/1", `{}`), http.StatusMethodNotAllowed)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/plans/c1/p1/../../.env", ""), http.StatusBadRequest)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
