package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cronograma/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"format":"pdf"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"format":"pdf","extra":1}`, true},
		{"two values", `{"format":"pdf"}{"format":"xlsx"}`, true},
		{"malformed", `{"format":`, true},
		{"too large", `{"format":"` + strings.Repeat("x", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v exportRequest
			err := decodeJSON(httptest.NewRecorder(), req, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var reqErr *requestError
			if err != nil && !errors.As(err, &reqErr) {
				t.Fatalf("error %v is not a requestError", err)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	for raw, ok := range map[string]bool{"1": true, "42": true, "0": false, "-3": false, "x": false, "": false} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", raw)
		_, err := pathID(req, "id")
		if (err == nil) != ok {
			t.Errorf("pathID(%q) err = %v", raw, err)
		}
	}
}

func TestPlanRef(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("client", " acme ")
	req.SetPathValue("project", "casa-1")
	ref, err := planRef(req)
	if err != nil {
		t.Fatal(err)
	}
	if ref != (core.PlanRef{ClientID: "acme", ProjectID: "casa-1"}) {
		t.Fatalf("ref = %+v", ref)
	}

	req.SetPathValue("project", "\t")
	if _, err := planRef(req); !core.IsValidation(err) {
		t.Fatalf("blank project: err = %v", err)
	}
}

func TestReferenceTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	got, err := referenceTime(httptest.NewRequest(http.MethodGet, "/", nil), now)
	if err != nil || !got.Equal(now) {
		t.Fatalf("default: %v %v", got, err)
	}
	got, err = referenceTime(httptest.NewRequest(http.MethodGet, "/?ref=2026-07-01", nil), now)
	if err != nil || got.Month() != time.July {
		t.Fatalf("explicit: %v %v", got, err)
	}
	if _, err := referenceTime(httptest.NewRequest(http.MethodGet, "/?ref=07/01/2026", nil), now); err == nil {
		t.Fatal("expected error for bad date")
	}
}

func TestAmountField(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`1500`, "1500", true},
		{`1500.5`, "1500.5", true},
		{`"1,234.50"`, "1234.5", true},
		{`"1.234,50"`, "1234.5", true},
		{`"-1"`, "", false},
		{`""`, "", false},
	}
	for _, tt := range tests {
		var a amountField
		if err := json.Unmarshal([]byte(tt.in), &a); err != nil {
			t.Fatalf("%s: unmarshal: %v", tt.in, err)
		}
		d, err := a.decimal()
		if (err == nil) != tt.ok {
			t.Errorf("%s: err = %v", tt.in, err)
			continue
		}
		if tt.ok && d.String() != tt.want {
			t.Errorf("%s: got %s, want %s", tt.in, d, tt.want)
		}
		if !tt.ok && !core.IsValidation(err) {
			t.Errorf("%s: want a validation error, got %v", tt.in, err)
		}
	}

	var a amountField
	if err := json.Unmarshal([]byte(`true`), &a); err == nil {
		t.Fatal("bool accepted as amount")
	}
}

func TestLinePatchRequiresBothEnds(t *testing.T) {
	start := core.MonthWeek{Month: core.Month{Year: 2026, Month: 3}, Week: 1}
	if _, err := (linePatchRequest{Start: &start}).patch(); err == nil {
		t.Fatal("half span accepted")
	}
	end := core.MonthWeek{Month: core.Month{Year: 2026, Month: 4}, Week: 2}
	p, err := (linePatchRequest{Start: &start, End: &end}).patch()
	if err != nil || p.Span == nil || p.Span.End != end {
		t.Fatalf("patch = %+v, err = %v", p, err)
	}
}

func TestOverridesRequestDefaultsSupersedes(t *testing.T) {
	off := false
	req := overridesRequest{Overrides: []overrideEntry{
		{Month: core.Month{Year: 2026, Month: 4}, Concept: " gastoPorMes ", Value: "10"},
		{Month: core.Month{Year: 2026, Month: 4}, Concept: "avanceParcial", Value: "5", Supersedes: &off},
	}}
	got := req.entries()
	if !got[0].Supersedes || got[1].Supersedes {
		t.Fatalf("supersedes = %v, %v", got[0].Supersedes, got[1].Supersedes)
	}
	if got[0].Concept != "gastoPorMes" {
		t.Fatalf("concept = %q", got[0].Concept)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\tc\n "); got != "ab\tc" {
		t.Fatalf("got %q", got)
	}
}
