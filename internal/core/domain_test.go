package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLineValidate(t *testing.T) {
	good := Line{CategoryID: 3, Amount: decimal.NewFromInt(1500)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		line Line
		want error
	}{
		{Line{Amount: decimal.NewFromInt(1)}, ErrMissingCategory},
		{Line{CategoryID: 1}, ErrInvalidAmount},
		{Line{CategoryID: 1, Amount: decimal.NewFromInt(-5)}, ErrInvalidAmount},
		{Line{CategoryID: 1, Amount: decimal.RequireFromString("1.005")}, ErrInvalidAmount},
		{Line{CategoryID: 1, Amount: decimal.NewFromInt(1), Order: -1}, ErrInvalidOrder},
	}
	for i, tc := range bads {
		if err := tc.line.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestSignedAmount(t *testing.T) {
	l := Line{Amount: decimal.NewFromInt(200), IsDiscount: true}
	if !l.SignedAmount().Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("discount should be negative, got %s", l.SignedAmount())
	}
}

func TestNewActivityDerivesDuration(t *testing.T) {
	a, err := NewActivity(7, Span{Start: mw(2026, 1, 1), End: mw(2026, 3, 4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.DurationWeeks != 12 || a.LineID != 7 {
		t.Fatalf("unexpected activity %+v", a)
	}
	moved, err := a.Reschedule(Span{Start: mw(2026, 2, 2), End: mw(2026, 2, 3)})
	if err != nil || moved.DurationWeeks != 2 {
		t.Fatalf("reschedule = %+v, %v", moved, err)
	}
	if _, err := a.Reschedule(Span{Start: mw(2026, 2, 3), End: mw(2026, 2, 2)}); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestPlanHorizon(t *testing.T) {
	p := Plan{ClientID: "c", ProjectID: "p", StartMonth: Month{Year: 2026, Month: 11}, MonthsCount: 3}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	h := p.Horizon()
	if len(h) != 3 || h[2] != (Month{Year: 2027, Month: 1}) {
		t.Fatalf("unexpected horizon %v", h)
	}
	p.MonthsCount = 0
	if err := p.Validate(); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected horizon error, got %v", err)
	}
}

func TestBudgetTotals(t *testing.T) {
	bt := NewBudgetTotals([]CategoryAmount{
		{CategoryID: 1, Amount: decimal.NewFromInt(100)},
		{CategoryID: 2, Amount: decimal.NewFromInt(50)},
		{CategoryID: 1, Amount: decimal.NewFromInt(25)},
	})
	if v, ok := bt.Lookup(1); !ok || !v.Equal(decimal.NewFromInt(125)) {
		t.Fatalf("category 1 = %s, %v", v, ok)
	}
	if _, ok := bt.Lookup(9); ok {
		t.Fatalf("category 9 should have no entry")
	}
	if !bt.Total.Equal(decimal.NewFromInt(175)) {
		t.Fatalf("total = %s", bt.Total)
	}
}

func TestReportFilename(t *testing.T) {
	got := ReportFilename("Cronograma Obra", "Grupo Méx, S.A.", "Torre #2", time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), "pdf")
	want := "Cronograma_Obra_Grupo_M_x__S_A__Torre__2_2026-10-15.pdf"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCategoryLabel(t *testing.T) {
	tests := []struct {
		code, label string
		want        string
	}{
		{"01", "Cimentación", "01 Cimentación"},
		{"", "Cimentación", "Cimentación"},
		{"01", "", "01"},
		{"", "", "#7"},
	}
	for _, tt := range tests {
		if got := CategoryLabel(7, tt.code, tt.label); got != tt.want {
			t.Errorf("CategoryLabel(7, %q, %q) = %q, want %q", tt.code, tt.label, got, tt.want)
		}
		l := Line{CategoryID: 7, CategoryCode: tt.code, CategoryLabel: tt.label}
		if got := l.Label(); got != tt.want {
			t.Errorf("Line.Label() = %q, want %q", got, tt.want)
		}
	}
}
