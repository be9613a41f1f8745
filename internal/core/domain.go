package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultHorizonMonths = 12
	MaxHorizonMonths     = 120
)

type (
	// PlanRef identifies the (client, project) scope that owns a Plan.
	PlanRef struct {
		ClientID  string `json:"client_id"`
		ProjectID string `json:"project_id"`
	}

	Plan struct {
		ID          int64     `json:"id"`
		ClientID    string    `json:"client_id"`
		ProjectID   string    `json:"project_id"`
		StartMonth  Month     `json:"start_month"`
		MonthsCount int       `json:"months_count"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// Category is a budget category ("mayor"). The engine only reads it.
	Category struct {
		ID         int64  `json:"id"`
		Code       string `json:"code"`
		Name       string `json:"name"`
		Department string `json:"department,omitempty"`
	}

	Span struct {
		Start MonthWeek `json:"start"`
		End   MonthWeek `json:"end"`
	}

	// Activity is the timeline span owned by a Line. DurationWeeks is always
	// derived from the span.
	Activity struct {
		ID            int64 `json:"id"`
		LineID        int64 `json:"line_id"`
		Span          Span  `json:"span"`
		DurationWeeks int   `json:"duration_weeks"`
	}

	// Line books an amount against a category. Amount is the magnitude; a
	// discount subtracts it.
	Line struct {
		ID            int64           `json:"id"`
		PlanID        int64           `json:"plan_id"`
		CategoryID    int64           `json:"category_id"`
		CategoryCode  string          `json:"category_code"`
		CategoryLabel string          `json:"category_label"`
		Amount        decimal.Decimal `json:"amount"`
		IsDiscount    bool            `json:"is_discount"`
		Order         int             `json:"order"`
		Activity      *Activity       `json:"activity,omitempty"`
	}

	Installment struct {
		DueDate time.Time       `json:"due_date"`
		Amount  decimal.Decimal `json:"amount"`
	}

	// MatrixOverride pins one (month, concept) cell of a plan's matrix. Value
	// is kept as entered; its type comes from the concept.
	MatrixOverride struct {
		PlanID     int64     `json:"plan_id"`
		Month      Month     `json:"month"`
		Concept    string    `json:"concept"`
		Value      string    `json:"value"`
		Supersedes bool      `json:"supersedes"`
		UpdatedAt  time.Time `json:"updated_at"`
		UpdatedBy  string    `json:"updated_by,omitempty"`
	}

	// ValidationError names the offending field. It unwraps to a sentinel.
	ValidationError struct {
		Field  string
		Reason string
		Err    error
	}
)

var (
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidWeek     = errors.New("invalid week")
	ErrInvalidRange    = errors.New("invalid month/week range")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrMissingCategory = errors.New("missing category")
	ErrInvalidScope    = errors.New("invalid plan scope")
	ErrInvalidHorizon  = errors.New("invalid horizon")
	ErrInvalidConcept  = errors.New("invalid concept")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrPartialWrite    = errors.New("partial write")
)

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, sentinel error, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: sentinel}
}

// IsValidation reports whether err should be shown to the caller as a rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (r PlanRef) Validate() error {
	if strings.TrimSpace(r.ClientID) == "" {
		return invalid("client_id", ErrInvalidScope, "client id is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return invalid("project_id", ErrInvalidScope, "project id is required")
	}
	if len(r.ClientID) > 100 || len(r.ProjectID) > 100 {
		return invalid("project_id", ErrInvalidScope, "identifiers are limited to 100 characters")
	}
	return nil
}

func (r PlanRef) String() string { return r.ClientID + "/" + r.ProjectID }

func (p Plan) Ref() PlanRef { return PlanRef{ClientID: p.ClientID, ProjectID: p.ProjectID} }

// Horizon lists the months covered by the plan, in order.
func (p Plan) Horizon() []Month {
	return GenerateMonthRange(p.StartMonth, 0, p.MonthsCount)
}

func (p Plan) Validate() error {
	if err := p.Ref().Validate(); err != nil {
		return err
	}
	if err := p.StartMonth.Validate(); err != nil {
		return err
	}
	if p.MonthsCount < 1 || p.MonthsCount > MaxHorizonMonths {
		return invalid("months_count", ErrInvalidHorizon, "horizon must be 1-%d months, got %d", MaxHorizonMonths, p.MonthsCount)
	}
	return nil
}

func (s Span) Validate() error {
	return ValidateMonthWeekRange(s.Start, s.End)
}

func (s Span) Weeks() int { return WeeksBetween(s.Start, s.End) }

// NewActivity validates the span and derives the duration.
func NewActivity(lineID int64, span Span) (Activity, error) {
	if err := span.Validate(); err != nil {
		return Activity{}, err
	}
	return Activity{LineID: lineID, Span: span, DurationWeeks: span.Weeks()}, nil
}

// Reschedule replaces the span and recomputes the duration.
func (a Activity) Reschedule(span Span) (Activity, error) {
	if err := span.Validate(); err != nil {
		return Activity{}, err
	}
	a.Span = span
	a.DurationWeeks = span.Weeks()
	return a, nil
}

func (l Line) Validate() error {
	if l.CategoryID <= 0 {
		return invalid("category_id", ErrMissingCategory, "a budget category is required")
	}
	if !l.Amount.IsPositive() {
		return invalid("amount", ErrInvalidAmount, "amount must be greater than zero")
	}
	if !l.Amount.Equal(l.Amount.Round(2)) {
		return invalid("amount", ErrInvalidAmount, "amount has more than two decimals")
	}
	if l.Order < 0 {
		return invalid("order", ErrInvalidOrder, "order cannot be negative")
	}
	return nil
}

// SignedAmount is the amount as it weighs on the plan: negative for discounts.
func (l Line) SignedAmount() decimal.Decimal {
	if l.IsDiscount {
		return l.Amount.Neg()
	}
	return l.Amount
}

// Label is the display name of the line's category.
func (l Line) Label() string {
	return CategoryLabel(l.CategoryID, l.CategoryCode, l.CategoryLabel)
}

// CategoryLabel joins code and label, falling back to "#id" when the
// category is unlabelled.
func CategoryLabel(id int64, code, label string) string {
	switch {
	case code != "" && label != "":
		return code + " " + label
	case label != "":
		return label
	case code != "":
		return code
	}
	return fmt.Sprintf("#%d", id)
}

func (o MatrixOverride) Validate() error {
	if err := o.Month.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(o.Concept) == "" {
		return invalid("concept", ErrInvalidConcept, "concept is required")
	}
	if len(o.Value) > 64 {
		return invalid("value", ErrInvalidAmount, "value is limited to 64 characters")
	}
	return nil
}
