package distribution

import (
	"github.com/shopspring/decimal"

	"cronograma/internal/core"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Bar positions one activity on the timeline grid. MonthIndex is relative to
// the horizon start and may be negative or past the end for spans that spill
// outside it; renderers clip.
type Bar struct {
	LineID        int64           `json:"line_id"`
	CategoryID    int64           `json:"category_id"`
	Label         string          `json:"label"`
	MonthIndex    int             `json:"month_index"`
	WeekIndex     int             `json:"week_index"`
	DurationWeeks int             `json:"duration_weeks"`
	Status        Status          `json:"status"`
	Progress      float64         `json:"progress"`
	Amount        decimal.Decimal `json:"amount"`
	IsDiscount    bool            `json:"is_discount"`
}

// Bars returns one bar per line that owns an activity, in line order.
// Status and elapsed progress are measured against ref.
func Bars(horizonStart core.Month, lines []core.Line, ref core.MonthWeek) []Bar {
	out := make([]Bar, 0, len(lines))
	for _, l := range lines {
		if l.Activity == nil {
			continue
		}
		span := l.Activity.Span
		status, progress := statusAt(span, ref)
		out = append(out, Bar{
			LineID:        l.ID,
			CategoryID:    l.CategoryID,
			Label:         l.Label(),
			MonthIndex:    horizonStart.MonthsUntil(span.Start.Month),
			WeekIndex:     span.Start.Week,
			DurationWeeks: span.Weeks(),
			Status:        status,
			Progress:      progress,
			Amount:        l.Amount,
			IsDiscount:    l.IsDiscount,
		})
	}
	return out
}

func statusAt(span core.Span, ref core.MonthWeek) (Status, float64) {
	switch {
	case ref.Compare(span.Start) < 0:
		return StatusPending, 0
	case ref.Compare(span.End) > 0:
		return StatusCompleted, 100
	}
	total := span.Weeks()
	if total <= 0 {
		return StatusInProgress, 0
	}
	elapsed := core.WeeksBetween(span.Start, ref)
	return StatusInProgress, float64(elapsed) * 100 / float64(total)
}
