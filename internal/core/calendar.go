package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The calendar is deliberately coarse: every month holds exactly four week
// slots regardless of its day count. Duration math depends on it.
const (
	WeeksPerMonth = 4
	MinYear       = 1900
	MaxYear       = 2099
)

type (
	// Month is a calendar month. Its canonical token is YYYYMM.
	Month struct {
		Year  int
		Month int
	}

	// MonthWeek is a month plus a 1-4 week slot inside it.
	MonthWeek struct {
		Month Month `json:"month"`
		Week  int   `json:"week"`
	}
)

// NewMonth builds a validated Month.
func NewMonth(year, month int) (Month, error) {
	m := Month{Year: year, Month: month}
	if err := m.Validate(); err != nil {
		return Month{}, err
	}
	return m, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: int(t.Month())}
}

// ParseMonth accepts "YYYYMM" and "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if len(s) != 6 {
		return Month{}, invalid("month", ErrInvalidMonth, "%q is not a YYYYMM token", s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return Month{}, invalid("month", ErrInvalidMonth, "%q is not a YYYYMM token", s)
	}
	mo, err := strconv.Atoi(s[4:])
	if err != nil {
		return Month{}, invalid("month", ErrInvalidMonth, "%q is not a YYYYMM token", s)
	}
	return NewMonth(y, mo)
}

func (m Month) Validate() error {
	if m.Year < MinYear || m.Year > MaxYear {
		return invalid("month", ErrInvalidMonth, "year %d outside %d-%d", m.Year, MinYear, MaxYear)
	}
	if m.Month < 1 || m.Month > 12 {
		return invalid("month", ErrInvalidMonth, "month %d outside 1-12", m.Month)
	}
	return nil
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Index is the number of months since January of year zero.
func (m Month) Index() int { return m.Year*12 + m.Month - 1 }

func monthFromIndex(i int) Month {
	return Month{Year: i / 12, Month: i%12 + 1}
}

// AddMonths moves n months forward (or back when negative), carrying years.
func (m Month) AddMonths(n int) Month { return monthFromIndex(m.Index() + n) }

// MonthsUntil returns how many months o lies after m.
func (m Month) MonthsUntil(o Month) int { return o.Index() - m.Index() }

func (m Month) Compare(o Month) int {
	switch {
	case m.Index() < o.Index():
		return -1
	case m.Index() > o.Index():
		return 1
	}
	return 0
}

func (m Month) Before(o Month) bool { return m.Compare(o) < 0 }

func (m Month) Token() string { return fmt.Sprintf("%04d%02d", m.Year, m.Month) }

func (m Month) String() string { return m.Token() }

func (m Month) MarshalText() ([]byte, error) { return []byte(m.Token()), nil }

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MonthWeekOf maps a date to its coarse week slot; days 29-31 fold into week 4.
func MonthWeekOf(t time.Time) MonthWeek {
	week := (t.Day()-1)/7 + 1
	if week > WeeksPerMonth {
		week = WeeksPerMonth
	}
	return MonthWeek{Month: MonthOf(t), Week: week}
}

func (mw MonthWeek) Validate() error {
	if err := mw.Month.Validate(); err != nil {
		return err
	}
	if mw.Week < 1 || mw.Week > WeeksPerMonth {
		return invalid("week", ErrInvalidWeek, "week %d outside 1-%d", mw.Week, WeeksPerMonth)
	}
	return nil
}

// Slot is the absolute week position used for all duration arithmetic.
func (mw MonthWeek) Slot() int { return mw.Month.Index()*WeeksPerMonth + mw.Week - 1 }

func (mw MonthWeek) Compare(o MonthWeek) int {
	switch {
	case mw.Slot() < o.Slot():
		return -1
	case mw.Slot() > o.Slot():
		return 1
	}
	return 0
}

func (mw MonthWeek) String() string { return fmt.Sprintf("%sW%d", mw.Month.Token(), mw.Week) }

// WeeksBetween counts week slots from a to b inclusive. It is at least 1
// whenever b is not before a, and 0 for a reversed pair.
func WeeksBetween(a, b MonthWeek) int {
	n := b.Slot() - a.Slot() + 1
	if n < 0 {
		return 0
	}
	return n
}

// ValidateMonthWeekRange rejects malformed endpoints and an end before the start.
func ValidateMonthWeekRange(start, end MonthWeek) error {
	if err := start.Validate(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := end.Validate(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if end.Compare(start) < 0 {
		return invalid("end", ErrInvalidRange, "end %s is before start %s", end, start)
	}
	return nil
}

// GenerateMonthRange returns count consecutive months beginning offset months
// after ref.
func GenerateMonthRange(ref Month, offset, count int) []Month {
	if count <= 0 {
		return nil
	}
	out := make([]Month, count)
	first := ref.AddMonths(offset)
	for i := range out {
		out[i] = first.AddMonths(i)
	}
	return out
}
