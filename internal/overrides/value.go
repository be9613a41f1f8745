package overrides

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cronograma/internal/core"
)

type Kind int

const (
	KindCurrency Kind = iota + 1
	KindPercentage
)

func (k Kind) String() string {
	switch k {
	case KindCurrency:
		return "currency"
	case KindPercentage:
		return "percentage"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Value is either a currency amount or a percentage, never both.
type Value struct {
	kind   Kind
	amount decimal.Decimal
	pct    float64
}

func Currency(d decimal.Decimal) Value { return Value{kind: KindCurrency, amount: d} }

func Percentage(p float64) Value { return Value{kind: KindPercentage, pct: p} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Amount() (decimal.Decimal, bool) {
	return v.amount, v.kind == KindCurrency
}

func (v Value) Percent() (float64, bool) {
	return v.pct, v.kind == KindPercentage
}

// Add sums two values of the same kind. A zero Value adopts the other's kind.
func (v Value) Add(o Value) Value {
	switch {
	case v.kind == 0:
		return o
	case o.kind == 0:
		return v
	case v.kind == KindCurrency:
		return Currency(v.amount.Add(o.amount))
	}
	return Percentage(v.pct + o.pct)
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindCurrency {
		return v.amount.Equal(o.amount)
	}
	return v.pct == o.pct
}

// Format renders the value for display: 2 decimals for money, 1 for percentages.
func (v Value) Format(loc core.Locale) string {
	switch v.kind {
	case KindCurrency:
		return loc.FormatMoney(v.amount)
	case KindPercentage:
		return loc.FormatPercent(v.pct)
	}
	return ""
}

// Float is used by spreadsheet output, where cells carry numbers.
func (v Value) Float() float64 {
	if v.kind == KindCurrency {
		return v.amount.Round(2).InexactFloat64()
	}
	return v.pct
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindCurrency:
		return json.Marshal(struct {
			Kind   Kind   `json:"kind"`
			Amount string `json:"amount"`
		}{v.kind, v.amount.StringFixed(2)})
	case KindPercentage:
		return json.Marshal(struct {
			Kind    Kind    `json:"kind"`
			Percent float64 `json:"percent"`
		}{v.kind, v.pct})
	}
	return []byte("null"), nil
}

func parseCurrency(raw string) (Value, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	d, err := core.ParseAmount(s)
	if err != nil {
		return Value{}, fmt.Errorf("%q is not a currency amount: %w", raw, err)
	}
	return Currency(d), nil
}

func parsePercentage(raw string) (Value, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	s = strings.Replace(s, ",", ".", 1)
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return Value{}, fmt.Errorf("%q is not a percentage: %w", raw, core.ErrInvalidAmount)
	}
	if p < 0 {
		return Value{}, fmt.Errorf("percentage %q cannot be negative: %w", raw, core.ErrInvalidAmount)
	}
	return Percentage(p), nil
}
