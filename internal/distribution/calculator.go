// Package distribution turns a plan's timeline and parametric budget into
// month-by-month expenditure, progress and disbursement series.
//
// Everything here is a pure function of its input. Results are never cached:
// callers recompute from the latest snapshot on every read.
package distribution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cronograma/internal/core"
)

// Epsilon is the tolerance above 100% that is treated as rounding noise.
const Epsilon = 1e-6

var hundred = decimal.NewFromInt(100)

type WarningKind string

const (
	WarnMissingBudget             WarningKind = "missing_budget"
	WarnMissingActivity           WarningKind = "missing_activity"
	WarnSpanOutsideHorizon        WarningKind = "span_outside_horizon"
	WarnInstallmentOutsideHorizon WarningKind = "installment_outside_horizon"
	WarnNegativeMonth             WarningKind = "negative_month"
	WarnProgressOverflow          WarningKind = "progress_overflow"
)

// Warning is a data-quality issue found while calculating. It never aborts
// the calculation.
type Warning struct {
	Kind       WarningKind `json:"kind"`
	LineID     int64       `json:"line_id,omitempty"`
	CategoryID int64       `json:"category_id,omitempty"`
	Month      *core.Month `json:"month,omitempty"`
	Detail     string      `json:"detail"`
}

type Input struct {
	Horizon      []core.Month
	Lines        []core.Line
	Budget       core.BudgetTotals
	Installments []core.Installment
}

// CategorySeries is the expenditure of one category. Categories without a
// budget entry are kept with Budgeted=false and zero values.
type CategorySeries struct {
	CategoryID  int64                           `json:"category_id"`
	Code        string                          `json:"code"`
	Label       string                          `json:"label"`
	Budgeted    bool                            `json:"budgeted"`
	Expenditure map[core.Month]decimal.Decimal `json:"expenditure"`
	Total       decimal.Decimal                 `json:"total"`
}

// MonthlyCalculations holds the five series over the horizon plus the total budget.
type MonthlyCalculations struct {
	Months               []core.Month                    `json:"months"`
	Expenditure          map[core.Month]decimal.Decimal `json:"gasto_por_mes"`
	IncrementalProgress  map[core.Month]float64         `json:"avance_parcial"`
	CumulativeProgress   map[core.Month]float64         `json:"avance_acumulado"`
	Disbursements        map[core.Month]decimal.Decimal `json:"ministraciones"`
	CumulativeInvestment map[core.Month]float64         `json:"inversion_acumulada"`
	TotalBudget          decimal.Decimal                 `json:"total_presupuesto"`
	Categories           []CategorySeries                `json:"categories"`
	Warnings             []Warning                       `json:"warnings"`
}

// Calculate derives the monthly series. Each line's signed amount is spread
// over the week slots of its span, so a month receives amount * weeksInMonth /
// totalWeeks. Portions falling outside the horizon are dropped with a warning.
// The expenditure row is the sum of the category rows.
func Calculate(in Input) MonthlyCalculations {
	out := MonthlyCalculations{
		Months:               append([]core.Month(nil), in.Horizon...),
		Expenditure:          make(map[core.Month]decimal.Decimal, len(in.Horizon)),
		IncrementalProgress:  make(map[core.Month]float64, len(in.Horizon)),
		CumulativeProgress:   make(map[core.Month]float64, len(in.Horizon)),
		Disbursements:        make(map[core.Month]decimal.Decimal, len(in.Horizon)),
		CumulativeInvestment: make(map[core.Month]float64, len(in.Horizon)),
		TotalBudget:          in.Budget.Total,
		Warnings:             []Warning{},
	}
	inHorizon := make(map[core.Month]bool, len(in.Horizon))
	for _, m := range in.Horizon {
		inHorizon[m] = true
	}

	categories := newCategoryIndex()
	for _, line := range in.Lines {
		cat := categories.get(line)
		if line.Activity == nil {
			out.warn(Warning{Kind: WarnMissingActivity, LineID: line.ID, CategoryID: line.CategoryID,
				Detail: fmt.Sprintf("line %d has no timeline span", line.ID)})
			continue
		}
		if _, ok := in.Budget.Lookup(line.CategoryID); !ok {
			cat.Budgeted = false
			out.warn(Warning{Kind: WarnMissingBudget, LineID: line.ID, CategoryID: line.CategoryID,
				Detail: fmt.Sprintf("category %s has no budget entry; line %d weighs zero", line.Label(), line.ID)})
			continue
		}

		outside := spread(line, inHorizon, cat.Expenditure)
		if outside > 0 {
			out.warn(Warning{Kind: WarnSpanOutsideHorizon, LineID: line.ID, CategoryID: line.CategoryID,
				Detail: fmt.Sprintf("%d month(s) of line %d fall outside the plan horizon", outside, line.ID)})
		}
	}
	out.Categories = categories.finish(in.Horizon, &out)
	for _, m := range in.Horizon {
		e := decimal.Zero
		for _, cs := range out.Categories {
			e = e.Add(cs.Expenditure[m])
		}
		out.Expenditure[m] = e
	}

	paid := make(map[core.Month]decimal.Decimal, len(in.Horizon))
	for _, inst := range in.Installments {
		m := core.MonthOf(inst.DueDate)
		if !inHorizon[m] {
			out.warn(Warning{Kind: WarnInstallmentOutsideHorizon, Month: &m,
				Detail: fmt.Sprintf("installment due %s is outside the plan horizon", inst.DueDate.Format("2006-01-02"))})
			continue
		}
		paid[m] = paid[m].Add(inst.Amount)
	}

	var spent, disbursed decimal.Decimal
	overflowed := false
	for _, m := range in.Horizon {
		e := out.Expenditure[m]
		d := out.nonNegative(m, paid[m].Round(2), "disbursement")
		out.Disbursements[m] = d
		spent = spent.Add(e)
		disbursed = disbursed.Add(d)

		cum := percentOf(spent, in.Budget.Total)
		if cum > 100 {
			if cum > 100+Epsilon && !overflowed {
				overflowed = true
				mm := m
				out.warn(Warning{Kind: WarnProgressOverflow, Month: &mm,
					Detail: fmt.Sprintf("scheduled amounts exceed the budget total from %s", m)})
			}
			cum = 100
		}
		out.IncrementalProgress[m] = percentOf(e, in.Budget.Total)
		out.CumulativeProgress[m] = cum
		out.CumulativeInvestment[m] = percentOf(disbursed, in.Budget.Total)
	}
	return out
}

func (c *MonthlyCalculations) warn(w Warning) {
	c.Warnings = append(c.Warnings, w)
}

func (c *MonthlyCalculations) nonNegative(m core.Month, v decimal.Decimal, what string) decimal.Decimal {
	if !v.IsNegative() {
		return v
	}
	mm := m
	c.warn(Warning{Kind: WarnNegativeMonth, Month: &mm,
		Detail: fmt.Sprintf("%s for %s is negative (%s); shown as zero", what, m, v.StringFixed(2))})
	return decimal.Zero
}

// percentOf short-circuits to zero for a non-positive total.
func percentOf(v, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return v.Mul(hundred).Div(total).InexactFloat64()
}

// spread adds line's in-horizon monthly shares to into, rounded to cents. The
// rounding remainder goes to the last covered month so the shares add up to
// the line's in-horizon amount. It returns the number of months dropped.
func spread(line core.Line, inHorizon map[core.Month]bool, into map[core.Month]decimal.Decimal) int {
	span := line.Activity.Span
	total := span.Weeks()
	if total <= 0 {
		return 0
	}
	amount := line.SignedAmount()
	weeks := decimal.NewFromInt(int64(total))

	var months []core.Month
	var shares []decimal.Decimal
	covered, outside := 0, 0
	for m := span.Start.Month; !span.End.Month.Before(m); m = m.AddMonths(1) {
		if !inHorizon[m] {
			outside++
			continue
		}
		w := weeksInMonth(span, m)
		covered += w
		months = append(months, m)
		shares = append(shares, amount.Mul(decimal.NewFromInt(int64(w))).Div(weeks).Round(2))
	}
	if len(shares) == 0 {
		return outside
	}
	exact := amount.Mul(decimal.NewFromInt(int64(covered))).Div(weeks).Round(2)
	last := len(shares) - 1
	shares[last] = shares[last].Add(exact.Sub(decimal.Sum(shares[0], shares[1:]...)))
	for i, m := range months {
		into[m] = into[m].Add(shares[i])
	}
	return outside
}

// weeksInMonth counts the week slots of span that fall inside m.
func weeksInMonth(span core.Span, m core.Month) int {
	first := core.MonthWeek{Month: m, Week: 1}.Slot()
	last := first + core.WeeksPerMonth - 1
	lo := max(span.Start.Slot(), first)
	hi := min(span.End.Slot(), last)
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

type categoryIndex struct {
	order []int64
	byID  map[int64]*CategorySeries
}

func newCategoryIndex() *categoryIndex {
	return &categoryIndex{byID: make(map[int64]*CategorySeries)}
}

func (ci *categoryIndex) get(line core.Line) *CategorySeries {
	if cs, ok := ci.byID[line.CategoryID]; ok {
		return cs
	}
	cs := &CategorySeries{
		CategoryID:  line.CategoryID,
		Code:        line.CategoryCode,
		Label:       line.CategoryLabel,
		Budgeted:    true,
		Expenditure: make(map[core.Month]decimal.Decimal),
	}
	ci.order = append(ci.order, line.CategoryID)
	ci.byID[line.CategoryID] = cs
	return cs
}

// finish clamps each category row to non-negative cells. A month that nets
// negative shows zero and its deficit is taken from the following months.
func (ci *categoryIndex) finish(horizon []core.Month, calc *MonthlyCalculations) []CategorySeries {
	out := make([]CategorySeries, 0, len(ci.order))
	for _, id := range ci.order {
		cs := ci.byID[id]
		series := make(map[core.Month]decimal.Decimal, len(horizon))
		total, deficit := decimal.Zero, decimal.Zero
		for _, m := range horizon {
			v := cs.Expenditure[m].Sub(deficit)
			deficit = decimal.Zero
			if v.IsNegative() {
				deficit = v.Neg()
				v = decimal.Zero
				if cs.Expenditure[m].IsNegative() {
					mm := m
					calc.warn(Warning{Kind: WarnNegativeMonth, CategoryID: id, Month: &mm,
						Detail: fmt.Sprintf("expenditure of %s for %s is negative (%s); shown as zero and carried forward",
							core.CategoryLabel(id, cs.Code, cs.Label), m, cs.Expenditure[m].StringFixed(2))})
				}
			}
			series[m] = v
			total = total.Add(v)
		}
		if deficit.IsPositive() {
			calc.warn(Warning{Kind: WarnNegativeMonth, CategoryID: id,
				Detail: fmt.Sprintf("discounts of %s exceed its scheduled amounts by %s within the horizon",
					core.CategoryLabel(id, cs.Code, cs.Label), deficit.StringFixed(2))})
		}
		cs.Expenditure = series
		cs.Total = total
		out = append(out, *cs)
	}
	return out
}
