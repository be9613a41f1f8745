package overrides

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cronograma/internal/core"
	"cronograma/internal/distribution"
)

type (
	Cell struct {
		Month      core.Month           `json:"month"`
		Computed   Value                `json:"computed"`
		Display    Value                `json:"display"`
		Overridden bool                 `json:"overridden"`
		Override   *core.MatrixOverride `json:"override,omitempty"`
	}

	Row struct {
		Key           string `json:"concept"`
		Label         string `json:"label"`
		Kind          Kind   `json:"kind"`
		Cells         []Cell `json:"cells"`
		Total         Value  `json:"total"`
		ComputedTotal Value  `json:"computed_total"`
	}

	// CategoryRow is the per-category expenditure breakdown. It is not
	// overridable.
	CategoryRow struct {
		CategoryID int64             `json:"category_id"`
		Label      string            `json:"label"`
		Budgeted   bool              `json:"budgeted"`
		Cells      []decimal.Decimal `json:"cells"`
		Total      decimal.Decimal   `json:"total"`
	}

	// Ignored reports a stored override that could not be applied.
	Ignored struct {
		Override core.MatrixOverride `json:"override"`
		Reason   string              `json:"reason"`
	}

	Matrix struct {
		Months       []core.Month  `json:"months"`
		Categories   []CategoryRow `json:"categories"`
		Rows         []Row         `json:"rows"`
		HasOverrides bool          `json:"has_overrides"`
		Ignored      []Ignored     `json:"ignored,omitempty"`
	}
)

type cellKey struct {
	month   core.Month
	concept string
}

// Resolve builds the display matrix. A cell shows its live override when one
// exists (supersedes=true) and the computed value otherwise; row totals
// aggregate what is displayed. Overrides for unknown concepts, months outside
// the horizon or unparseable values are reported in Ignored and not applied.
func Resolve(reg *Registry, calc distribution.MonthlyCalculations, stored []core.MatrixOverride, lang string) Matrix {
	mx := Matrix{Months: calc.Months}

	inHorizon := make(map[core.Month]bool, len(calc.Months))
	for _, m := range calc.Months {
		inHorizon[m] = true
	}
	live := make(map[cellKey]core.MatrixOverride, len(stored))
	parsed := make(map[cellKey]Value, len(stored))
	for _, o := range stored {
		if !o.Supersedes {
			continue
		}
		c, ok := reg.Lookup(o.Concept)
		if !ok {
			mx.Ignored = append(mx.Ignored, Ignored{Override: o, Reason: fmt.Sprintf("unknown concept %q", o.Concept)})
			continue
		}
		if !inHorizon[o.Month] {
			mx.Ignored = append(mx.Ignored, Ignored{Override: o, Reason: fmt.Sprintf("month %s is outside the horizon", o.Month)})
			continue
		}
		v, err := c.Parse(o.Value)
		if err != nil {
			mx.Ignored = append(mx.Ignored, Ignored{Override: o, Reason: err.Error()})
			continue
		}
		k := cellKey{o.Month, o.Concept}
		live[k] = o
		parsed[k] = v
	}

	for _, cs := range calc.Categories {
		row := CategoryRow{CategoryID: cs.CategoryID, Label: core.CategoryLabel(cs.CategoryID, cs.Code, cs.Label), Budgeted: cs.Budgeted, Total: cs.Total}
		for _, m := range calc.Months {
			row.Cells = append(row.Cells, cs.Expenditure[m])
		}
		mx.Categories = append(mx.Categories, row)
	}

	for _, c := range reg.Concepts() {
		row := Row{Key: c.Key, Label: c.Label(lang), Kind: c.Kind}
		for _, m := range calc.Months {
			computed := c.Series(calc, m)
			cell := Cell{Month: m, Computed: computed, Display: computed}
			k := cellKey{m, c.Key}
			if v, ok := parsed[k]; ok {
				o := live[k]
				cell.Display = v
				cell.Overridden = true
				cell.Override = &o
				mx.HasOverrides = true
			}
			row.Cells = append(row.Cells, cell)
		}
		row.Total = aggregate(c, row.Cells, func(cl Cell) Value { return cl.Display })
		row.ComputedTotal = aggregate(c, row.Cells, func(cl Cell) Value { return cl.Computed })
		mx.Rows = append(mx.Rows, row)
	}
	return mx
}

func aggregate(c Concept, cells []Cell, pick func(Cell) Value) Value {
	zero := Percentage(0)
	if c.Kind == KindCurrency {
		zero = Currency(decimal.Zero)
	}
	if len(cells) == 0 {
		return zero
	}
	if c.Aggregate == AggregateLast {
		return pick(cells[len(cells)-1])
	}
	total := zero
	for _, cl := range cells {
		total = total.Add(pick(cl))
	}
	return total
}

// Row returns the row for a concept key.
func (mx Matrix) Row(key string) (Row, bool) {
	for _, r := range mx.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return Row{}, false
}
