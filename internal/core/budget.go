package core

import "github.com/shopspring/decimal"

// CategoryAmount is one row from the budget aggregator.
type CategoryAmount struct {
	CategoryID int64
	Amount     decimal.Decimal
}

// BudgetTotals is the parametric budget of a plan: total per category and
// the grand total.
type BudgetTotals struct {
	ByCategory map[int64]decimal.Decimal
	Total      decimal.Decimal
}

// NewBudgetTotals sums rows per category. Repeated categories accumulate.
func NewBudgetTotals(rows []CategoryAmount) BudgetTotals {
	bt := BudgetTotals{ByCategory: make(map[int64]decimal.Decimal, len(rows)), Total: decimal.Zero}
	for _, r := range rows {
		bt.ByCategory[r.CategoryID] = bt.ByCategory[r.CategoryID].Add(r.Amount)
		bt.Total = bt.Total.Add(r.Amount)
	}
	return bt
}

// Lookup reports the budget of a category and whether it has an entry at all.
func (b BudgetTotals) Lookup(categoryID int64) (decimal.Decimal, bool) {
	v, ok := b.ByCategory[categoryID]
	return v, ok
}
