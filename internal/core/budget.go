package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Budget is the spending limit for one category, in major units.
type Budget struct {
	Category string
	Amount   decimal.Decimal
}

// BudgetTable is an ordered, read-only category → budget mapping. Its order
// drives alert ordering.
type BudgetTable struct {
	entries []Budget
}

// NewBudgetTable validates entries and returns an immutable table.
func NewBudgetTable(entries []Budget) (BudgetTable, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Budget, 0, len(entries))
	for _, b := range entries {
		if !IsCategory(b.Category) {
			return BudgetTable{}, fmt.Errorf("budget for %q: %w", b.Category, ErrUnknownCategory)
		}
		if _, dup := seen[b.Category]; dup {
			return BudgetTable{}, fmt.Errorf("duplicate budget for %q", b.Category)
		}
		if !b.Amount.IsPositive() {
			return BudgetTable{}, fmt.Errorf("budget for %q must be positive, got %s", b.Category, b.Amount)
		}
		seen[b.Category] = struct{}{}
		out = append(out, b)
	}
	return BudgetTable{entries: out}, nil
}

// DefaultBudgetTable is used when no budget configuration is supplied.
func DefaultBudgetTable() BudgetTable {
	return BudgetTable{entries: []Budget{
		{Category: Groceries, Amount: decimal.NewFromInt(300)},
		{Category: Utilities, Amount: decimal.NewFromInt(200)},
		{Category: Transport, Amount: decimal.NewFromInt(500)},
		{Category: Entertainment, Amount: decimal.NewFromInt(200)},
		{Category: Housing, Amount: decimal.NewFromInt(600)},
		{Category: Health, Amount: decimal.NewFromInt(75)},
		{Category: Other, Amount: decimal.NewFromInt(100)},
	}}
}

// Entries returns a copy of the table in iteration order.
func (t BudgetTable) Entries() []Budget {
	return append([]Budget(nil), t.entries...)
}

func (t BudgetTable) Len() int {
	return len(t.entries)
}

// Lookup returns the budget for category.
func (t BudgetTable) Lookup(category string) (decimal.Decimal, bool) {
	for _, b := range t.entries {
		if b.Category == category {
			return b.Amount, true
		}
	}
	return decimal.Zero, false
}

// Total sums every configured budget.
func (t BudgetTable) Total() decimal.Decimal {
	total := decimal.Zero
	for _, b := range t.entries {
		total = total.Add(b.Amount)
	}
	return total
}
