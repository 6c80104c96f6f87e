package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// AlertGenerator compares a month's per-category totals against a budget
// table.
type AlertGenerator struct {
	summary *SummaryService
	budgets core.BudgetTable
}

func NewAlertGenerator(summary *SummaryService, budgets core.BudgetTable) *AlertGenerator {
	return &AlertGenerator{summary: summary, budgets: budgets}
}

// Budgets returns the table alerts are generated against.
func (g *AlertGenerator) Budgets() core.BudgetTable {
	return g.budgets
}

// Generate returns the alerts for one owner's month.
func (g *AlertGenerator) Generate(ctx context.Context, ownerID int64, year, month int) ([]core.Alert, error) {
	totals, err := g.summary.PerCategoryTotals(ctx, ownerID, year, month)
	if err != nil {
		return nil, err
	}
	return BuildAlerts(totals, g.budgets), nil
}

// BuildAlerts emits one danger alert per over-budget category in table
// order, or a single success alert when nothing is over. A category without
// spending counts as 0; spending in a category missing from the table is
// ignored.
func BuildAlerts(totals []core.AggregateRow, budgets core.BudgetTable) []core.Alert {
	alerts := []core.Alert{}
	if budgets.Len() == 0 {
		return alerts
	}

	spent := make(map[string]decimal.Decimal, len(totals))
	overall := decimal.Zero
	for _, row := range totals {
		v := decimal.NewFromFloat(row.Value).Round(2)
		spent[row.Category] = v
		overall = overall.Add(v)
	}

	for _, b := range budgets.Entries() {
		s, ok := spent[b.Category]
		if !ok || !s.GreaterThan(b.Amount) {
			continue
		}
		alerts = append(alerts, core.Alert{
			Type: core.AlertDanger,
			Message: fmt.Sprintf("You spent %s more than your %s budget of %s",
				s.Sub(b.Amount).StringFixed(2), b.Category, b.Amount.StringFixed(2)),
		})
	}

	if len(alerts) == 0 {
		alerts = append(alerts, core.Alert{
			Type: core.AlertSuccess,
			Message: fmt.Sprintf("All categories are within budget: spent %s of %s",
				overall.StringFixed(2), budgets.Total().StringFixed(2)),
		})
	}
	return alerts
}
