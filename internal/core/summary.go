package core

// CategoryValue is one grouped aggregate in major units.
type CategoryValue struct {
	Category string
	Value    float64
}

// AggregateRow is a CategoryValue annotated with its share of the month's
// total expenditure.
type AggregateRow struct {
	Category   string  `json:"category"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

// AlertLevel classifies a budget alert.
type AlertLevel string

const (
	AlertDanger  AlertLevel = "danger"
	AlertSuccess AlertLevel = "success"
)

// Alert is a single budget message for the dashboard.
type Alert struct {
	Type    AlertLevel `json:"type"`
	Message string     `json:"message"`
}

// MonthOverview is the dashboard view model for one owner's month.
type MonthOverview struct {
	Year           int            `json:"year"`
	Month          int            `json:"month"` // 1-12
	Total          float64        `json:"total"`
	Totals         []AggregateRow `json:"totals"`
	Averages       []AggregateRow `json:"averages"`
	Alerts         []Alert        `json:"alerts"`
	AvailableYears []int          `json:"availableYears"`
}

// Percentage returns value/total*100, or 0 when total is 0.
func Percentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return value / total * 100
}

// Annotate turns grouped values into AggregateRows relative to total.
func Annotate(values []CategoryValue, total float64) []AggregateRow {
	rows := make([]AggregateRow, 0, len(values))
	for _, v := range values {
		rows = append(rows, AggregateRow{
			Category:   v.Category,
			Value:      v.Value,
			Percentage: Percentage(v.Value, total),
		})
	}
	return rows
}
