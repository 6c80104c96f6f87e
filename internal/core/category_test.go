package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	got, err := ParseCategory(" Groceries ")
	require.NoError(t, err)
	assert.Equal(t, Groceries, got)

	got, err = ParseCategory("HEALTH")
	require.NoError(t, err)
	assert.Equal(t, Health, got)

	_, err = ParseCategory("pets")
	assert.ErrorIs(t, err, ErrUnknownCategory)
	_, err = ParseCategory("  ")
	assert.ErrorIs(t, err, ErrEmptyCategory)
}

func TestCategoriesOrder(t *testing.T) {
	assert.Equal(t, []string{"groceries", "utilities", "transport", "entertainment", "housing", "health", "other"}, Categories())
}

func TestBudgetTable(t *testing.T) {
	def := DefaultBudgetTable()
	assert.Equal(t, 7, def.Len())
	assert.True(t, decimal.NewFromInt(1975).Equal(def.Total()))
	b, ok := def.Lookup(Health)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(75).Equal(b))

	_, err := NewBudgetTable([]Budget{{Category: "pets", Amount: decimal.NewFromInt(1)}})
	assert.ErrorIs(t, err, ErrUnknownCategory)
	_, err = NewBudgetTable([]Budget{{Category: Other, Amount: decimal.Zero}})
	assert.Error(t, err)
	_, err = NewBudgetTable([]Budget{
		{Category: Other, Amount: decimal.NewFromInt(1)},
		{Category: Other, Amount: decimal.NewFromInt(2)},
	})
	assert.Error(t, err)
}

func TestCriteriaMatches(t *testing.T) {
	march24 := Expense{OwnerID: 1, Date: NewDate(2024, 3, 10)}
	march23 := Expense{OwnerID: 1, Date: NewDate(2023, 3, 10)}
	newYear := Expense{OwnerID: 1, Date: NewDate(2025, 1, 1)}

	c := MonthCriteria(1, 2024, 3)
	assert.True(t, c.Matches(march24))
	assert.False(t, c.Matches(march23))
	assert.False(t, MonthCriteria(2, 2024, 3).Matches(march24))

	assert.True(t, Criteria{OwnerID: 1, Month: 3}.Matches(march23))
	assert.False(t, Criteria{Year: 2024}.Matches(newYear), "year range is half-open")
}

func TestAnnotate(t *testing.T) {
	rows := Annotate([]CategoryValue{{Groceries, 300}, {Other, 100}}, 400)
	assert.Equal(t, []AggregateRow{
		{Category: Groceries, Value: 300, Percentage: 75},
		{Category: Other, Value: 100, Percentage: 25},
	}, rows)
	assert.Equal(t, 0.0, Percentage(10, 0))
}
