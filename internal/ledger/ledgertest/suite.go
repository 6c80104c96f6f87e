// Package ledgertest holds the behavioural suite every ledger.Store
// implementation must pass.
package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Now is the fixed clock handed to stores under test.
var Now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// Factory builds an empty store using the given clock.
type Factory func(t *testing.T, now func() time.Time) ledger.Store

// Run executes the repository contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	clock := func() time.Time { return Now }
	ctx := context.Background()

	t.Run("find missing returns nil", func(t *testing.T) {
		s := newStore(t, clock)
		e, err := s.Find(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("save assigns id and round trips", func(t *testing.T) {
		s := newStore(t, clock)
		e := expense(1, core.NewDate(2025, 3, 1), core.Groceries, 1234, "market")
		require.NoError(t, s.Save(ctx, &e))
		require.NotZero(t, e.ID)

		got, err := s.Find(ctx, e.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, e, *got)
	})

	t.Run("update is scoped to owner", func(t *testing.T) {
		s := newStore(t, clock)
		e := expense(1, core.NewDate(2025, 3, 1), core.Groceries, 1000, "mine")
		require.NoError(t, s.Save(ctx, &e))

		e.Description = "edited"
		e.Amount = core.Money{Cents: 2000}
		require.NoError(t, s.Save(ctx, &e))
		got, _ := s.Find(ctx, e.ID)
		assert.Equal(t, "edited", got.Description)
		assert.Equal(t, int64(2000), got.Amount.Cents)

		forged := *got
		forged.OwnerID = 2
		forged.Description = "hijacked"
		require.NoError(t, s.Save(ctx, &forged))
		got, _ = s.Find(ctx, e.ID)
		assert.Equal(t, "edited", got.Description)
		assert.Equal(t, int64(1), got.OwnerID)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t, clock)
		e := expense(1, core.NewDate(2025, 3, 1), core.Other, 100, "x")
		require.NoError(t, s.Save(ctx, &e))
		require.NoError(t, s.Delete(ctx, e.ID))
		got, err := s.Find(ctx, e.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("find by year and month", func(t *testing.T) {
		s := newStore(t, clock)
		seed(t, s,
			expense(1, core.NewDate(2024, 3, 5), core.Groceries, 100, "a"),
			expense(1, core.NewDate(2024, 3, 20), core.Transport, 200, "b"),
			expense(1, core.NewDate(2023, 3, 10), core.Groceries, 300, "old march"),
			expense(1, core.NewDate(2024, 4, 1), core.Groceries, 400, "april"),
			expense(2, core.NewDate(2024, 3, 7), core.Groceries, 500, "other user"),
		)

		got, err := s.FindBy(ctx, core.MonthCriteria(1, 2024, 3), 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, descriptions(got))

		n, err := s.CountBy(ctx, core.MonthCriteria(1, 2024, 3))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err = s.FindBy(ctx, core.Criteria{OwnerID: 1, Month: 3}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "old march"}, descriptions(got))

		n, err = s.CountBy(ctx, core.Criteria{OwnerID: 1, Year: 2024})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("ordering and pagination", func(t *testing.T) {
		s := newStore(t, clock)
		seed(t, s,
			expense(1, core.NewDate(2025, 5, 1), core.Other, 100, "first-may1"),
			expense(1, core.NewDate(2025, 5, 3), core.Other, 100, "may3"),
			expense(1, core.NewDate(2025, 5, 1), core.Other, 100, "second-may1"),
			expense(1, core.NewDate(2025, 5, 2), core.Other, 100, "may2"),
		)
		c := core.MonthCriteria(1, 2025, 5)

		all, err := s.FindBy(ctx, c, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"may3", "may2", "second-may1", "first-may1"}, descriptions(all))

		page, err := s.FindBy(ctx, c, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"second-may1", "first-may1"}, descriptions(page))

		page, err = s.FindBy(ctx, c, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, page)

		unbounded, err := s.FindBy(ctx, c, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"may2", "second-may1", "first-may1"}, descriptions(unbounded))

		unbounded, err = s.FindBy(ctx, c, -5, -1)
		require.NoError(t, err)
		assert.Equal(t, []string{"may3", "may2", "second-may1", "first-may1"}, descriptions(unbounded))
	})

	t.Run("expenditure years include current year descending", func(t *testing.T) {
		s := newStore(t, clock)
		years, err := s.ListExpenditureYears(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{2025}, years)

		seed(t, s,
			expense(1, core.NewDate(2021, 1, 1), core.Other, 100, "a"),
			expense(1, core.NewDate(2023, 1, 1), core.Other, 100, "b"),
			expense(1, core.NewDate(2023, 2, 1), core.Other, 100, "c"),
			expense(2, core.NewDate(2019, 1, 1), core.Other, 100, "d"),
		)
		years, err = s.ListExpenditureYears(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{2025, 2023, 2021}, years)
	})

	t.Run("sums and averages", func(t *testing.T) {
		s := newStore(t, clock)
		seed(t, s,
			expense(1, core.NewDate(2025, 2, 1), core.Groceries, 10000, "a"),
			expense(1, core.NewDate(2025, 2, 2), core.Groceries, 20050, "b"),
			expense(1, core.NewDate(2025, 2, 3), core.Other, 10000, "c"),
			expense(1, core.NewDate(2025, 1, 3), core.Other, 99900, "january"),
			expense(2, core.NewDate(2025, 2, 3), core.Other, 55500, "someone else"),
		)
		c := core.MonthCriteria(1, 2025, 2)

		total, err := s.SumAmounts(ctx, c)
		require.NoError(t, err)
		assert.InDelta(t, 400.50, total, 1e-9)

		sums, err := s.SumAmountsByCategory(ctx, c)
		require.NoError(t, err)
		require.Len(t, sums, 2)
		assert.Equal(t, core.Groceries, sums[0].Category)
		assert.InDelta(t, 300.50, sums[0].Value, 1e-9)
		assert.Equal(t, core.Other, sums[1].Category)
		assert.InDelta(t, 100.0, sums[1].Value, 1e-9)

		avgs, err := s.AverageAmountsByCategory(ctx, c)
		require.NoError(t, err)
		require.Len(t, avgs, 2)
		assert.InDelta(t, 150.25, avgs[0].Value, 1e-9)
		assert.InDelta(t, 100.0, avgs[1].Value, 1e-9)

		empty, err := s.SumAmounts(ctx, core.MonthCriteria(1, 2020, 1))
		require.NoError(t, err)
		assert.Equal(t, 0.0, empty)
		none, err := s.SumAmountsByCategory(ctx, core.MonthCriteria(1, 2020, 1))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		s := newStore(t, clock)
		boom := errors.New("boom")
		err := s.InTx(ctx, func(repo ledger.Repository) error {
			e := expense(1, core.NewDate(2025, 1, 1), core.Other, 100, "lost")
			if err := repo.Save(ctx, &e); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		n, err := s.CountBy(ctx, core.Criteria{OwnerID: 1})
		require.NoError(t, err)
		assert.Zero(t, n)

		err = s.InTx(ctx, func(repo ledger.Repository) error {
			e := expense(1, core.NewDate(2025, 1, 1), core.Other, 100, "kept")
			return repo.Save(ctx, &e)
		})
		require.NoError(t, err)
		n, err = s.CountBy(ctx, core.Criteria{OwnerID: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func expense(owner int64, d core.Date, category string, cents int64, desc string) core.Expense {
	return core.Expense{
		OwnerID:     owner,
		Date:        d,
		Category:    category,
		Amount:      core.Money{Cents: cents},
		Description: desc,
	}
}

func seed(t *testing.T, s ledger.Repository, items ...core.Expense) {
	t.Helper()
	for i := range items {
		require.NoError(t, s.Save(context.Background(), &items[i]))
	}
}

func descriptions(items []core.Expense) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.Description)
	}
	return out
}
