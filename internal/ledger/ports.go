// Package ledger defines the persistence contract for expenses and the
// small helpers every implementation shares.
package ledger

import (
	"context"
	"sort"

	"tally/internal/core"
)

// Ports for outbound adapters.
type (
	// Repository stores expenses and answers the aggregation queries.
	// Listing is ordered by date descending, then id descending.
	Repository interface {
		// Find returns nil, nil when no expense has the given id.
		Find(ctx context.Context, id int64) (*core.Expense, error)
		// Save inserts when e.ID is zero and assigns the new id to e;
		// otherwise it updates the row matching both e.ID and e.OwnerID.
		Save(ctx context.Context, e *core.Expense) error
		Delete(ctx context.Context, id int64) error
		// FindBy returns at most limit matches after skipping offset; a limit
		// below 1 returns every match after offset.
		FindBy(ctx context.Context, c core.Criteria, offset, limit int) ([]core.Expense, error)
		CountBy(ctx context.Context, c core.Criteria) (int, error)
		// ListExpenditureYears returns the years with at least one expense
		// plus the current year, descending.
		ListExpenditureYears(ctx context.Context, ownerID int64) ([]int, error)
		SumAmounts(ctx context.Context, c core.Criteria) (float64, error)
		SumAmountsByCategory(ctx context.Context, c core.Criteria) ([]core.CategoryValue, error)
		AverageAmountsByCategory(ctx context.Context, c core.Criteria) ([]core.CategoryValue, error)
	}

	// Transactor runs fn against a Repository bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transactor interface {
		InTx(ctx context.Context, fn func(repo Repository) error) error
	}

	// Store is a Repository that can also open transactions.
	Store interface {
		Repository
		Transactor
	}
)

// MergeCurrentYear adds current to years if missing and returns the result
// sorted descending without duplicates.
func MergeCurrentYear(years []int, current int) []int {
	seen := make(map[int]struct{}, len(years)+1)
	out := make([]int, 0, len(years)+1)
	all := append(append(make([]int, 0, len(years)+1), years...), current)
	for _, y := range all {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
