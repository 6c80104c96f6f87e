package services

import (
	"context"
	"fmt"

	"tally/internal/core"
	"tally/internal/ledger"
)

// SummaryService answers the read-only aggregation queries for one owner's
// month.
type SummaryService struct {
	repo ledger.Repository
}

func NewSummaryService(repo ledger.Repository) *SummaryService {
	return &SummaryService{repo: repo}
}

// TotalExpenditure sums the month's amounts in major units, 0 when empty.
func (s *SummaryService) TotalExpenditure(ctx context.Context, ownerID int64, year, month int) (float64, error) {
	total, err := s.repo.SumAmounts(ctx, core.MonthCriteria(ownerID, year, month))
	if err != nil {
		return 0, fmt.Errorf("sum amounts: %w", err)
	}
	return total, nil
}

// PerCategoryTotals returns one row per category present in the month with
// its sum and share of the month's total.
func (s *SummaryService) PerCategoryTotals(ctx context.Context, ownerID int64, year, month int) ([]core.AggregateRow, error) {
	c := core.MonthCriteria(ownerID, year, month)
	values, err := s.repo.SumAmountsByCategory(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	return s.annotate(ctx, c, values)
}

// PerCategoryAverages returns one row per category with the mean amount.
// The percentage is the average relative to the month's total, not to the
// sum of averages.
func (s *SummaryService) PerCategoryAverages(ctx context.Context, ownerID int64, year, month int) ([]core.AggregateRow, error) {
	c := core.MonthCriteria(ownerID, year, month)
	values, err := s.repo.AverageAmountsByCategory(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("average by category: %w", err)
	}
	return s.annotate(ctx, c, values)
}

// AvailableYears lists every year with data plus the current one, descending.
func (s *SummaryService) AvailableYears(ctx context.Context, ownerID int64) ([]int, error) {
	years, err := s.repo.ListExpenditureYears(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list years: %w", err)
	}
	return years, nil
}

func (s *SummaryService) annotate(ctx context.Context, c core.Criteria, values []core.CategoryValue) ([]core.AggregateRow, error) {
	if len(values) == 0 {
		return []core.AggregateRow{}, nil
	}
	total, err := s.repo.SumAmounts(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("sum amounts: %w", err)
	}
	return core.Annotate(values, total), nil
}
