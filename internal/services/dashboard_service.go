package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"tally/internal/cache"
	"tally/internal/core"
)

// DashboardService assembles the month overview and caches it per owner and
// month. It implements ledger.ChangeListener so writes drop stale entries.
type DashboardService struct {
	summary *SummaryService
	alerts  *AlertGenerator
	cache   cache.Cache[core.MonthOverview]

	// generations counts invalidations per owner. An overview is cached
	// only if no invalidation happened while it was being built.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewDashboardService wires the overview. c may be nil to disable caching.
func NewDashboardService(summary *SummaryService, alerts *AlertGenerator, c cache.Cache[core.MonthOverview]) *DashboardService {
	return &DashboardService{
		summary:     summary,
		alerts:      alerts,
		cache:       c,
		generations: make(map[int64]uint64),
	}
}

// Overview returns totals, averages, alerts and the browsable years for one
// owner's month.
func (d *DashboardService) Overview(ctx context.Context, ownerID int64, year, month int) (core.MonthOverview, error) {
	key := overviewKey(ownerID, year, month)
	if d.cache != nil {
		if ov, ok := d.cache.Get(key); ok {
			return ov, nil
		}
	}

	gen := d.generation(ownerID)
	ov := core.MonthOverview{Year: year, Month: month}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ov.Total, err = d.summary.TotalExpenditure(gctx, ownerID, year, month)
		return err
	})
	g.Go(func() (err error) {
		ov.Averages, err = d.summary.PerCategoryAverages(gctx, ownerID, year, month)
		return err
	})
	g.Go(func() (err error) {
		ov.AvailableYears, err = d.summary.AvailableYears(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		totals, err := d.summary.PerCategoryTotals(gctx, ownerID, year, month)
		if err != nil {
			return err
		}
		ov.Totals = totals
		ov.Alerts = BuildAlerts(totals, d.alerts.Budgets())
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.MonthOverview{}, fmt.Errorf("build overview: %w", err)
	}

	if d.cache != nil {
		d.mu.Lock()
		if d.generations[ownerID] == gen {
			d.cache.Set(key, ov)
		}
		d.mu.Unlock()
	}
	return ov, nil
}

func (d *DashboardService) generation(ownerID int64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generations[ownerID]
}

// LedgerChanged drops every cached month for ownerID.
func (d *DashboardService) LedgerChanged(ownerID int64) {
	if d.cache == nil {
		return
	}
	d.mu.Lock()
	d.generations[ownerID]++
	n := d.cache.DeletePrefix(ownerPrefix(ownerID))
	d.mu.Unlock()
	if n > 0 {
		slog.Debug("Invalidated cached overviews", "owner_id", ownerID, "entries", n)
	}
}

func ownerPrefix(ownerID int64) string {
	return fmt.Sprintf("%d:", ownerID)
}

func overviewKey(ownerID int64, year, month int) string {
	return fmt.Sprintf("%s%d:%d", ownerPrefix(ownerID), year, month)
}
