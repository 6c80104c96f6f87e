package backend

import (
	"context"
	"log/slog"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/services"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Backend is the assembled application graph over one ledger store.
type Backend struct {
	Store     ledger.Store
	Expenses  *services.ExpenseService
	Summary   *services.SummaryService
	Alerts    *services.AlertGenerator
	Dashboard *services.DashboardService
	Importer  *services.Importer
	Caches    *cache.Manager
	Budgets   core.BudgetTable
}

// Ping reports whether the underlying store is reachable. Stores without a
// health check are always healthy.
func (b *Backend) Ping(ctx context.Context) error {
	if p, ok := b.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// BackendResult contains the backend and its cleanup function.
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds everything needed to assemble a backend.
type Config struct {
	Type BackendType

	SQLiteDBPath string

	// Events are published only when AMQPURL is set.
	AMQPURL      string
	AMQPExchange string

	Budgets        core.BudgetTable
	CacheSize      int
	CacheTTL       time.Duration
	MaxUploadBytes int64
	CheckPersisted bool
	Observer       services.RowObserver

	// Clock overrides time.Now for validation and the current year.
	Clock func() time.Time

	// Publisher replaces the AMQP client when set.
	Publisher ledger.Publisher

	Logger *slog.Logger
}

// BackendType names a ledger store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
