package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/ledger/memory"
	"tally/internal/services"
	"tally/internal/storage"
)

// DefaultFactory implements Factory.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store and wires the services over it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}

	var (
		store   ledger.Store
		closers []func() error
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, storage.WithClock(now))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		closers = append(closers, repo.Close)
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New(memory.WithClock(now))
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	publisher := config.Publisher
	if publisher == nil && config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			publisher = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange)
		}
	}

	budgets := config.Budgets
	if budgets.Len() == 0 {
		budgets = core.DefaultBudgetTable()
	}

	b := assemble(store, publisher, budgets, config, now)
	if config.CacheTTL > 0 {
		b.Caches.StartCleanup(config.CacheTTL)
	}

	cleanup := func() error {
		b.Caches.Stop()
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return &BackendResult{Backend: b, Cleanup: cleanup}, nil
}

func assemble(store ledger.Store, publisher ledger.Publisher, budgets core.BudgetTable, config Config, now func() time.Time) *Backend {
	opts := []services.Option{services.WithClock(now)}
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}
	expenses := services.NewExpenseService(store, opts...)
	summary := services.NewSummaryService(store)
	alerts := services.NewAlertGenerator(summary, budgets)

	manager := cache.NewManager()
	var overviews cache.Cache[core.MonthOverview]
	if config.CacheSize > 0 && config.CacheTTL > 0 {
		lru := cache.NewLRUCache[core.MonthOverview](config.CacheSize, config.CacheTTL)
		manager.Register(lru)
		overviews = lru
	}
	dashboard := services.NewDashboardService(summary, alerts, overviews)
	expenses.AddChangeListener(dashboard)

	importOpts := []services.ImportOption{
		services.WithMaxUploadBytes(config.MaxUploadBytes),
		services.WithPersistedDuplicateCheck(config.CheckPersisted),
	}
	if config.Observer != nil {
		importOpts = append(importOpts, services.WithRowObserver(config.Observer))
	}

	return &Backend{
		Store:     store,
		Expenses:  expenses,
		Summary:   summary,
		Alerts:    alerts,
		Dashboard: dashboard,
		Importer:  services.NewImporter(store, expenses, importOpts...),
		Caches:    manager,
		Budgets:   budgets,
	}
}
