package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	aggSum = "SUM"
	aggAvg = "AVG"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// Option configures a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithClock overrides the clock used to determine the current year.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

// DSN returns the connection string used for dbPath. Pragmas are set per
// connection so every pooled connection waits on locks instead of failing.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Find(ctx context.Context, id int64) (*core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expense by id: %w", err)
	}
	e, err := toCore(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, e *core.Expense) error {
	if e.ID == 0 {
		id, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
			UserID:      e.OwnerID,
			Date:        e.Date.String(),
			Category:    e.Category,
			AmountCents: e.Amount.Cents,
			Description: e.Description,
		})
		if err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		e.ID = id

		slog.DebugContext(ctx, "Expense saved to SQLite",
			"id", e.ID,
			"owner_id", e.OwnerID,
			"amount_cents", e.Amount.Cents,
			"date", e.Date.String())
		return nil
	}

	n, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:          e.ID,
		UserID:      e.OwnerID,
		Date:        e.Date.String(),
		Category:    e.Category,
		AmountCents: e.Amount.Cents,
		Description: e.Description,
	})
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		slog.WarnContext(ctx, "Expense update matched no row", "id", e.ID, "owner_id", e.OwnerID)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if err := r.queries.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindBy(ctx context.Context, c core.Criteria, offset, limit int) ([]core.Expense, error) {
	rows, err := r.queries.ListExpenses(ctx, c, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) CountBy(ctx context.Context, c core.Criteria) (int, error) {
	n, err := r.queries.CountExpenses(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) ListExpenditureYears(ctx context.Context, ownerID int64) ([]int, error) {
	years, err := r.queries.ListExpenseYears(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list expense years: %w", err)
	}
	return ledger.MergeCurrentYear(years, r.now().Year()), nil
}

func (r *SQLiteRepository) SumAmounts(ctx context.Context, c core.Criteria) (float64, error) {
	cents, err := r.queries.SumAmountCents(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("sum amounts: %w", err)
	}
	return core.Money{Cents: cents}.Float64(), nil
}

func (r *SQLiteRepository) SumAmountsByCategory(ctx context.Context, c core.Criteria) ([]core.CategoryValue, error) {
	return r.aggregate(ctx, aggSum, c)
}

func (r *SQLiteRepository) AverageAmountsByCategory(ctx context.Context, c core.Criteria) ([]core.CategoryValue, error) {
	return r.aggregate(ctx, aggAvg, c)
}

func (r *SQLiteRepository) aggregate(ctx context.Context, fn string, c core.Criteria) ([]core.CategoryValue, error) {
	rows, err := r.queries.AggregateByCategory(ctx, fn, c)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s by category: %w", fn, err)
	}
	out := make([]core.CategoryValue, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CategoryValue{Category: row.Category, Value: core.CentsToMajor(row.Value)})
	}
	return out, nil
}

// InTx runs fn inside a single SQLite transaction.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(repo ledger.Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &SQLiteRepository{
		db:      r.db,
		queries: r.queries.WithTx(tx),
		now:     r.now,
	}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toCore(row Expense) (core.Expense, error) {
	d, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d has malformed date %q: %w", row.ID, row.Date, err)
	}
	return core.Expense{
		ID:          row.ID,
		OwnerID:     row.UserID,
		Date:        d,
		Category:    row.Category,
		Amount:      core.Money{Cents: row.AmountCents},
		Description: row.Description,
	}, nil
}
