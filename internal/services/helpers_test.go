package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/ledger/memory"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newStore() *memory.Store {
	return memory.New(memory.WithClock(clock))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seed(t *testing.T, svc *ExpenseService, owner int64, date core.Date, category, amount, description string) *core.Expense {
	t.Helper()
	e, err := svc.Create(context.Background(), owner, dec(amount), description, date, category)
	require.NoError(t, err)
	return e
}

// recorder captures published events and change notifications.
type recorder struct {
	mu      sync.Mutex
	events  []ledger.Event
	changed []int64
	fail    bool
}

func (r *recorder) Publish(_ context.Context, evt ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if r.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func (r *recorder) LedgerChanged(ownerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, ownerID)
}

func (r *recorder) types() []ledger.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyStore fails the n-th Save made inside a transaction.
type flakyStore struct {
	*memory.Store
	failOn int
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ledger.Repository) error) error {
	return s.Store.InTx(ctx, func(repo ledger.Repository) error {
		return fn(&flakyRepo{Repository: repo, failOn: s.failOn})
	})
}

type flakyRepo struct {
	ledger.Repository
	failOn int
	saves  int
}

var errDisk = errors.New("disk full")

func (r *flakyRepo) Save(ctx context.Context, e *core.Expense) error {
	r.saves++
	if r.saves == r.failOn {
		return errDisk
	}
	return r.Repository.Save(ctx, e)
}
