// Package memory is an in-process ledger.Store. Transactions are serialized
// and roll back by restoring a snapshot taken when they began.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
)

type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	items  map[int64]core.Expense
	nextID int64
	now    func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to determine the current year.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		items:  make(map[int64]core.Expense),
		nextID: 1,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Find(_ context.Context, id int64) (*core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) Save(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.nextID
		s.nextID++
		s.items[e.ID] = *e
		return nil
	}
	// Updates never cross owners.
	if cur, ok := s.items[e.ID]; ok && cur.OwnerID == e.OwnerID {
		s.items[e.ID] = *e
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) FindBy(_ context.Context, c core.Criteria, offset, limit int) ([]core.Expense, error) {
	matched := s.match(c)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date.Time) {
			return matched[i].Date.After(matched[j].Date.Time)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []core.Expense{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (s *Store) CountBy(_ context.Context, c core.Criteria) (int, error) {
	return len(s.match(c)), nil
}

func (s *Store) ListExpenditureYears(_ context.Context, ownerID int64) ([]int, error) {
	var years []int
	for _, e := range s.match(core.Criteria{OwnerID: ownerID}) {
		years = append(years, e.Date.Year())
	}
	return ledger.MergeCurrentYear(years, s.now().Year()), nil
}

func (s *Store) SumAmounts(_ context.Context, c core.Criteria) (float64, error) {
	var cents int64
	for _, e := range s.match(c) {
		cents += e.Amount.Cents
	}
	return core.Money{Cents: cents}.Float64(), nil
}

func (s *Store) SumAmountsByCategory(_ context.Context, c core.Criteria) ([]core.CategoryValue, error) {
	sums, _ := s.group(c)
	out := make([]core.CategoryValue, 0, len(sums))
	for _, cat := range sortedKeys(sums) {
		out = append(out, core.CategoryValue{Category: cat, Value: core.Money{Cents: sums[cat]}.Float64()})
	}
	return out, nil
}

func (s *Store) AverageAmountsByCategory(_ context.Context, c core.Criteria) ([]core.CategoryValue, error) {
	sums, counts := s.group(c)
	out := make([]core.CategoryValue, 0, len(sums))
	for _, cat := range sortedKeys(sums) {
		avg := float64(sums[cat]) / float64(counts[cat])
		out = append(out, core.CategoryValue{Category: cat, Value: core.CentsToMajor(avg)})
	}
	return out, nil
}

// InTx runs fn against the store itself and restores the pre-transaction
// snapshot if fn fails. Transactions are serialized with each other but not
// with plain writes.
func (s *Store) InTx(ctx context.Context, fn func(repo ledger.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[int64]core.Expense, len(s.items))
	for id, e := range s.items {
		snapshot[id] = e
	}
	nextID := s.nextID
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.items = snapshot
		s.nextID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) match(c core.Criteria) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, e := range s.items {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) group(c core.Criteria) (sums map[string]int64, counts map[string]int64) {
	sums = make(map[string]int64)
	counts = make(map[string]int64)
	for _, e := range s.match(c) {
		sums[e.Category] += e.Amount.Cents
		counts[e.Category]++
	}
	return sums, counts
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
