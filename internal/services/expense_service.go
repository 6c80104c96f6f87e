package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/ledger"
)

// ExpenseService validates ledger writes and delegates storage to the
// repository. Ownership checks are the caller's job.
type ExpenseService struct {
	repo      ledger.Repository
	publisher ledger.Publisher
	listeners []ledger.ChangeListener
	now       func() time.Time
}

// Option configures an ExpenseService.
type Option func(*ExpenseService)

// WithPublisher publishes committed changes. Publish failures are logged only.
func WithPublisher(p ledger.Publisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithChangeListener registers l to be told whenever an owner's ledger changes.
func WithChangeListener(l ledger.ChangeListener) Option {
	return func(s *ExpenseService) { s.listeners = append(s.listeners, l) }
}

// WithClock overrides the clock used for the future-date rule.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(repo ledger.Repository, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddChangeListener registers l after construction.
func (s *ExpenseService) AddChangeListener(l ledger.ChangeListener) {
	s.listeners = append(s.listeners, l)
}

// Create validates the input and persists a new expense. Bad input yields a
// *core.ValidationError and nothing is written.
func (s *ExpenseService) Create(ctx context.Context, ownerID int64, amount decimal.Decimal, description string, date core.Date, category string) (*core.Expense, error) {
	e := &core.Expense{OwnerID: ownerID}
	if err := s.apply(e, amount, description, date, category); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"id", e.ID,
		"owner_id", e.OwnerID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"date", e.Date.String())

	s.changed(ctx, ledger.Event{Type: ledger.EventExpenseCreated, OwnerID: ownerID, ExpenseID: e.ID})
	return e, nil
}

// Update re-validates and overwrites the mutable fields of e in place. ID
// and owner never change.
func (s *ExpenseService) Update(ctx context.Context, e *core.Expense, amount decimal.Decimal, description string, date core.Date, category string) error {
	next := *e
	if err := s.apply(&next, amount, description, date, category); err != nil {
		return err
	}
	next.ID, next.OwnerID = e.ID, e.OwnerID

	if err := s.repo.Save(ctx, &next); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	*e = next

	slog.InfoContext(ctx, "Expense updated", "id", e.ID, "owner_id", e.OwnerID)
	s.changed(ctx, ledger.Event{Type: ledger.EventExpenseUpdated, OwnerID: e.OwnerID, ExpenseID: e.ID})
	return nil
}

// Delete removes the expense with the given id.
func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	existing, err := s.repo.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("find expense: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if existing == nil {
		return nil
	}

	slog.InfoContext(ctx, "Expense deleted", "id", id, "owner_id", existing.OwnerID)
	s.changed(ctx, ledger.Event{Type: ledger.EventExpenseDeleted, OwnerID: existing.OwnerID, ExpenseID: id})
	return nil
}

// FindByID returns nil, nil when the expense does not exist.
func (s *ExpenseService) FindByID(ctx context.Context, id int64) (*core.Expense, error) {
	return s.repo.Find(ctx, id)
}

// List returns one page of an owner's month. pageNumber and pageSize are
// expected to be at least 1.
func (s *ExpenseService) List(ctx context.Context, ownerID int64, year, month, pageNumber, pageSize int) ([]core.Expense, error) {
	offset := (pageNumber - 1) * pageSize
	items, err := s.repo.FindBy(ctx, core.MonthCriteria(ownerID, year, month), offset, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

// Count returns the number of expenses in an owner's month.
func (s *ExpenseService) Count(ctx context.Context, ownerID int64, year, month int) (int, error) {
	n, err := s.repo.CountBy(ctx, core.MonthCriteria(ownerID, year, month))
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return n, nil
}

// AvailableYears lists the years an owner can browse, descending.
func (s *ExpenseService) AvailableYears(ctx context.Context, ownerID int64) ([]int, error) {
	return s.repo.ListExpenditureYears(ctx, ownerID)
}

// bound returns a copy writing through repo with notifications disabled,
// for use inside a transaction whose outcome is announced separately.
func (s *ExpenseService) bound(repo ledger.Repository) *ExpenseService {
	c := *s
	c.repo = repo
	c.publisher = nil
	c.listeners = nil
	return &c
}

func (s *ExpenseService) apply(e *core.Expense, amount decimal.Decimal, description string, date core.Date, category string) error {
	description = strings.TrimSpace(description)
	category = normalizeCategory(category)

	verr := &core.ValidationError{}
	money, err := core.MoneyFromMajor(amount)
	if err != nil {
		verr.Add(core.FieldAmount, "Amount is too large")
	}
	if more := core.ValidateFields(money, description, date, category, s.now()); more != nil {
		for field, msg := range more.Fields {
			verr.Add(field, msg)
		}
	}
	if !verr.Empty() {
		return verr
	}

	e.Amount = money
	e.Description = description
	e.Date = date
	e.Category = category
	return nil
}

// normalizeCategory canonicalizes known categories and passes anything else
// through trimmed; closed-set enforcement belongs to callers that need it.
func normalizeCategory(category string) string {
	if c, err := core.ParseCategory(category); err == nil {
		return c
	}
	return strings.TrimSpace(category)
}

func (s *ExpenseService) changed(ctx context.Context, evt ledger.Event) {
	for _, l := range s.listeners {
		l.LedgerChanged(evt.OwnerID)
	}
	s.publish(ctx, evt)
}

func (s *ExpenseService) publish(ctx context.Context, evt ledger.Event) {
	if s.publisher == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now()
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		// The ledger write already succeeded
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", evt.Type,
			"owner_id", evt.OwnerID,
			"error", err)
	}
}
