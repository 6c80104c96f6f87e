package ledger

import (
	"context"
	"time"
)

// EventType names a ledger change.
type EventType string

const (
	EventExpenseCreated  EventType = "expense.created"
	EventExpenseUpdated  EventType = "expense.updated"
	EventExpenseDeleted  EventType = "expense.deleted"
	EventImportCompleted EventType = "import.completed"
)

// Event is a committed ledger change. Expense fields are zero for import
// events; batch fields are zero for single-expense events.
type Event struct {
	Type      EventType `json:"type"`
	OwnerID   int64     `json:"owner_id"`
	ExpenseID int64     `json:"expense_id,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	Imported  int       `json:"imported,omitempty"`
	Skipped   int       `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers ledger events downstream. Implementations must not be
// required for correctness: callers log and ignore publish failures.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// ChangeListener is notified synchronously after an owner's ledger changes.
type ChangeListener interface {
	LedgerChanged(ownerID int64)
}
