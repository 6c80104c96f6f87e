package core

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Field names used as keys in ValidationError.Fields.
const (
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldDate        = "date"
	FieldCategory    = "category"
)

type (
	// Date is a calendar date with no time component, always stored at UTC midnight.
	Date struct {
		time.Time
	}

	// Money holds an amount in minor currency units (cents).
	Money struct {
		Cents int64
	}

	// Expense is a single ledger entry. ID is zero until the repository
	// assigns one on first save; OwnerID never changes after creation.
	Expense struct {
		ID          int64
		OwnerID     int64
		Date        Date
		Category    string
		Amount      Money
		Description string
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrFutureDate       = errors.New("date is in the future")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrUnknownCategory  = errors.New("unknown category")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the calendar date of now, in now's location.
func Today(now time.Time) Date {
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// IsAfterDay reports whether d falls on a calendar day strictly after now's day.
func (d Date) IsAfterDay(now time.Time) bool {
	return d.Time.After(Today(now).Time)
}

// Validate checks every field constraint independently and reports all
// failures together. It returns nil when the expense is valid.
func (e Expense) Validate(now time.Time) error {
	verr := ValidateFields(e.Amount, e.Description, e.Date, e.Category, now)
	if verr == nil {
		return nil
	}
	return verr
}

// ValidateFields applies the ledger field rules. Category is only checked
// for presence; membership of the closed set is enforced by callers that
// need it.
func ValidateFields(amount Money, description string, date Date, category string, now time.Time) *ValidationError {
	verr := &ValidationError{}
	if amount.Cents <= 0 {
		verr.Add(FieldAmount, "Amount must be greater than 0")
	}
	if strings.TrimSpace(description) == "" {
		verr.Add(FieldDescription, "Description cannot be empty")
	}
	switch {
	case date.IsZero():
		verr.Add(FieldDate, "Date is required")
	case date.IsAfterDay(now):
		verr.Add(FieldDate, "Date cannot be in the future")
	}
	if strings.TrimSpace(category) == "" {
		verr.Add(FieldCategory, "Please select a valid category")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}
