package core

import "strings"

// The closed set of expense categories, in display order.
const (
	Groceries     = "groceries"
	Utilities     = "utilities"
	Transport     = "transport"
	Entertainment = "entertainment"
	Housing       = "housing"
	Health        = "health"
	Other         = "other"
)

var categories = []string{Groceries, Utilities, Transport, Entertainment, Housing, Health, Other}

// Categories returns the category set in display order.
func Categories() []string {
	return append([]string(nil), categories...)
}

// ParseCategory resolves s case-insensitively to its canonical name.
func ParseCategory(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyCategory
	}
	for _, c := range categories {
		if strings.EqualFold(c, s) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

// IsCategory reports whether s is exactly a canonical category name.
func IsCategory(s string) bool {
	for _, c := range categories {
		if c == s {
			return true
		}
	}
	return false
}
