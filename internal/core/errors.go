package core

import (
	"errors"
	"sort"
	"strings"
)

// ValidationError maps a field name to a human-readable message. It is the
// only error kind that services return for bad input; anything else is an
// infrastructure failure.
type ValidationError struct {
	Fields map[string]string
}

// Add records msg for field unless the field already has a message.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// AsValidation extracts the *ValidationError from err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
