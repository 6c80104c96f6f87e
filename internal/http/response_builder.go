package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tally/internal/core"
	"tally/internal/log"
)

// ExpenseDTO is the wire form of an expense.
type ExpenseDTO struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amountCents"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func toDTO(e core.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          e.ID,
		Date:        e.Date.String(),
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		Category:    e.Category,
	}
}

func toDTOs(items []core.Expense) []ExpenseDTO {
	out := make([]ExpenseDTO, 0, len(items))
	for _, e := range items {
		out = append(out, toDTO(e))
	}
	return out
}

// ExpensePage is the response of the list endpoint.
type ExpensePage struct {
	Items          []ExpenseDTO `json:"items"`
	Total          int          `json:"total"`
	Page           int          `json:"page"`
	PageSize       int          `json:"pageSize"`
	Year           int          `json:"year"`
	Month          int          `json:"month"`
	AvailableYears []int        `json:"availableYears"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeValidation(w http.ResponseWriter, verr *core.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]map[string]string{"errors": verr.Fields})
}

// writeServiceError maps a service error to a response. Anything that is not
// a validation failure is logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		writeValidation(w, verr)
		return
	}
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldError, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
