package http

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/log"
)

type userHandler func(w http.ResponseWriter, r *http.Request, ownerID int64)

// withUser rejects requests without a valid user id header.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ParseOwnerID(r, s.userHeader)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid user id")
			return
		}
		ctx := log.NewContext(r.Context(), log.FromContext(r.Context()).With(log.FieldOwnerID, ownerID))
		next(w, r.WithContext(ctx), ownerID)
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, ownerID int64) {
	ctx := r.Context()
	query := r.URL.Query()
	month, err := ParseMonthParams(query, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := ParsePageParams(query, s.pageSize)

	items, err := s.expenses.List(ctx, ownerID, month.Year, month.Month, page.Page, page.PageSize)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	total, err := s.expenses.Count(ctx, ownerID, month.Year, month.Month)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	years, err := s.expenses.AvailableYears(ctx, ownerID)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}

	writeJSON(w, http.StatusOK, ExpensePage{
		Items:          toDTOs(items),
		Total:          total,
		Page:           page.Page,
		PageSize:       page.PageSize,
		Year:           month.Year,
		Month:          month.Month,
		AvailableYears: years,
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, ownerID int64) {
	in, err := DecodeExpenseInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, date, category, verr := in.Resolve()
	if !verr.Empty() {
		s.writeInputErrors(w, verr, in, amount, date, category)
		return
	}

	e, err := s.expenses.Create(r.Context(), ownerID, amount, in.Description, date, category)
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(*e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, ownerID int64) {
	e, ok := s.ownedExpense(w, r, ownerID)
	if !ok {
		return
	}
	in, err := DecodeExpenseInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, date, category, verr := in.Resolve()
	if !verr.Empty() {
		s.writeInputErrors(w, verr, in, amount, date, category)
		return
	}

	if err := s.expenses.Update(r.Context(), e, amount, in.Description, date, category); err != nil {
		writeServiceError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, ownerID int64) {
	e, ok := s.ownedExpense(w, r, ownerID)
	if !ok {
		return
	}
	if err := s.expenses.Delete(r.Context(), e.ID); err != nil {
		writeServiceError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedExpense loads the expense named by the path and checks it belongs to
// ownerID. It writes the error response itself when it returns false.
func (s *Server) ownedExpense(w http.ResponseWriter, r *http.Request, ownerID int64) (*core.Expense, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid expense id")
		return nil, false
	}
	e, err := s.expenses.FindByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, log.OpRead, err)
		return nil, false
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "expense not found")
		return nil, false
	}
	if e.OwnerID != ownerID {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Expense access denied", log.FieldExpenseID, id)
		writeError(w, http.StatusForbidden, "expense belongs to another user")
		return nil, false
	}
	return e, true
}

// writeInputErrors reports wire-level parse failures together with whatever
// the remaining fields fail, so the client sees every problem at once.
func (s *Server) writeInputErrors(w http.ResponseWriter, verr *core.ValidationError, in ExpenseInput, amount decimal.Decimal, date core.Date, category string) {
	money, _ := core.MoneyFromMajor(amount)
	if more := core.ValidateFields(money, in.Description, date, category, s.now()); more != nil {
		for field, msg := range more.Fields {
			verr.Add(field, msg)
		}
	}
	writeValidation(w, verr)
}
