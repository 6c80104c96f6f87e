package storage

import (
	"context"
	"database/sql"
	"strings"

	"tally/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the SQL for the expenses table.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Expense is a row of the expenses table.
type Expense struct {
	ID          int64
	UserID      int64
	Date        string
	Category    string
	AmountCents int64
	Description string
}

type CategoryAggregate struct {
	Category string
	Value    float64
}

const expenseColumns = `id, user_id, date, category, amount_cents, description`

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id)
	var e Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Date, &e.Category, &e.AmountCents, &e.Description)
	return e, err
}

const createExpense = `INSERT INTO expenses (user_id, date, category, amount_cents, description)
VALUES (?, ?, ?, ?, ?)`

type CreateExpenseParams struct {
	UserID      int64
	Date        string
	Category    string
	AmountCents int64
	Description string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExpense, arg.UserID, arg.Date, arg.Category, arg.AmountCents, arg.Description)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateExpense = `UPDATE expenses
SET date = ?, category = ?, amount_cents = ?, description = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND user_id = ?`

type UpdateExpenseParams struct {
	ID          int64
	UserID      int64
	Date        string
	Category    string
	AmountCents int64
	Description string
}

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense, arg.Date, arg.Category, arg.AmountCents, arg.Description, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteExpense, id)
	return err
}

// ListExpenses pages through matching rows. A limit below 1 means no limit.
func (q *Queries) ListExpenses(ctx context.Context, c core.Criteria, offset, limit int) ([]Expense, error) {
	if limit < 1 {
		limit = -1 // sqlite: no upper bound
	}
	offset = max(offset, 0)
	where, args := whereClause(c)
	query := `SELECT ` + expenseColumns + ` FROM expenses` + where + ` ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := q.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Expense{}
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Date, &e.Category, &e.AmountCents, &e.Description); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (q *Queries) CountExpenses(ctx context.Context, c core.Criteria) (int64, error) {
	where, args := whereClause(c)
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses`+where, args...).Scan(&n)
	return n, err
}

const listExpenseYears = `SELECT DISTINCT CAST(strftime('%Y', date) AS INTEGER) AS year
FROM expenses
WHERE user_id = ?
ORDER BY year DESC`

func (q *Queries) ListExpenseYears(ctx context.Context, userID int64) ([]int, error) {
	rows, err := q.db.QueryContext(ctx, listExpenseYears, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

func (q *Queries) SumAmountCents(ctx context.Context, c core.Criteria) (int64, error) {
	where, args := whereClause(c)
	var total int64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM expenses`+where, args...).Scan(&total)
	return total, err
}

// AggregateByCategory groups matching rows by category using fn, which must
// be SUM or AVG.
func (q *Queries) AggregateByCategory(ctx context.Context, fn string, c core.Criteria) ([]CategoryAggregate, error) {
	where, args := whereClause(c)
	query := `SELECT category, CAST(` + fn + `(amount_cents) AS REAL) FROM expenses` + where + ` GROUP BY category ORDER BY category`
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryAggregate
	for rows.Next() {
		var a CategoryAggregate
		if err := rows.Scan(&a.Category, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// whereClause renders c as a WHERE clause. Year is a half-open date range so
// the index on (user_id, date) stays usable; month compares the calendar
// month component independently of year.
func whereClause(c core.Criteria) (string, []any) {
	var conds []string
	var args []any
	if c.OwnerID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, c.OwnerID)
	}
	if c.Year != 0 {
		start, end := c.YearRange()
		conds = append(conds, "date >= ? AND date < ?")
		args = append(args, start.String(), end.String())
	}
	if c.Month != 0 {
		conds = append(conds, "CAST(strftime('%m', date) AS INTEGER) = ?")
		args = append(args, c.Month)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
