package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

const maxFormBytes = 64 << 10

// MonthParams holds the year and month a request asks for.
type MonthParams struct {
	Year  int
	Month int
}

// PageParams holds 1-based pagination.
type PageParams struct {
	Page     int
	PageSize int
}

// ParseMonthParams reads year and month from the query, defaulting each to
// now when missing or unparsable. A month outside 1-12 is an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	p := MonthParams{Year: now.Year(), Month: int(now.Month())}
	if y, ok := queryInt(query, "year"); ok {
		p.Year = y
	}
	if m, ok := queryInt(query, "month"); ok {
		if m < 1 || m > 12 {
			return MonthParams{}, fmt.Errorf("month must be between 1 and 12")
		}
		p.Month = m
	}
	return p, nil
}

// ParsePageParams reads page and pageSize, clamping both to at least 1.
func ParsePageParams(query url.Values, defaultSize int) PageParams {
	p := PageParams{Page: 1, PageSize: defaultSize}
	if v, ok := queryInt(query, "page"); ok {
		p.Page = v
	}
	if v, ok := queryInt(query, "pageSize"); ok {
		p.PageSize = v
	}
	p.Page = max(1, p.Page)
	p.PageSize = max(1, p.PageSize)
	return p
}

func queryInt(query url.Values, key string) (int, bool) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseOwnerID reads a positive user id from the trusted header.
func ParseOwnerID(r *http.Request, header string) (int64, bool) {
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*f = flexString(n.String())
	return nil
}

// ExpenseInput is the body of create and update requests.
type ExpenseInput struct {
	Date        string     `json:"date"`
	Amount      flexString `json:"amount"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
}

// DecodeExpenseInput reads a JSON or form-encoded body.
func DecodeExpenseInput(r *http.Request) (ExpenseInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var in ExpenseInput
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxFormBytes))
		if err := dec.Decode(&in); err != nil {
			return ExpenseInput{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		return in, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return ExpenseInput{}, fmt.Errorf("invalid form body: %w", err)
	}
	return ExpenseInput{
		Date:        r.PostForm.Get("date"),
		Amount:      flexString(r.PostForm.Get("amount")),
		Description: r.PostForm.Get("description"),
		Category:    r.PostForm.Get("category"),
	}, nil
}

// Resolve parses the wire fields. Fields that fail to parse are returned as
// zero values and described in the returned ValidationError, which the
// caller merges with the service's own validation.
func (in ExpenseInput) Resolve() (decimal.Decimal, core.Date, string, *core.ValidationError) {
	verr := &core.ValidationError{}

	amount := decimal.Zero
	if strings.TrimSpace(string(in.Amount)) != "" {
		d, err := core.ParseMajor(string(in.Amount))
		switch {
		case err != nil:
			verr.Add(core.FieldAmount, "Amount must be a number")
		case !fitsCents(d):
			verr.Add(core.FieldAmount, "Amount is too large")
		default:
			amount = d
		}
	}

	var date core.Date
	if strings.TrimSpace(in.Date) != "" {
		d, err := core.ParseDate(strings.TrimSpace(in.Date))
		if err != nil {
			verr.Add(core.FieldDate, "Date must use the YYYY-MM-DD format")
		} else {
			date = d
		}
	}

	category := strings.TrimSpace(in.Category)
	if category != "" {
		c, err := core.ParseCategory(category)
		if err != nil {
			verr.Add(core.FieldCategory, "Please select a valid category")
		} else {
			category = c
		}
	}

	return amount, date, category, verr
}

func fitsCents(d decimal.Decimal) bool {
	_, err := core.MoneyFromMajor(d)
	return err == nil
}
