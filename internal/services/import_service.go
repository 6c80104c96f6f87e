package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"
)

// SkipReason says why an import row was not stored.
type SkipReason string

const (
	ReasonMalformedRow       SkipReason = "malformed_row"
	ReasonEmptyDescription   SkipReason = "empty_description"
	ReasonInvalidCategory    SkipReason = "invalid_category"
	ReasonInvalidAmount      SkipReason = "invalid_amount"
	ReasonInvalidDate        SkipReason = "invalid_date"
	ReasonDuplicateInBatch   SkipReason = "duplicate_in_batch"
	ReasonDuplicatePersisted SkipReason = "duplicate_persisted"
	ReasonValidationFailed   SkipReason = "validation_failed"
)

// DefaultMaxUploadBytes bounds an import payload when no limit is configured.
const DefaultMaxUploadBytes int64 = 5 << 20

// ErrUploadTooLarge is returned before any row is processed.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// RowOutcome records what happened to one non-blank line. Line is 1-based
// and counts blank lines too.
type RowOutcome struct {
	Line      int        `json:"line"`
	Imported  bool       `json:"imported"`
	ExpenseID int64      `json:"expenseId,omitempty"`
	Reason    SkipReason `json:"reason,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	// Row is the trimmed source line.
	Row string `json:"row"`
}

// ImportResult summarizes one upload. Imported+Skipped equals the number of
// non-blank lines.
type ImportResult struct {
	BatchID  string       `json:"batchId"`
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Rows     []RowOutcome `json:"rows"`
}

// RowObserver is told about every row once the batch outcome is known.
type RowObserver interface {
	RowImported(ctx context.Context, batchID string, row RowOutcome)
	RowSkipped(ctx context.Context, batchID string, row RowOutcome)
	BatchFailed(ctx context.Context, batchID string, err error)
}

// Importer turns a CSV upload into expenses for one owner. Rows have no
// header and carry date, amount, description and category in that order.
// Each upload runs in a single transaction.
type Importer struct {
	tx             ledger.Transactor
	expenses       *ExpenseService
	observer       RowObserver
	maxBytes       int64
	checkPersisted bool
	newBatchID     func() string
}

// ImportOption configures an Importer.
type ImportOption func(*Importer)

func WithRowObserver(o RowObserver) ImportOption {
	return func(im *Importer) { im.observer = o }
}

// WithMaxUploadBytes caps the payload size. Values below 1 keep the default.
func WithMaxUploadBytes(n int64) ImportOption {
	return func(im *Importer) {
		if n > 0 {
			im.maxBytes = n
		}
	}
}

// WithPersistedDuplicateCheck also skips rows matching an expense already
// stored for the owner.
func WithPersistedDuplicateCheck(enabled bool) ImportOption {
	return func(im *Importer) { im.checkPersisted = enabled }
}

// WithBatchIDs overrides batch id generation.
func WithBatchIDs(next func() string) ImportOption {
	return func(im *Importer) { im.newBatchID = next }
}

func NewImporter(tx ledger.Transactor, expenses *ExpenseService, opts ...ImportOption) *Importer {
	im := &Importer{
		tx:         tx,
		expenses:   expenses,
		maxBytes:   DefaultMaxUploadBytes,
		newBatchID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import reads r fully and stores every valid row for ownerID. Bad rows are
// skipped and counted; a storage failure aborts the batch and nothing from
// it is kept.
func (im *Importer) Import(ctx context.Context, ownerID int64, r io.Reader) (ImportResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, im.maxBytes+1))
	if err != nil {
		return ImportResult{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > im.maxBytes {
		return ImportResult{}, ErrUploadTooLarge
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	batchID := im.newBatchID()
	var result ImportResult
	err = im.tx.InTx(ctx, func(repo ledger.Repository) error {
		b := &batch{
			ctx:      ctx,
			owner:    ownerID,
			repo:     repo,
			svc:      im.expenses.bound(repo),
			persist:  im.checkPersisted,
			seen:     make(map[string]struct{}),
			created:  make(map[int64]struct{}),
			existing: make(map[[2]int][]core.Expense),
		}
		res, err := b.run(string(data))
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if im.observer != nil {
			im.observer.BatchFailed(ctx, batchID, err)
		}
		return ImportResult{}, fmt.Errorf("import batch %s: %w", batchID, err)
	}
	result.BatchID = batchID

	if im.observer != nil {
		for _, row := range result.Rows {
			if row.Imported {
				im.observer.RowImported(ctx, batchID, row)
			} else {
				im.observer.RowSkipped(ctx, batchID, row)
			}
		}
	}

	slog.InfoContext(ctx, "Import completed",
		"batch_id", batchID,
		"owner_id", ownerID,
		"imported", result.Imported,
		"skipped", result.Skipped)

	if result.Imported > 0 {
		for _, l := range im.expenses.listeners {
			l.LedgerChanged(ownerID)
		}
	}
	im.expenses.publish(ctx, ledger.Event{
		Type:     ledger.EventImportCompleted,
		OwnerID:  ownerID,
		BatchID:  batchID,
		Imported: result.Imported,
		Skipped:  result.Skipped,
	})
	return result, nil
}

// batch holds the state of one import transaction.
type batch struct {
	ctx      context.Context
	owner    int64
	repo     ledger.Repository
	svc      *ExpenseService
	persist  bool
	seen     map[string]struct{}
	created  map[int64]struct{}
	existing map[[2]int][]core.Expense
}

func (b *batch) run(data string) (ImportResult, error) {
	res := ImportResult{Rows: []RowOutcome{}}
	for i, raw := range strings.Split(data, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		out, err := b.row(i+1, line)
		if err != nil {
			return ImportResult{}, err
		}
		if out.Imported {
			res.Imported++
		} else {
			res.Skipped++
		}
		res.Rows = append(res.Rows, out)
	}
	return res, nil
}

// row classifies and stores a single trimmed, non-blank line. Only storage
// errors are returned; every input problem becomes a skip.
func (b *batch) row(line int, text string) (RowOutcome, error) {
	skip := func(reason SkipReason, detail string) (RowOutcome, error) {
		return RowOutcome{Line: line, Reason: reason, Detail: detail, Row: text}, nil
	}

	fields, err := parseRecord(text)
	if err != nil {
		return skip(ReasonMalformedRow, err.Error())
	}
	if len(fields) != 4 {
		return skip(ReasonMalformedRow, fmt.Sprintf("expected 4 fields, got %d", len(fields)))
	}
	rawDate := strings.TrimSpace(fields[0])
	rawAmount := strings.TrimSpace(fields[1])
	description := strings.TrimSpace(fields[2])
	rawCategory := strings.TrimSpace(fields[3])

	if description == "" {
		return skip(ReasonEmptyDescription, "")
	}
	category, err := core.ParseCategory(rawCategory)
	if err != nil {
		return skip(ReasonInvalidCategory, rawCategory)
	}
	amount, err := core.ParsePositiveMajor(rawAmount)
	if err != nil {
		return skip(ReasonInvalidAmount, rawAmount)
	}
	date, err := core.ParseDate(rawDate)
	if err != nil {
		return skip(ReasonInvalidDate, rawDate)
	}

	key := strings.Join([]string{rawDate, description, rawAmount, rawCategory}, "\x1f")
	if _, dup := b.seen[key]; dup {
		return skip(ReasonDuplicateInBatch, "")
	}
	b.seen[key] = struct{}{}

	if b.persist {
		money, err := core.MoneyFromMajor(amount)
		if err != nil {
			return skip(ReasonInvalidAmount, rawAmount)
		}
		dup, err := b.persisted(date, description, money, category)
		if err != nil {
			return RowOutcome{}, err
		}
		if dup {
			return skip(ReasonDuplicatePersisted, "")
		}
	}

	e, err := b.svc.Create(b.ctx, b.owner, amount, description, date, category)
	if err != nil {
		if verr, ok := core.AsValidation(err); ok {
			return skip(ReasonValidationFailed, verr.Error())
		}
		return RowOutcome{}, fmt.Errorf("line %d: %w", line, err)
	}
	b.created[e.ID] = struct{}{}
	return RowOutcome{Line: line, Imported: true, ExpenseID: e.ID, Row: text}, nil
}

// persisted reports whether the owner already has an identical expense
// stored before this batch started.
func (b *batch) persisted(date core.Date, description string, amount core.Money, category string) (bool, error) {
	k := [2]int{date.Year(), date.Month()}
	month, ok := b.existing[k]
	if !ok {
		c := core.MonthCriteria(b.owner, k[0], k[1])
		n, err := b.repo.CountBy(b.ctx, c)
		if err != nil {
			return false, fmt.Errorf("count existing: %w", err)
		}
		if n > 0 {
			month, err = b.repo.FindBy(b.ctx, c, 0, n)
			if err != nil {
				return false, fmt.Errorf("load existing: %w", err)
			}
		}
		b.existing[k] = month
	}
	for _, e := range month {
		if _, mine := b.created[e.ID]; mine {
			continue
		}
		if e.Date.Equal(date.Time) && e.Amount == amount && e.Category == category && e.Description == description {
			return true, nil
		}
	}
	return false, nil
}

func parseRecord(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	return r.Read()
}
