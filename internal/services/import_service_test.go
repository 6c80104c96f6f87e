package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
)

type observed struct {
	mu       sync.Mutex
	imported []RowOutcome
	skipped  []RowOutcome
	failed   []error
}

func (o *observed) RowImported(_ context.Context, _ string, row RowOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.imported = append(o.imported, row)
}

func (o *observed) RowSkipped(_ context.Context, _ string, row RowOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, row)
}

func (o *observed) BatchFailed(_ context.Context, _ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func newImporter(store ledger.Store, opts ...ImportOption) (*Importer, *ExpenseService) {
	svc := NewExpenseService(store, WithClock(clock))
	opts = append([]ImportOption{WithBatchIDs(func() string { return "batch-1" })}, opts...)
	return NewImporter(store, svc, opts...), svc
}

func reasons(res ImportResult) []SkipReason {
	var out []SkipReason
	for _, r := range res.Rows {
		if !r.Imported {
			out = append(out, r.Reason)
		}
	}
	return out
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("valid rows are stored", func(t *testing.T) {
		store := newStore()
		im, svc := newImporter(store)

		res, err := im.Import(ctx, 1, strings.NewReader(
			"2025-06-01,12.34,Market,groceries\n"+
				"2025-06-02,2.50, Bus ticket ,TRANSPORT\n"))
		require.NoError(t, err)
		assert.Equal(t, "batch-1", res.BatchID)
		assert.Equal(t, 2, res.Imported)
		assert.Equal(t, 0, res.Skipped)

		items, err := svc.List(ctx, 1, 2025, 6, 1, 10)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "Bus ticket", items[0].Description)
		assert.Equal(t, core.Transport, items[0].Category)
		assert.Equal(t, int64(250), items[0].Amount.Cents)
		assert.Equal(t, int64(1234), items[1].Amount.Cents)
	})

	t.Run("every bad row is skipped with a reason", func(t *testing.T) {
		store := newStore()
		im, _ := newImporter(store)

		input := strings.Join([]string{
			"2025-06-01,12.34,Market,groceries",           // 1 ok
			"2025-06-01,12.34,Market",                     // 2 too few fields
			"2025-06-01,12.34,  ,groceries",               // 3 empty description
			"2025-06-01,12.34,Gift,gifts",                 // 4 unknown category
			"2025-06-01,abc,Gift,other",                   // 5 bad amount
			"2025-06-01,-3,Gift,other",                    // 6 negative
			"06/01/2025,3,Gift,other",                     // 7 bad date
			"2025-06-01,12.34,Market,groceries",           // 8 duplicate
			"2025-07-01,5,Future,other",                   // 9 future date
			"2025-06-01,5,\"Unclosed,other",               // 10 malformed quoting
			"2025-06-01,0.001,Tea,other",                  // 11 rounds to zero cents
			"2025-06-01,12.34,Market,groceries,x",         // 12 too many fields
			"2025-06-01,184467440737095516.17,Huge,other", // 13 cents overflow int64
		}, "\n")

		res, err := im.Import(ctx, 1, strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
		assert.Equal(t, 12, res.Skipped)
		assert.Equal(t, []SkipReason{
			ReasonMalformedRow,
			ReasonEmptyDescription,
			ReasonInvalidCategory,
			ReasonInvalidAmount,
			ReasonInvalidAmount,
			ReasonInvalidDate,
			ReasonDuplicateInBatch,
			ReasonValidationFailed,
			ReasonMalformedRow,
			ReasonValidationFailed,
			ReasonMalformedRow,
			ReasonInvalidAmount,
		}, reasons(res))

		n, err := store.CountBy(ctx, core.Criteria{OwnerID: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("blank lines are ignored but counted for line numbers", func(t *testing.T) {
		im, _ := newImporter(newStore())

		res, err := im.Import(ctx, 1, strings.NewReader("\n  \r\n2025-06-01,1,Market,groceries\r\n\n2025-06-01,1,,groceries\n"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
		assert.Equal(t, 1, res.Skipped)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, 3, res.Rows[0].Line)
		assert.Equal(t, 5, res.Rows[1].Line)
	})

	t.Run("empty upload", func(t *testing.T) {
		im, _ := newImporter(newStore())
		res, err := im.Import(ctx, 1, strings.NewReader(""))
		require.NoError(t, err)
		assert.Zero(t, res.Imported)
		assert.Zero(t, res.Skipped)
		assert.Empty(t, res.Rows)
	})

	t.Run("byte order mark is ignored", func(t *testing.T) {
		im, _ := newImporter(newStore())
		res, err := im.Import(ctx, 1, strings.NewReader("\xef\xbb\xbf2025-06-01,1,Market,groceries\n"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
	})

	t.Run("quoted description with comma", func(t *testing.T) {
		store := newStore()
		im, svc := newImporter(store)
		res, err := im.Import(ctx, 1, strings.NewReader(`2025-06-01,4.20,"Milk, eggs",groceries`))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)

		items, err := svc.List(ctx, 1, 2025, 6, 1, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Milk, eggs", items[0].Description)
	})

	t.Run("oversized upload is rejected", func(t *testing.T) {
		store := newStore()
		im, _ := newImporter(store, WithMaxUploadBytes(10))
		_, err := im.Import(ctx, 1, strings.NewReader("2025-06-01,1,Market,groceries\n"))
		assert.ErrorIs(t, err, ErrUploadTooLarge)
	})
}

func TestImporter_PersistedDuplicates(t *testing.T) {
	ctx := context.Background()
	input := "2025-06-01,12.34,Market,groceries\n"

	t.Run("disabled by default", func(t *testing.T) {
		im, _ := newImporter(newStore())
		_, err := im.Import(ctx, 1, strings.NewReader(input))
		require.NoError(t, err)
		res, err := im.Import(ctx, 1, strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
	})

	t.Run("enabled", func(t *testing.T) {
		im, _ := newImporter(newStore(), WithPersistedDuplicateCheck(true))
		_, err := im.Import(ctx, 1, strings.NewReader(input))
		require.NoError(t, err)

		res, err := im.Import(ctx, 1, strings.NewReader(input+"2025-06-01,12.340,Market,groceries\n"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.Imported)
		assert.Equal(t, []SkipReason{ReasonDuplicatePersisted, ReasonDuplicatePersisted}, reasons(res))

		// Another owner's identical row is not a duplicate.
		res, err = im.Import(ctx, 2, strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
	})
}

func TestImporter_StorageFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := newStore()
	obs := &observed{}
	rec := &recorder{}
	svc := NewExpenseService(mem, WithClock(clock), WithPublisher(rec), WithChangeListener(rec))
	im := NewImporter(&flakyStore{Store: mem, failOn: 2}, svc, WithRowObserver(obs))

	_, err := im.Import(ctx, 1, strings.NewReader(
		"2025-06-01,1,A,groceries\n2025-06-02,2,B,groceries\n2025-06-03,3,C,groceries\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDisk))

	n, err := mem.CountBy(ctx, core.Criteria{OwnerID: 1})
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, obs.failed, 1)
	assert.Empty(t, obs.imported)
	assert.Empty(t, rec.events)
	assert.Empty(t, rec.changed)
}

func TestImporter_NotifiesAfterCommit(t *testing.T) {
	ctx := context.Background()
	obs := &observed{}
	rec := &recorder{}
	store := newStore()
	svc := NewExpenseService(store, WithClock(clock), WithPublisher(rec), WithChangeListener(rec))
	im := NewImporter(store, svc, WithRowObserver(obs), WithBatchIDs(func() string { return "b-42" }))

	res, err := im.Import(ctx, 3, strings.NewReader("2025-06-01,1,A,groceries\n2025-06-01,1,A,groceries\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	assert.Len(t, obs.imported, 1)
	assert.Len(t, obs.skipped, 1)
	assert.Equal(t, []ledger.EventType{ledger.EventImportCompleted}, rec.types())
	evt := rec.events[0]
	assert.Equal(t, "b-42", evt.BatchID)
	assert.Equal(t, int64(3), evt.OwnerID)
	assert.Equal(t, 1, evt.Imported)
	assert.Equal(t, 1, evt.Skipped)
	assert.Equal(t, []int64{3}, rec.changed)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})
	im, _ := newImporter(newStore(), WithRowObserver(NewLogObserver(logger)))

	_, err := im.Import(context.Background(), 1, strings.NewReader("2025-06-01,1,A,groceries\n2025-06-01,1,A,nope\n"))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"Import row stored"`)
	assert.Contains(t, out, `"msg":"Import row skipped"`)
	assert.Contains(t, out, `"reason":"invalid_category"`)
	assert.Contains(t, out, `"batch_id":"batch-1"`)
	assert.Contains(t, out, `"component":"import"`)
	assert.Contains(t, out, `"row":"2025-06-01,1,A,groceries"`)
	assert.Contains(t, out, `"row":"2025-06-01,1,A,nope"`)
}

func TestLogObserver_LogsRowText(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})
	im, _ := newImporter(newStore(), WithRowObserver(NewLogObserver(logger)))

	res, err := im.Import(context.Background(), 1, strings.NewReader(
		"2025-06-01,8.90,Coffee beans,groceries\n"+
			"2025-06-01,8.90,Coffee beans,groceries\n"+
			"2025-06-02,3, ,other\n"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "2025-06-01,8.90,Coffee beans,groceries", res.Rows[1].Row)

	out := buf.String()
	assert.Contains(t, out, `"line":2,"row":"2025-06-01,8.90,Coffee beans,groceries","reason":"duplicate_in_batch"`)
	assert.Contains(t, out, `"line":3,"row":"2025-06-02,3, ,other","reason":"empty_description"`)
}
