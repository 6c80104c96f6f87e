package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/ledger"
	"tally/internal/log"
)

type owners struct {
	mu  sync.Mutex
	ids []int64
}

func (o *owners) LedgerChanged(ownerID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids = append(o.ids, ownerID)
}

type scriptedSubscriber struct {
	calls  int
	events []ledger.Event
	errs   []error
	cancel context.CancelFunc
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, pattern string, handler func(ledger.Event) error) error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	for _, evt := range s.events {
		if err := handler(evt); err != nil {
			return err
		}
	}
	s.cancel()
	<-ctx.Done()
	return ctx.Err()
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func TestHandleEvent(t *testing.T) {
	listener := &owners{}
	w := NewInvalidationWorker(nil, listener, quietLogger())

	require.NoError(t, w.HandleEvent(ledger.Event{Type: ledger.EventExpenseCreated, OwnerID: 3}))
	require.NoError(t, w.HandleEvent(ledger.Event{Type: ledger.EventImportCompleted}))

	assert.Equal(t, []int64{3}, listener.ids)
}

func TestRun_RetriesThenStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &owners{}
	sub := &scriptedSubscriber{
		errs:   []error{errors.New("connection refused"), nil},
		events: []ledger.Event{{Type: ledger.EventExpenseDeleted, OwnerID: 9}},
		cancel: cancel,
	}
	w := NewInvalidationWorker(sub, listener, quietLogger())

	var delays []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}

	require.NoError(t, w.Run(ctx))
	assert.Equal(t, 3, sub.calls)
	assert.Equal(t, []time.Duration{defaultRetryDelay, 2 * defaultRetryDelay}, delays)
	assert.Equal(t, []int64{9}, listener.ids)
}

func TestRun_StopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &scriptedSubscriber{errs: []error{errors.New("boom")}, cancel: cancel}
	w := NewInvalidationWorker(sub, &owners{}, quietLogger())
	w.sleep = func(context.Context, time.Duration) bool { return false }

	require.NoError(t, w.Run(ctx))
	assert.Equal(t, 1, sub.calls)
}
