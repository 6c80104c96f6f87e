// Package worker runs background consumers of the ledger event stream.
package worker

import (
	"context"
	"errors"
	"time"

	"tally/internal/ledger"
	"tally/internal/log"
)

// Subscriber delivers ledger events matching a routing pattern until ctx is
// done. *amqp.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, handler func(ledger.Event) error) error
}

const (
	defaultPattern    = "#"
	defaultRetryDelay = 5 * time.Second
	maxRetryDelay     = time.Minute
)

// InvalidationWorker forwards ledger events published by any instance to a
// local ChangeListener, so caches stay coherent when several servers share
// one database.
type InvalidationWorker struct {
	sub      Subscriber
	listener ledger.ChangeListener
	logger   *log.Logger
	pattern  string
	retry    time.Duration
	sleep    func(ctx context.Context, d time.Duration) bool
}

func NewInvalidationWorker(sub Subscriber, listener ledger.ChangeListener, logger *log.Logger) *InvalidationWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &InvalidationWorker{
		sub:      sub,
		listener: listener,
		logger:   logger.WithComponent(log.ComponentAMQP),
		pattern:  defaultPattern,
		retry:    defaultRetryDelay,
		sleep:    sleepContext,
	}
}

// HandleEvent invalidates the owner named by evt. Events without an owner
// are dropped.
func (w *InvalidationWorker) HandleEvent(evt ledger.Event) error {
	if evt.OwnerID < 1 {
		w.logger.Warn("Ignoring ledger event without owner", log.FieldEventType, evt.Type)
		return nil
	}
	w.listener.LedgerChanged(evt.OwnerID)
	w.logger.Debug("Cache invalidated from event",
		log.FieldEventType, evt.Type,
		log.FieldOwnerID, evt.OwnerID)
	return nil
}

// Run subscribes and keeps resubscribing with a growing delay after broker
// failures. It returns nil once ctx is done.
func (w *InvalidationWorker) Run(ctx context.Context) error {
	delay := w.retry
	for {
		err := w.sub.Subscribe(ctx, w.pattern, w.HandleEvent)
		if ctx.Err() != nil {
			w.logger.Info("Invalidation worker stopped")
			return nil
		}
		if err == nil {
			err = errors.New("subscription ended")
		}
		w.logger.Error("Ledger event subscription failed, retrying",
			log.FieldError, err,
			"retry_in", delay.String())

		if !w.sleep(ctx, delay) {
			w.logger.Info("Invalidation worker stopped")
			return nil
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
