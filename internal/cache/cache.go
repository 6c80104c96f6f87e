// Package cache holds the in-process caches used for derived read models.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is a keyed store of derived values.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// DeletePrefix drops every key starting with prefix and reports how
	// many were removed.
	DeletePrefix(prefix string) int
	Size() int
}

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic expiry sweeps over registered caches.
type Manager struct {
	mu      sync.Mutex
	caches  []Cleaner
	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool
}

func NewManager() *Manager {
	return &Manager{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register adds c to the sweep set.
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup sweeps every interval until Stop is called. It is a no-op
// when already running or once stopped.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

// Sweep runs one expiry pass and returns the number of entries removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	removed := 0
	for _, c := range caches {
		removed += c.CleanExpired()
	}
	return removed
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("Cache sweep", "removed", n)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop ends the sweep goroutine and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	running := m.started && !m.stopped
	m.stopped = true
	m.mu.Unlock()

	if !running {
		return
	}
	close(m.stop)
	<-m.done
}
