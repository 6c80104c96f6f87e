// Package ratelimit applies a fixed one-minute window per key.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const window = time.Minute

// Limiter counts requests per key within a one-minute window.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*clientInfo
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time

	requestsPerMinute int
	cleanupInterval   time.Duration
	staleAfter        time.Duration
}

type clientInfo struct {
	windowStart time.Time
	lastSeen    time.Time
	requests    int
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// Clock overrides time.Now. Intended for tests.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup goroutine. Call Stop when done.
func NewLimiter(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	rl := &Limiter{
		clients:           make(map[string]*clientInfo),
		stop:              make(chan struct{}),
		now:               config.Clock,
		requestsPerMinute: config.RequestsPerMinute,
		cleanupInterval:   config.CleanupInterval,
		staleAfter:        10 * time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow records a request for key and reports whether it is within the
// limit.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok || now.Sub(c.windowStart) >= window {
		rl.clients[key] = &clientInfo{windowStart: now, lastSeen: now, requests: 1}
		return true
	}

	c.lastSeen = now
	if c.requests >= rl.requestsPerMinute {
		return false
	}
	c.requests++
	return true
}

// RetryAfter returns the seconds until key's window resets, at least 1.
func (rl *Limiter) RetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		return 1
	}
	secs := int((window - rl.now().Sub(c.windowStart) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *Limiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stop:
			return
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.staleAfter)
	removed := 0
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of tracked keys.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware limits requests by the key extracted from each request. When
// onLimit is nil a plain 429 with Retry-After is written.
func (rl *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request, int)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !rl.Allow(k) {
				retry := rl.RetryAfter(k)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				if onLimit != nil {
					onLimit(w, r, retry)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
