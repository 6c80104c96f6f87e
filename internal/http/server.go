// Package http exposes the ledger as a small JSON API. The caller's user id
// comes from a header set by a trusted front proxy.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/backend"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

// Options tunes the HTTP surface.
type Options struct {
	UserHeader          string
	DefaultPageSize     int
	MaxUploadBytes      int64
	ImportRatePerMinute int
	Logger              *log.Logger
	// Clock supplies the default year and month. Defaults to time.Now.
	Clock func() time.Time
}

type Server struct {
	http.Server

	expenses  *services.ExpenseService
	dashboard *services.DashboardService
	importer  *services.Importer
	ping      func(context.Context) error
	limiter   *ratelimit.Limiter
	logger    *log.Logger

	userHeader string
	pageSize   int
	maxUpload  int64
	now        func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, b *backend.Backend, opts Options) *Server {
	if opts.UserHeader == "" {
		opts.UserHeader = "X-User-ID"
	}
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxUploadBytes < 1 {
		opts.MaxUploadBytes = services.DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Server{
		expenses:   b.Expenses,
		dashboard:  b.Dashboard,
		importer:   b.Importer,
		ping:       b.Ping,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.ImportRatePerMinute}),
		logger:     opts.Logger,
		userHeader: opts.UserHeader,
		pageSize:   opts.DefaultPageSize,
		maxUpload:  opts.MaxUploadBytes,
		now:        opts.Clock,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/dashboard", s.withUser(s.handleDashboard))
	mux.HandleFunc("GET /api/expenses", s.withUser(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.withUser(s.handleCreateExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withUser(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withUser(s.handleDeleteExpense))
	mux.Handle("POST /api/expenses/import",
		s.limiter.Middleware(s.importKey, s.onImportLimited)(s.withUser(s.handleImport)))

	ips := security.NewIPResolver()
	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = log.Middleware(opts.Logger, trace.FromRequest, ips.ClientIP)(handler)
	handler = trace.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops background helpers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.WithComponent(log.ComponentHTTP).Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Health check failed", log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"categories": core.Categories()})
}
