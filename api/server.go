// Package api exposes the ledger over HTTP with chi.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/auth"
	"github.com/Kushagra2569/transaction-service/idempotency"
	"github.com/Kushagra2569/transaction-service/observability"
)

// Server holds the HTTP handlers.
type Server struct {
	ledger   *ledger.Ledger
	auth     *auth.Service
	idem     *idempotency.Middleware
	metrics  http.Handler
	latency  observability.Histogram
	validate *validator.Validate
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithIdempotency wraps POST /transfers with m.
func WithIdempotency(m *idempotency.Middleware) Option {
	return func(s *Server) { s.idem = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithMetrics records request latency through factory.
func WithMetrics(factory observability.MetricFactory) Option {
	return func(s *Server) {
		s.latency = factory.Histogram("ledger.http.request.latency_ms")
	}
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New creates a Server.
func New(l *ledger.Ledger, authSvc *auth.Service, opts ...Option) *Server {
	s := &Server{
		ledger:   l,
		auth:     authSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no route " + r.URL.Path})
	})

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/logout", s.handleLogout)
		r.Get("/account", s.handleAccount)
		r.Get("/balance", s.handleBalance)
		r.Patch("/account/name", s.handleRename)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/transactions/{id}", s.handleTransaction)

		if s.idem != nil {
			r.With(s.idem.Handler).Post("/transfers", s.handleTransfer)
		} else {
			r.Post("/transfers", s.handleTransfer)
		}
	})

	return r
}
