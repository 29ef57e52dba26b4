// Package http exposes the budget API: mutation endpoints, point-in-time
// budget reads and a server-sent-events stream of live projections.
package http

import (
	"context"
	"net/http"
	"sync"

	"bilancio/internal/engine"
	"bilancio/internal/gateway"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
)

type Server struct {
	http.Server

	store   ledger.Store
	gateway *gateway.Gateway
	engine  *engine.Engine
	limiter *ratelimit.Limiter
	logger  *applog.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store ledger.Store, gw *gateway.Gateway, eng *engine.Engine, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		store:   store,
		gateway: gw,
		engine:  eng,
		limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		logger:  logger.WithComponent(applog.ComponentHTTP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /api/owners/{owner}/expenses", s.withRateLimit(s.handleRecordExpense))
	mux.HandleFunc("POST /api/owners/{owner}/incomes", s.withRateLimit(s.handleRecordIncome))
	mux.HandleFunc("POST /api/owners/{owner}/transactions/delete", s.withRateLimit(s.handleRemoveTransaction))
	mux.HandleFunc("GET /api/owners/{owner}/budget", s.handleBudget)
	mux.HandleFunc("GET /api/owners/{owner}/stream", s.handleStream)

	handler := trace.Middleware(
		security.Middleware(security.DefaultHeadersConfig())(
			applog.Middleware(logger)(mux)))

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// withRateLimit caps mutation throughput per client IP.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := trace.ClientIP(r)
		if !s.limiter.Allow(clientIP) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady probes the store with a throwaway read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	_, _, err := s.store.Get(r.Context(), "readiness-probe")
	if err != nil && ledger.IsTransport(err) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the server and its rate limiter. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
