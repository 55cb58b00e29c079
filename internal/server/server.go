// Package server exposes health, Prometheus metrics and live run statistics
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"evm-liquidation-lab/internal/domain"
	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/metrics"
	"evm-liquidation-lab/internal/observability"
)

// StatsProvider returns the statistics of the run being served.
type StatsProvider interface {
	Stats() *metrics.Statistics
}

// Config holds server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *logger.Entry
}

// DefaultConfig listens on :9100.
func DefaultConfig() Config {
	return Config{
		Addr:            ":9100",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server is the read-only HTTP surface of a run.
type Server struct {
	cfg     Config
	stats   StatsProvider
	router  *mux.Router
	log     *logger.Entry
	started time.Time
}

// New creates a server. stats may be nil, in which case /stats reports an
// empty run.
func New(cfg Config, stats StatsProvider) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Component("http")
	}

	s := &Server{
		cfg:     cfg,
		stats:   stats,
		router:  mux.NewRouter(),
		log:     log,
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatsResponse is the JSON body of /stats.
type StatsResponse struct {
	Uptime        string                 `json:"uptime"`
	TotalAttempts int                    `json:"total_attempts"`
	Successful    int                    `json:"successful"`
	Failed        int                    `json:"failed"`
	Metrics       []domain.MetricSummary `json:"metrics"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var stats *metrics.Statistics
	if s.stats != nil {
		stats = s.stats.Stats()
	}
	if stats == nil {
		stats = metrics.NewStatistics()
	}

	total, ok, failed := stats.Counts()
	resp := StatsResponse{
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		TotalAttempts: total,
		Successful:    ok,
		Failed:        failed,
		Metrics:       stats.Summary(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithError(err).Warn("encode stats response")
	}
}
