// Package gateway exposes the terminal over HTTP: the SSE market stream and
// its control endpoint, historical bars, indicator series, health and
// Prometheus metrics.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vortexpixelz/datax-research-terminal/internal/indicator"
	"github.com/vortexpixelz/datax-research-terminal/internal/logger"
	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/stream"
)

// Options configures a Server. Hub and Bars are required.
type Options struct {
	Hub      *stream.Hub
	Bars     model.BarSource
	Engine   *indicator.Engine
	Health   *metrics.HealthStatus
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	CORSOrigin string
	Heartbeat  time.Duration
	SinkBuffer int
	// Watchlist is streamed when a client names no tickers.
	Watchlist []string
	// Indicators are computed when a request names no specs.
	Indicators []string
}

// Server holds the HTTP handlers.
type Server struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// NewServer fills defaults and returns a Server.
func NewServer(opts Options) *Server {
	if opts.Engine == nil {
		opts.Engine = indicator.NewEngine(nil)
	}
	if opts.Health == nil {
		opts.Health = metrics.NewHealthStatus()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if len(opts.Indicators) == 0 {
		opts.Indicators = []string{"SMA:20", "EMA:20", "RSI:14", "MACD:12,26,9", "BB:20,2", "ATR:14"}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{opts: opts, log: log.With("component", "gateway"), now: time.Now}
}

// Handler registers all routes on a new mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/market/stream", s.handleStream)
	mux.HandleFunc("/api/bars", s.handleBars)
	mux.HandleFunc("/api/indicators", s.handleIndicators)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	return s.withRequestID(mux)
}

// withRequestID tags each request with an X-Request-ID (kept from the client
// when present) and logs it on completion.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithRequestID(r.Context(), id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logger.FromContext(ctx, s.log).Debug("request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// SetCORS sets CORS headers for REST endpoints.
func (s *Server) SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
}

// preflight sets CORS headers and reports whether the request was handled.
func (s *Server) preflight(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	s.SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	for _, m := range methods {
		if r.Method == m {
			return false
		}
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats, err := s.opts.Hub.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stream hub unavailable")
		return
	}
	if !stats.LastEvent.IsZero() {
		s.opts.Health.SetLastEventTime(stats.LastEvent)
	}

	snap := s.opts.Health.Snapshot()
	status := http.StatusOK
	if snap.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		HealthSnapshot: snap,
		Stream:         stats,
		Market:         marketStatus(s.now()),
		TS:             s.now().UTC().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
