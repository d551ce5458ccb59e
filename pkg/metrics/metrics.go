// Package metrics provides the Prometheus registry reference for starfan and
// the optional /metrics endpoint served during a run.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, star, progress, diagnostic) to maintain modularity
// and avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by starfan.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Path is where the metrics handler is mounted.
const Path = "/metrics"

// Server exposes Path over HTTP for the lifetime of a run.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
	done     chan struct{}
}

// Start listens on addr and serves the default gatherer on Path.
// Listening errors are returned immediately; serving happens in the background.
func Start(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, promhttp.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server and waits for the serve loop to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - gh_rate_limit_remaining{resource} (Gauge): Requests left in the current window
//   - gh_rate_limit_blocks_total{resource} (Counter): Requests refused locally on an exhausted quota
//
// Cache Metrics (pkg/cache):
//   - gh_cache_hits_total{state} (Counter): Cache hits, fresh or stale
//   - gh_cache_misses_total (Counter): Cache misses
//   - gh_cache_entry_bytes (Histogram): Encoded size of stored pages
//   - gh_304_responses_total (Counter): 304 Not Modified responses
//   - gh_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - gh_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - gh_requests_total{endpoint, status} (Counter): Requests by endpoint (search, star) and HTTP status
//   - gh_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - gh_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Pipeline Metrics:
//   - starfan_pages_fetched_total{result} (Counter, pkg/pagination): Pages by result (ok, failed)
//   - starfan_page_fetch_duration_seconds (Histogram, pkg/pagination): Page fetch duration
//   - starfan_marks_in_flight (Gauge, pkg/star): Star requests currently in flight
//   - starfan_mark_outcomes_total{status} (Counter, pkg/star): Outcomes (success, failure)
//   - starfan_items_skipped_total{reason} (Counter, pkg/star): Items not dispatched (owner_missing, duplicate)
//   - starfan_progress_succeeded (Gauge, pkg/progress): Successful stars in this run
//   - starfan_diagnostics_total{kind} (Counter, pkg/diagnostic): Diagnostics by kind
//
// Example Prometheus Queries:
//
//   # Star failure ratio
//   sum(starfan_mark_outcomes_total{status="failure"}) / sum(starfan_mark_outcomes_total)
//
//   # Search quota left
//   gh_rate_limit_remaining{resource="search"}
//
//   # P95 star latency
//   histogram_quantile(0.95, rate(gh_request_duration_seconds_bucket{endpoint="star"}[5m]))
//
//   # 304 Response Rate
//   rate(gh_304_responses_total[5m]) / rate(gh_requests_total{endpoint="search"}[5m])
