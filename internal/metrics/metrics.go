// Package metrics provides Prometheus instrumentation for the position engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReconcileRuns counts reconciliation runs, partitioned by outcome.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posengine_reconcile_runs_total",
		Help: "Total number of reconciliation runs",
	}, []string{"status"})

	// ReconcileDuration tracks end-to-end run latency.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "posengine_reconcile_duration_seconds",
		Help:    "Reconciliation run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OpenPositions tracks the number of positions in the last snapshot.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "posengine_open_positions",
		Help: "Number of open positions in the latest snapshot",
	})

	// AssetAnomalies counts per-asset problems that were recovered from.
	AssetAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posengine_asset_anomalies_total",
		Help: "Per-asset anomalies (missing ticker, missing price, oversold)",
	}, []string{"kind"})

	// PriceFetchLatency tracks one batched market data request.
	PriceFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "posengine_price_fetch_seconds",
		Help:    "Market data batch request latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	})

	// PriceFetchErrors counts failed market data batch requests.
	PriceFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posengine_price_fetch_errors_total",
		Help: "Failed market data batch requests",
	})

	// PriceCacheHits counts prices served from the Redis or in-process cache.
	PriceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "posengine_price_cache_hits_total",
		Help: "Prices served from a price cache",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "posengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Anomaly kinds used with AssetAnomalies.
const (
	AnomalyMissingTicker = "missing_ticker"
	AnomalyMissingPrice  = "missing_price"
	AnomalyOversold      = "oversold"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
