// Package metrics provides Prometheus instrumentation for the P&L service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TierPnL is the true P&L of each capital tier in the latest snapshot.
	TierPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fidus_tier_pnl",
		Help: "True P&L per capital tier",
	}, []string{"tier"})

	// TierEquity is the current equity of each capital tier in the latest snapshot.
	TierEquity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fidus_tier_equity",
		Help: "Current equity per capital tier",
	}, []string{"tier"})

	// FundPnL is the true P&L of each fund in the latest snapshot.
	FundPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fidus_fund_pnl",
		Help: "True P&L per fund",
	}, []string{"fund"})

	// HeldOutEquity is the equity of the separation and intermediary accounts.
	HeldOutEquity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fidus_held_out_equity",
		Help: "Equity of accounts held out of the tiers",
	}, []string{"capital_source"})

	// FundGap is total fund P&L minus total client obligations.
	FundGap = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fidus_fund_gap",
		Help: "Fund surplus (positive) or deficit (negative) against obligations",
	})

	// FundCoverage is fund P&L as a percentage of obligations.
	FundCoverage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fidus_fund_coverage_ratio",
		Help: "Fund P&L as a percentage of client obligations",
	})

	// SnapshotsTotal counts observed snapshots, partitioned by whether they carried warnings.
	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fidus_snapshots_total",
		Help: "Total snapshots observed",
	}, []string{"status"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fidus_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fidus_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. Must run inside a chi router so the route
// pattern is available as the path label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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
