// Package metrics provides Prometheus instrumentation for the marketplace.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbonmarket",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carbonmarket",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WalletOperationsTotal counts wallet mutations by operation.
	WalletOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbonmarket",
			Name:      "wallet_operations_total",
			Help:      "Total wallet operations by type (credit, debit, transfer).",
		},
		[]string{"operation"},
	)

	// TradesTotal counts trade transactions by final status.
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbonmarket",
			Name:      "trades_total",
			Help:      "Total trade transactions by status (created, completed, cancelled).",
		},
		[]string{"status"},
	)

	// SettlementFailuresTotal counts failed settlement attempts by reason.
	SettlementFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbonmarket",
			Name:      "settlement_failures_total",
			Help:      "Total failed settlement attempts by reason.",
		},
		[]string{"reason"},
	)

	// TopUpsTotal counts arbitrated top-up events by outcome.
	TopUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbonmarket",
			Name:      "topups_total",
			Help:      "Total top-up events by outcome (submitted, approved, rejected).",
		},
		[]string{"outcome"},
	)

	// CertificatesTotal counts certificates by lifecycle event.
	CertificatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbonmarket",
			Name:      "certificates_total",
			Help:      "Total certificate lifecycle events (issued, requested, approved, rejected).",
		},
		[]string{"event"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "carbonmarket", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "carbonmarket", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "carbonmarket", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WalletOperationsTotal,
		TradesTotal,
		SettlementFailuresTotal,
		TopUpsTotal,
		CertificatesTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusLabel(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
