package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// RetestSubmissions 按结果统计重测提交
	// (passed, failed, in_progress, reused, replayed, rejected_<reason>, error)
	RetestSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retest_submissions_total",
			Help: "Retest submissions by outcome",
		},
		[]string{"outcome"},
	)

	SummaryRefreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retest_summary_refresh_failures_total",
			Help: "Best-summary refreshes that failed and were left for retry",
		},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	SummaryOutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retest_summary_outbox_pending",
			Help: "Pending summary refresh tasks seen by the last drain",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(RetestSubmissions)
	prometheus.MustRegister(SummaryRefreshFailures)
	prometheus.MustRegister(SummaryOutboxPending)
	prometheus.MustRegister(RateLimited)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
