package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, orchestration and sweep flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	publishedTotal        *prometheus.CounterVec
	publishFailedTotal    *prometheus.CounterVec
	publishDuration       *prometheus.HistogramVec
	publishInflight       *prometheus.GaugeVec
	retryScheduledTotal   *prometheus.CounterVec
	retrySweptTotal       *prometheus.CounterVec
	approvalDecisionTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "publish_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "publish_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		publishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "publish_engine",
				Name:      "publications_published_total",
				Help:      "Total number of publish attempts that reached the platform successfully.",
			},
			[]string{"platform"},
		),
		publishFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "publish_engine",
				Name:      "publications_failed_total",
				Help:      "Total number of failed publish attempts by platform and error category.",
			},
			[]string{"platform", "category"},
		),
		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "publish_engine",
				Name:      "publish_duration_seconds",
				Help:      "Platform publish call duration in seconds grouped by platform.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"platform"},
		),
		publishInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "publish_engine",
				Name:      "publish_inflight",
				Help:      "Current number of in-flight platform publish calls grouped by platform.",
			},
			[]string{"platform"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "publish_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of publications scheduled for automatic retry.",
			},
			[]string{"platform", "retry_class"},
		),
		retrySweptTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "publish_engine",
				Name:      "retry_swept_total",
				Help:      "Total number of scheduled retries picked up by the sweep, by outcome.",
			},
			[]string{"outcome"},
		),
		approvalDecisionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "publish_engine",
				Name:      "approval_decisions_total",
				Help:      "Total number of approval queue transitions by decision.",
			},
			[]string{"decision"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.publishedTotal,
		m.publishFailedTotal,
		m.publishDuration,
		m.publishInflight,
		m.retryScheduledTotal,
		m.retrySweptTotal,
		m.approvalDecisionTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncPublished(platform string) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(normalizeLabel(platform)).Inc()
}

func (m *Metrics) IncPublishFailed(platform string, category string) {
	if m == nil {
		return
	}
	m.publishFailedTotal.WithLabelValues(normalizeLabel(platform), normalizeLabel(category)).Inc()
}

func (m *Metrics) ObservePublishDuration(platform string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.publishDuration.WithLabelValues(normalizeLabel(platform)).Observe(seconds)
}

func (m *Metrics) IncPublishInFlight(platform string) {
	if m == nil {
		return
	}
	m.publishInflight.WithLabelValues(normalizeLabel(platform)).Inc()
}

func (m *Metrics) DecPublishInFlight(platform string) {
	if m == nil {
		return
	}
	m.publishInflight.WithLabelValues(normalizeLabel(platform)).Dec()
}

func (m *Metrics) IncRetryScheduled(platform string, retryClass string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(platform), normalizeLabel(retryClass)).Inc()
}

// IncRetrySwept counts sweep outcomes: retried, skipped or failed.
func (m *Metrics) IncRetrySwept(outcome string) {
	if m == nil {
		return
	}
	m.retrySweptTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncApprovalDecision(decision string) {
	if m == nil {
		return
	}
	m.approvalDecisionTotal.WithLabelValues(normalizeLabel(decision)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
