package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "desietsy"

type Metrics struct {
	registry *prometheus.Registry

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	OrdersCreated     *prometheus.CounterVec
	StatusChanges     *prometheus.CounterVec
	IntentsCreated    prometheus.Counter
	IntentsReconciled *prometheus.CounterVec
	EmailsSent        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders placed, by payment state.",
		}, []string{"payment_state"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_changes_total",
			Help:      "Fulfillment status changes, by target status.",
		}, []string{"status"}),
		IntentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_created_total",
			Help:      "Payment intents opened with the gateway.",
		}),
		IntentsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_reconciled_total",
			Help:      "Intents swept by the reconciler, by outcome.",
		}, []string{"outcome"}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Transactional emails, by kind and result.",
		}, []string{"kind", "result"}),
	}

	m.registry.MustRegister(
		m.Requests, m.LatencyMS,
		m.OrdersCreated, m.StatusChanges,
		m.IntentsCreated, m.IntentsReconciled,
		m.EmailsSent,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			m.Requests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
			return err
		}
	}
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) OrderCreated(paymentState string) {
	if m != nil {
		m.OrdersCreated.WithLabelValues(paymentState).Inc()
	}
}

func (m *Metrics) StatusChanged(status string) {
	if m != nil {
		m.StatusChanges.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IntentCreated() {
	if m != nil {
		m.IntentsCreated.Inc()
	}
}

func (m *Metrics) IntentReconciled(outcome string) {
	if m != nil {
		m.IntentsReconciled.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) EmailSent(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EmailsSent.WithLabelValues(kind, result).Inc()
}
