package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "musicstore"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchases",
			Name:      "total",
			Help:      "Buy attempts by item kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	charges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "charges_total",
			Help:      "External charges by outcome.",
		},
		[]string{"outcome"},
	)

	chargeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "charge_duration_seconds",
			Help:      "Duration of external charges.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "refunds_total",
			Help:      "Compensating refunds by outcome.",
		},
		[]string{"outcome"},
	)

	credits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Account credits by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox messages handed to the broker by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		purchases,
		charges,
		chargeDuration,
		refunds,
		credits,
		outboxPublished,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request counts and latency per chi route pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func RecordPurchase(kind, outcome string) {
	purchases.WithLabelValues(kind, outcome).Inc()
}

func RecordCharge(outcome string, d time.Duration) {
	charges.WithLabelValues(outcome).Inc()
	chargeDuration.Observe(d.Seconds())
}

func RecordRefund(outcome string) {
	refunds.WithLabelValues(outcome).Inc()
}

func RecordCredit(kind, outcome string) {
	credits.WithLabelValues(kind, outcome).Inc()
}

func RecordOutboxPublish(outcome string) {
	outboxPublished.WithLabelValues(outcome).Inc()
}
