// Package metrics exposes Prometheus collectors for the booking engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const namespace = "boutique"

// Registry owns a private Prometheus registry and the engine's collectors. It implements
// services.LifecycleObserver.
type Registry struct {
	reg *prometheus.Registry

	BookingTransitions *prometheus.CounterVec
	PaymentOutcomes    *prometheus.CounterVec
	Reconciliations    *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	TokenChecks        *prometheus.HistogramVec
	IdempotentReplays  *prometheus.CounterVec
}

var _ services.LifecycleObserver = (*Registry)(nil)

// NewRegistry builds the collectors together with Go runtime and process collectors.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_transitions_total",
		Help:      "Booking status transitions.",
	}, []string{"from", "to"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_outcomes_total",
		Help:      "Card payment outcomes observed by the payment coordinator.",
	}, []string{"outcome"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_required_total",
		Help:      "Captured payments that need manual follow-up.",
	}, []string{"reason"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	tokenChecks := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "token_verification_seconds",
		Help:      "Service token verification latency by kind and outcome.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"kind", "outcome"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "idempotent_replays_total",
		Help:      "Responses replayed from the idempotency store.",
	}, []string{"route"})

	r.MustRegister(
		transitions, payments, reconciliations, requests, latency, tokenChecks, replays,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:                r,
		BookingTransitions: transitions,
		PaymentOutcomes:    payments,
		Reconciliations:    reconciliations,
		HTTPRequests:       requests,
		HTTPLatency:        latency,
		TokenChecks:        tokenChecks,
		IdempotentReplays:  replays,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) BookingTransition(from, to domain.BookingStatus) {
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "new"
	}
	r.BookingTransitions.WithLabelValues(fromLabel, string(to)).Inc()
}

func (r *Registry) PaymentOutcome(outcome string) {
	r.PaymentOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) ReconciliationRequired(reason string) {
	r.Reconciliations.WithLabelValues(reason).Inc()
}

// TokenVerification matches auth.VerificationRecorder.
func (r *Registry) TokenVerification(kind, outcome string, elapsed time.Duration) {
	r.TokenChecks.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())
}

// IdempotentReplay matches the idempotency middleware replay hook.
func (r *Registry) IdempotentReplay(route string) {
	if route == "" {
		route = "unmatched"
	}
	r.IdempotentReplays.WithLabelValues(route).Inc()
}

// Middleware records request counts and latency labelled by the chi route pattern, so path
// parameters such as booking references never become label values.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.HTTPRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.HTTPLatency.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}
