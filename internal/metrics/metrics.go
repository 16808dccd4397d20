// Package metrics exposes Prometheus collectors for wallet traffic and sessions.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadiminshakov/hotdog/internal/wallet"
)

const namespace = "hotdog"

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	walletRequests  *prometheus.CounterVec
	walletDuration  *prometheus.HistogramVec
	connectAttempts *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
}

// New builds the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		walletRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "requests_total",
				Help:      "Wallet provider requests by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		walletDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "request_duration_seconds",
				Help:      "Time until the wallet answered a request. Includes user approval time.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"method"},
		),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Sign up attempts by final outcome.",
			},
			[]string{"outcome"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Page sessions currently held by the server.",
			},
		),
	}

	m.registry.MustRegister(
		m.walletRequests,
		m.walletDuration,
		m.connectAttempts,
		m.sessionsActive,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConnect counts a finished connect attempt.
func (m *Metrics) RecordConnect(outcome string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(outcome).Inc()
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// SessionsActive exposes the session gauge.
func (m *Metrics) SessionsActive() prometheus.Gauge { return m.sessionsActive }

// Instrument wraps p so every request is counted and timed. A nil p stays nil
// so "no wallet" keeps its meaning.
func (m *Metrics) Instrument(p wallet.Provider) wallet.Provider {
	if m == nil || p == nil || p == wallet.Unavailable {
		return p
	}
	return &instrumented{next: p, m: m}
}

type instrumented struct {
	next wallet.Provider
	m    *Metrics
}

func (i *instrumented) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	start := time.Now()
	result, err := i.next.Request(ctx, method, params...)

	outcome := "ok"
	switch {
	case ctx.Err() != nil:
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}

	i.m.walletRequests.WithLabelValues(method, outcome).Inc()
	i.m.walletDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	return result, err
}
