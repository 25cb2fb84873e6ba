// Package metrics exposes Prometheus instruments for a collection run.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repostreach/pkg/logger"
)

// Fetch outcomes
const (
	OutcomeOK        = "ok"
	OutcomeRetriedOK = "retried_ok"
	OutcomeMissed    = "missed"
)

// Metrics groups every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchTotal       *prometheus.CounterVec
	CooldownsTotal   *prometheus.CounterVec
	CheckpointsTotal *prometheus.CounterVec
	ItemsRemaining   *prometheus.GaugeVec
	RequestDuration  *prometheus.HistogramVec
}

// New registers all instruments on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repostreach",
				Name:      "fetch_total",
				Help:      "Items fetched per phase by outcome",
			},
			[]string{"phase", "outcome"}, // ok, retried_ok, missed
		),
		CooldownsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repostreach",
				Name:      "cooldowns_total",
				Help:      "Cooldown waits entered after a failed fetch",
			},
			[]string{"phase"},
		),
		CheckpointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "repostreach",
				Name:      "checkpoints_total",
				Help:      "Checkpoint writes by result",
			},
			[]string{"phase", "result"},
		),
		ItemsRemaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "repostreach",
				Name:      "items_remaining",
				Help:      "Items left to process in the current phase",
			},
			[]string{"phase"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "repostreach",
				Name:      "api_request_duration_seconds",
				Help:      "Duration of social API calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"backend", "call"},
		),
	}
}

// ObserveFetch counts one finished item
func (m *Metrics) ObserveFetch(phase, outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(phase, outcome).Inc()
}

// ObserveCooldown counts one cooldown wait
func (m *Metrics) ObserveCooldown(phase string) {
	if m == nil {
		return
	}
	m.CooldownsTotal.WithLabelValues(phase).Inc()
}

// ObserveCheckpoint counts a checkpoint write
func (m *Metrics) ObserveCheckpoint(phase string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckpointsTotal.WithLabelValues(phase, result).Inc()
}

// SetRemaining updates the remaining-items gauge
func (m *Metrics) SetRemaining(phase string, n int) {
	if m == nil {
		return
	}
	m.ItemsRemaining.WithLabelValues(phase).Set(float64(n))
}

// ObserveRequest records how long one API call took
func (m *Metrics) ObserveRequest(backend, call string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(backend, call).Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
