// Package metrics exports retry lifecycle events as Prometheus metrics.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aponysus/restream/observe"
)

// Observer implements observe.Observer on top of Prometheus collectors.
type Observer struct {
	observe.BaseObserver

	calls    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	chunks   *prometheus.CounterVec
	waits    *prometheus.HistogramVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Observer{
		calls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restream_calls_total",
				Help: "Total number of wrapped calls by outcome",
			},
			[]string{"name", "outcome", "category"},
		),
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restream_attempts_total",
				Help: "Total number of attempts by result category",
			},
			[]string{"name", "category"},
		),
		chunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restream_chunks_total",
				Help: "Total number of chunks forwarded to consumers",
			},
			[]string{"name"},
		),
		waits: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restream_retry_wait_seconds",
				Help:    "Scheduled wait before a retry in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
			[]string{"name", "category"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restream_call_duration_seconds",
				Help:    "Wall time of wrapped calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name", "outcome"},
		),
		inFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "restream_calls_in_flight",
				Help: "Number of wrapped calls currently running",
			},
			[]string{"name"},
		),
	}
}

func (o *Observer) OnStart(_ context.Context, call observe.CallInfo) {
	o.inFlight.WithLabelValues(call.Name).Inc()
}

func (o *Observer) OnAttempt(_ context.Context, call observe.CallInfo, rec observe.AttemptRecord) {
	category := "success"
	if rec.Err != nil {
		category = rec.Verdict.Category.String()
	}
	o.attempts.WithLabelValues(call.Name, category).Inc()
	if rec.Chunks > 0 {
		o.chunks.WithLabelValues(call.Name).Add(float64(rec.Chunks))
	}
}

func (o *Observer) OnWaiting(_ context.Context, call observe.CallInfo, state observe.RetryState) {
	o.waits.WithLabelValues(call.Name, state.Verdict.Category.String()).Observe(state.WaitDuration.Seconds())
}

func (o *Observer) OnSuccess(_ context.Context, call observe.CallInfo, tl observe.Timeline) {
	o.finish(call, tl, "success", "")
}

func (o *Observer) OnFailure(_ context.Context, call observe.CallInfo, tl observe.Timeline) {
	outcome, category := "failure", ""
	if n := len(tl.Attempts); n > 0 {
		category = tl.Attempts[n-1].Verdict.Category.String()
	}
	if errors.Is(tl.FinalErr, context.Canceled) || errors.Is(tl.FinalErr, context.DeadlineExceeded) {
		outcome = "cancelled"
	}
	o.finish(call, tl, outcome, category)
}

func (o *Observer) finish(call observe.CallInfo, tl observe.Timeline, outcome, category string) {
	o.inFlight.WithLabelValues(call.Name).Dec()
	o.calls.WithLabelValues(call.Name, outcome, category).Inc()
	if !tl.End.IsZero() && !tl.Start.IsZero() {
		o.duration.WithLabelValues(call.Name, outcome).Observe(tl.End.Sub(tl.Start).Seconds())
	}
}
