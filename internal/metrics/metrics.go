// Package metrics exposes Prometheus collectors for the pipelines.
//
// All methods are safe on a nil *Collectors, so pipelines can record
// unconditionally whether or not metrics were configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

// Collectors groups every collector the pipelines record to.
type Collectors struct {
	stageDuration *prometheus.HistogramVec
	hookCalls     *prometheus.CounterVec
	modelBuilds   *prometheus.CounterVec
	entries       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hookpoint",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"pipeline", "stage", "outcome"}),
		hookCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookpoint",
			Name:      "hook_invocations_total",
			Help:      "Hook point invocations by contract and outcome.",
		}, []string{"contract", "outcome"}),
		modelBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookpoint",
			Name:      "model_builds_total",
			Help:      "Model build attempts by outcome.",
		}, []string{"outcome"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookpoint",
			Name:      "changeset_entries_total",
			Help:      "Submitted change-set entries by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	for _, col := range []prometheus.Collector{c.stageDuration, c.hookCalls, c.modelBuilds, c.entries} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Outcome maps an error to an outcome label.
func Outcome(err error, denied bool) string {
	switch {
	case denied:
		return OutcomeDenied
	case err != nil:
		return OutcomeError
	}
	return OutcomeOK
}

// ObserveStage records how long a pipeline stage took.
func (c *Collectors) ObserveStage(pipeline, stage, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(pipeline, stage, outcome).Observe(elapsed.Seconds())
}

// HookInvoked counts one hook point invocation.
func (c *Collectors) HookInvoked(contract, outcome string) {
	if c == nil {
		return
	}
	c.hookCalls.WithLabelValues(contract, outcome).Inc()
}

// ModelBuilt counts one model build attempt.
func (c *Collectors) ModelBuilt(elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := Outcome(err, false)
	c.modelBuilds.WithLabelValues(outcome).Inc()
	c.stageDuration.WithLabelValues("model", "build", outcome).Observe(elapsed.Seconds())
}

// EntrySubmitted counts one change-set entry.
func (c *Collectors) EntrySubmitted(kind, outcome string) {
	if c == nil {
		return
	}
	c.entries.WithLabelValues(kind, outcome).Inc()
}
