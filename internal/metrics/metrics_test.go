package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.HookInvoked("query.Inspector", OutcomeOK)
	c.HookInvoked("query.Inspector", OutcomeOK)
	c.HookInvoked("query.Inspector", OutcomeDenied)
	c.ModelBuilt(time.Millisecond, nil)
	c.ModelBuilt(time.Millisecond, errors.New("boom"))
	c.EntrySubmitted("insert", OutcomeOK)
	c.ObserveStage("submit", "validate", OutcomeOK, 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.hookCalls.WithLabelValues("query.Inspector", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.hookCalls.WithLabelValues("query.Inspector", OutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.modelBuilds.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.entries.WithLabelValues("insert", OutcomeOK)))
	assert.Equal(t, 3, testutil.CollectAndCount(c.stageDuration))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.HookInvoked("x", OutcomeOK)
		c.ModelBuilt(0, nil)
		c.EntrySubmitted("delete", OutcomeError)
		c.ObserveStage("query", "source", OutcomeOK, 0)
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil, false))
	assert.Equal(t, OutcomeError, Outcome(errors.New("x"), false))
	assert.Equal(t, OutcomeDenied, Outcome(nil, true))
}
