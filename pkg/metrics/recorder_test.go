package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCompletionCountsTokensOnSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveCompletion("claude-sonnet-4-5", 100, 40, true, 250*time.Millisecond)
	rec.ObserveCompletion("claude-sonnet-4-5", 80, 0, false, 100*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.completionsTotal.WithLabelValues("claude-sonnet-4-5", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.completionsTotal.WithLabelValues("claude-sonnet-4-5", "error")))

	// Failed calls contribute no token counts.
	assert.Equal(t, 100.0, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("claude-sonnet-4-5", "prompt")))
	assert.Equal(t, 40.0, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("claude-sonnet-4-5", "completion")))
}

func TestObserveDispatchAndCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveDispatch("trend_snapshot", true)
	rec.ObserveDispatch("trend_snapshot", true)
	rec.ObserveDispatch("trend_snapshot", false)
	rec.ObserveCacheLookup("trend_snapshot", true)
	rec.ObserveCacheLookup("trend_snapshot", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.dispatchTotal.WithLabelValues("trend_snapshot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.dispatchTotal.WithLabelValues("trend_snapshot", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheTotal.WithLabelValues("trend_snapshot", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheTotal.WithLabelValues("trend_snapshot", "miss")))
}

func TestObserveTurnAndAdmission(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveTurn("DONE", 3, 2*time.Second)
	rec.ObserveReservation("generate_creative", 10.0)
	rec.ObserveCommit("generate_creative", 10.0)
	rec.ObserveBreakerOpen("model:claude-sonnet-4-5")
	rec.ObserveSuspension()

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.turnsTotal.WithLabelValues("DONE")))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.reservedCost.WithLabelValues("generate_creative")))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.committedCost.WithLabelValues("generate_creative")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.breakerOpens.WithLabelValues("model:claude-sonnet-4-5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.suspendedTurns))
}

func TestRecorderRegistersCleanly(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	rec.ObserveTurn("FAILED", 1, time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
