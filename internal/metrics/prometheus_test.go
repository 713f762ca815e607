package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordSignal("momentum", "BUY")
	r.RecordSignal("momentum", "BUY")
	r.RecordRejection("total_limit")
	r.RecordCacheResult("hit")
	r.RecordCacheResult("miss")
	r.RecordCacheResult("hit")
	r.RecordFetchError("1h")
	r.RecordTradeClosed("WIN")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signalsEmitted.WithLabelValues("momentum", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signalsRejected.WithLabelValues("total_limit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchErrors.WithLabelValues("1h")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tradesClosed.WithLabelValues("WIN")))
}

func TestRecorder_Optimization(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordOptimization(map[string]float64{"technical": 0.4, "macro": 0.1})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.optimizations))
	assert.Equal(t, 0.4, testutil.ToFloat64(r.modelWeight.WithLabelValues("technical")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.RecordSignal("momentum", "BUY")
		r.RecordRejection("pair_conflict")
		r.RecordCacheResult("hit")
		r.RecordOptimization(map[string]float64{"macro": 1})
		r.ObserveCycle(0.5)
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
