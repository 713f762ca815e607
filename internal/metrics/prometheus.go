package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes engine metrics to Prometheus. A nil *Recorder is a no-op,
// so components can be built without metrics in tests.
type Recorder struct {
	signalsEmitted  *prometheus.CounterVec
	signalsRejected *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	tradesClosed    *prometheus.CounterVec
	optimizations   prometheus.Counter
	modelWeight     *prometheus.GaugeVec
	cycleDuration   prometheus.Histogram
}

// New registers the engine metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		signalsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_signals_emitted_total",
				Help: "Signals produced by the aggregator",
			},
			[]string{"strategy", "action"},
		),
		signalsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_signals_rejected_total",
				Help: "Signals dropped by the position rule engine",
			},
			[]string{"rule"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_candle_cache_requests_total",
				Help: "Candle cache lookups by result",
			},
			[]string{"result"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_candle_fetch_errors_total",
				Help: "Failed candle fetches",
			},
			[]string{"timeframe"},
		),
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_strategy_evaluations_total",
				Help: "Strategy evaluation attempts by result",
			},
			[]string{"strategy", "result"},
		),
		tradesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeloop_trades_closed_total",
				Help: "Closed trades by outcome",
			},
			[]string{"outcome"},
		),
		optimizations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tradeloop_ensemble_optimizations_total",
				Help: "Completed ensemble weight optimizations",
			},
		),
		modelWeight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeloop_ensemble_model_weight",
				Help: "Current ensemble weight per model source",
			},
			[]string{"model"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradeloop_decision_cycle_duration_seconds",
				Help:    "Duration of one decision cycle across all symbols",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (r *Recorder) RecordSignal(strategy, action string) {
	if r == nil {
		return
	}
	r.signalsEmitted.WithLabelValues(strategy, action).Inc()
}

func (r *Recorder) RecordRejection(rule string) {
	if r == nil {
		return
	}
	r.signalsRejected.WithLabelValues(rule).Inc()
}

// RecordCacheResult records a cache lookup; result is "hit" or "miss".
func (r *Recorder) RecordCacheResult(result string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordFetchError(timeframe string) {
	if r == nil {
		return
	}
	r.fetchErrors.WithLabelValues(timeframe).Inc()
}

// RecordEvaluation records an evaluation attempt; result is "signal", "none",
// "insufficient_data" or "error".
func (r *Recorder) RecordEvaluation(strategy, result string) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(strategy, result).Inc()
}

func (r *Recorder) RecordTradeClosed(outcome string) {
	if r == nil {
		return
	}
	r.tradesClosed.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordOptimization(weights map[string]float64) {
	if r == nil {
		return
	}
	r.optimizations.Inc()
	r.SetWeights(weights)
}

func (r *Recorder) SetWeights(weights map[string]float64) {
	if r == nil {
		return
	}
	for model, w := range weights {
		r.modelWeight.WithLabelValues(model).Set(w)
	}
}

func (r *Recorder) ObserveCycle(seconds float64) {
	if r == nil {
		return
	}
	r.cycleDuration.Observe(seconds)
}
