package ensemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/models"
)

const (
	// SmoothingFactor is the share of the freshly measured weights applied per optimization.
	SmoothingFactor = 0.3
	defaultAccuracy = 0.5
	maxHistory      = 100
)

// ModelStats counts predictions since the last optimization.
type ModelStats struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Accuracy returns Correct/Total, or def when nothing was recorded.
func (s ModelStats) Accuracy(def float64) float64 {
	if s.Total == 0 {
		return def
	}
	return float64(s.Correct) / float64(s.Total)
}

// ModelSummary is the current accuracy of one model.
type ModelSummary struct {
	Accuracy float64 `json:"accuracy"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
}

// OptimizationRecord is one entry of the in-memory audit history.
type OptimizationRecord struct {
	Timestamp      time.Time               `json:"timestamp"`
	TradesAnalyzed int                     `json:"trades_analyzed"`
	OldWeights     Weights                 `json:"old_weights"`
	NewWeights     Weights                 `json:"new_weights"`
	Accuracies     map[ModelSource]float64 `json:"accuracies"`
}

// Optimizer re-weights the ensemble in proportion to each model's measured
// accuracy. Predictions are recorded concurrently; optimizations run one at
// a time.
type Optimizer struct {
	store   WeightStore
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	optimizeMu sync.Mutex

	mu                sync.RWMutex
	weights           Weights
	history           []OptimizationRecord
	optimizationCount int

	statsMu sync.Mutex
	stats   map[ModelSource]ModelStats
}

// NewOptimizer loads persisted weights once, falling back to defaults when
// the store is empty, unreadable or holds an invalid set.
func NewOptimizer(ctx context.Context, defaults Weights, store WeightStore, logger *zap.Logger, recorder *metrics.Recorder) (*Optimizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults == nil {
		defaults = DefaultWeights()
	}
	initial, err := defaults.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid default ensemble weights: %w", err)
	}

	o := &Optimizer{
		store:   store,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
		weights: initial,
		stats:   make(map[ModelSource]ModelStats, len(AllSources)),
	}

	if store != nil {
		state, ok, err := store.Load(ctx)
		switch {
		case err != nil:
			logger.Warn("Could not load saved ensemble weights, using defaults", zap.Error(err))
		case ok:
			if loaded, err := state.Weights.Normalize(); err != nil {
				logger.Warn("Saved ensemble weights are invalid, using defaults", zap.Error(err))
			} else {
				o.weights = loaded
				o.optimizationCount = state.OptimizationCount
				logger.Info("Loaded saved ensemble weights",
					zap.Time("last_updated", state.LastUpdated),
					zap.Int("optimization_count", state.OptimizationCount))
			}
		}
	}

	recorder.SetWeights(o.weights.StringMap())
	logger.Info("Ensemble weight optimizer initialized", zap.String("weights", o.weights.String()))
	return o, nil
}

// RecordPrediction scores each model's entry call against the trade
// outcome. A BUY is correct on a WIN; HOLD or SELL is correct on a LOSS.
// Unknown sources are ignored.
func (o *Optimizer) RecordPrediction(preds map[ModelSource]Prediction, outcome models.Outcome) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	for source, pred := range preds {
		if !source.Valid() {
			continue
		}
		stats := o.stats[source]
		stats.Total++
		if isCorrect(pred, outcome) {
			stats.Correct++
		}
		o.stats[source] = stats
	}
}

func isCorrect(pred Prediction, outcome models.Outcome) bool {
	switch pred {
	case PredictionBuy:
		return outcome == models.OutcomeWin
	case PredictionHold, PredictionSell:
		return outcome == models.OutcomeLoss
	}
	return false
}

// Optimize recomputes the weights once the reference model has at least
// minTrades recorded predictions, persists them and resets the counters.
// Below the threshold it returns the current weights unchanged.
func (o *Optimizer) Optimize(ctx context.Context, minTrades int) Weights {
	o.optimizeMu.Lock()
	defer o.optimizeMu.Unlock()

	snapshot := o.snapshotStats()
	trades := snapshot[ReferenceSource].Total
	if trades < minTrades {
		o.logger.Info("Not enough trades for optimization",
			zap.Int("trades", trades),
			zap.Int("min_trades", minTrades))
		return o.Weights()
	}

	accuracies := make(map[ModelSource]float64, len(AllSources))
	var totalAccuracy float64
	for _, source := range AllSources {
		acc := snapshot[source].Accuracy(defaultAccuracy)
		accuracies[source] = acc
		totalAccuracy += acc
	}
	if totalAccuracy == 0 {
		o.logger.Warn("Total accuracy is zero, keeping current weights", zap.Int("trades", trades))
		return o.Weights()
	}

	old := o.Weights()
	smoothed := make(Weights, len(AllSources))
	for _, source := range AllSources {
		target := accuracies[source] / totalAccuracy
		smoothed[source] = SmoothingFactor*target + (1-SmoothingFactor)*old[source]
	}
	updated, err := smoothed.Normalize()
	if err != nil {
		o.logger.Error("Optimized weights are invalid, keeping current weights", zap.Error(err))
		return old
	}

	now := o.now()
	o.mu.Lock()
	o.weights = updated
	o.optimizationCount++
	count := o.optimizationCount
	o.history = append(o.history, OptimizationRecord{
		Timestamp:      now,
		TradesAnalyzed: trades,
		OldWeights:     old,
		NewWeights:     updated.Clone(),
		Accuracies:     accuracies,
	})
	if len(o.history) > maxHistory {
		o.history = o.history[len(o.history)-maxHistory:]
	}
	o.mu.Unlock()

	o.consumeStats(snapshot)

	if o.store != nil {
		state := State{Weights: updated.Clone(), LastUpdated: now, OptimizationCount: count}
		if err := o.store.Save(ctx, state); err != nil {
			o.logger.Error("Failed to save ensemble weights", zap.Error(err))
		}
	}

	o.metrics.RecordOptimization(updated.StringMap())
	for _, source := range AllSources {
		o.logger.Debug("Ensemble weight change",
			zap.String("model", string(source)),
			zap.Float64("accuracy", accuracies[source]),
			zap.Float64("old", old[source]),
			zap.Float64("new", updated[source]))
	}
	o.logger.Info("Ensemble weights optimized",
		zap.Int("trades_analyzed", trades),
		zap.String("old_weights", old.String()),
		zap.String("new_weights", updated.String()))

	return updated.Clone()
}

func (o *Optimizer) snapshotStats() map[ModelSource]ModelStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	out := make(map[ModelSource]ModelStats, len(o.stats))
	for k, v := range o.stats {
		out[k] = v
	}
	return out
}

// consumeStats subtracts an optimized snapshot so predictions recorded
// while optimizing count toward the next round.
func (o *Optimizer) consumeStats(snapshot map[ModelSource]ModelStats) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	for source, used := range snapshot {
		cur := o.stats[source]
		cur.Correct -= used.Correct
		cur.Total -= used.Total
		if cur.Total <= 0 {
			delete(o.stats, source)
			continue
		}
		o.stats[source] = cur
	}
}

// ShouldOptimize reports whether the reference model's prediction count is
// a positive multiple of interval.
func (o *Optimizer) ShouldOptimize(interval int) bool {
	if interval <= 0 {
		return false
	}
	o.statsMu.Lock()
	total := o.stats[ReferenceSource].Total
	o.statsMu.Unlock()
	return total >= interval && total%interval == 0
}

// Weights returns a copy of the current weights.
func (o *Optimizer) Weights() Weights {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.weights.Clone()
}

// PerformanceSummary reports per-model accuracy since the last optimization.
func (o *Optimizer) PerformanceSummary() map[ModelSource]ModelSummary {
	snapshot := o.snapshotStats()
	out := make(map[ModelSource]ModelSummary, len(AllSources))
	for _, source := range AllSources {
		stats := snapshot[source]
		out[source] = ModelSummary{
			Accuracy: stats.Accuracy(0),
			Correct:  stats.Correct,
			Total:    stats.Total,
		}
	}
	return out
}

// History returns the optimizations performed by this process, oldest first.
func (o *Optimizer) History() []OptimizationRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]OptimizationRecord, len(o.history))
	copy(out, o.history)
	return out
}

// OptimizationCount includes optimizations restored from the store.
func (o *Optimizer) OptimizationCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.optimizationCount
}
