package strategy

import (
	"sync"
	"time"

	"github.com/irfndi/tradeloop/internal/models"
)

// IsDue reports whether a strategy should be evaluated at now. Unknown and
// disabled strategies are never due; a strategy with no recorded check is
// always due.
func IsDue(catalog *Catalog, id models.StrategyID, lastChecks map[models.StrategyID]time.Time, now time.Time) bool {
	if catalog == nil {
		return false
	}
	cfg, ok := catalog.Get(id)
	if !ok || !cfg.Enabled {
		return false
	}
	last, checked := lastChecks[id]
	if !checked {
		return true
	}
	return now.Sub(last) >= cfg.CheckInterval
}

// CheckTracker holds the last successful check time per symbol and strategy.
// It is safe for concurrent use by the per-symbol workers.
type CheckTracker struct {
	mu     sync.Mutex
	checks map[string]map[models.StrategyID]time.Time
}

func NewCheckTracker() *CheckTracker {
	return &CheckTracker{checks: make(map[string]map[models.StrategyID]time.Time)}
}

// Snapshot returns a copy of the last-check map for symbol.
func (t *CheckTracker) Snapshot(symbol string) map[models.StrategyID]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[models.StrategyID]time.Time, len(t.checks[symbol]))
	for id, at := range t.checks[symbol] {
		out[id] = at
	}
	return out
}

// MarkChecked records a completed evaluation attempt.
func (t *CheckTracker) MarkChecked(symbol string, id models.StrategyID, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	perSymbol, ok := t.checks[symbol]
	if !ok {
		perSymbol = make(map[models.StrategyID]time.Time)
		t.checks[symbol] = perSymbol
	}
	perSymbol[id] = at
}

// Due filters ids down to the strategies due for symbol at now, preserving order.
func (t *CheckTracker) Due(catalog *Catalog, symbol string, ids []models.StrategyID, now time.Time) []models.StrategyID {
	lastChecks := t.Snapshot(symbol)
	due := make([]models.StrategyID, 0, len(ids))
	for _, id := range ids {
		if IsDue(catalog, id, lastChecks, now) {
			due = append(due, id)
		}
	}
	return due
}

// Reset forgets every recorded check.
func (t *CheckTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks = make(map[string]map[models.StrategyID]time.Time)
}
