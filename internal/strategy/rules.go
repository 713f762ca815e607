package strategy

import (
	"fmt"

	"github.com/irfndi/tradeloop/internal/config"
	"github.com/irfndi/tradeloop/internal/models"
)

// PositionRules are the portfolio-wide position limits.
type PositionRules struct {
	AllowMultipleStrategiesPerPair bool
	// Priority lists strategies from highest to lowest priority.
	Priority            []models.StrategyID
	MaxPerStrategy      map[models.StrategyID]int
	MaxTotal            int
	PositionSizePercent map[models.StrategyID]float64
}

// DefaultPositionRules mirrors the defaults shipped in config.
func DefaultPositionRules() PositionRules {
	return PositionRules{
		AllowMultipleStrategiesPerPair: false,
		Priority: []models.StrategyID{
			models.StrategyMACDSupertrend,
			models.StrategyMomentum,
			models.StrategyMeanReversion,
			models.StrategyScalping,
		},
		MaxPerStrategy: map[models.StrategyID]int{
			models.StrategyScalping:       4,
			models.StrategyMomentum:       4,
			models.StrategyMeanReversion:  3,
			models.StrategyMACDSupertrend: 3,
		},
		MaxTotal: 10,
		PositionSizePercent: map[models.StrategyID]float64{
			models.StrategyScalping:       5,
			models.StrategyMomentum:       10,
			models.StrategyMeanReversion:  8,
			models.StrategyMACDSupertrend: 15,
		},
	}
}

// PositionRulesFromConfig converts the loosely typed config section.
func PositionRulesFromConfig(cfg config.RulesConfig) (PositionRules, error) {
	rules := PositionRules{
		AllowMultipleStrategiesPerPair: cfg.AllowMultipleStrategiesPerPair,
		MaxPerStrategy:                 make(map[models.StrategyID]int, len(cfg.MaxPerStrategy)),
		MaxTotal:                       cfg.MaxTotal,
		PositionSizePercent:            make(map[models.StrategyID]float64, len(cfg.PositionSizePercent)),
	}
	if cfg.MaxTotal <= 0 {
		return PositionRules{}, fmt.Errorf("rules.max_total must be positive")
	}

	seen := make(map[models.StrategyID]bool)
	for _, raw := range cfg.Priority {
		id, err := models.ParseStrategyID(raw)
		if err != nil {
			return PositionRules{}, fmt.Errorf("rules.priority: %w", err)
		}
		if seen[id] {
			return PositionRules{}, fmt.Errorf("rules.priority: duplicate strategy %q", id)
		}
		seen[id] = true
		rules.Priority = append(rules.Priority, id)
	}
	for raw, limit := range cfg.MaxPerStrategy {
		id, err := models.ParseStrategyID(raw)
		if err != nil {
			return PositionRules{}, fmt.Errorf("rules.max_per_strategy: %w", err)
		}
		if limit < 0 {
			return PositionRules{}, fmt.Errorf("rules.max_per_strategy: negative limit for %q", id)
		}
		rules.MaxPerStrategy[id] = limit
	}
	for raw, pct := range cfg.PositionSizePercent {
		id, err := models.ParseStrategyID(raw)
		if err != nil {
			return PositionRules{}, fmt.Errorf("rules.position_size_percent: %w", err)
		}
		if pct <= 0 || pct > 100 {
			return PositionRules{}, fmt.Errorf("rules.position_size_percent: %q must be in (0, 100]", id)
		}
		rules.PositionSizePercent[id] = pct
	}
	return rules, nil
}

// Rank converts the priority list into a score: the highest-priority
// strategy gets len(Priority), the lowest gets 1, unknown strategies 0.
func (r PositionRules) Rank(id models.StrategyID) int {
	for i, p := range r.Priority {
		if p == id {
			return len(r.Priority) - i
		}
	}
	return 0
}
