package risk

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/metrics"
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/strategy"
)

// Rule names a position limit a signal can violate.
type Rule string

const (
	RulePairConflict  Rule = "pair_conflict"
	RuleStrategyLimit Rule = "strategy_limit"
	RuleTotalLimit    Rule = "total_limit"
)

// OpenPosition is the minimal view of an open trade the rules need.
type OpenPosition struct {
	Symbol   string            `json:"symbol"`
	Strategy models.StrategyID `json:"strategy"`
}

// PositionsFromTrades maps open trades to positions.
func PositionsFromTrades(trades []models.Trade) []OpenPosition {
	out := make([]OpenPosition, 0, len(trades))
	for _, t := range trades {
		if !t.IsOpen() {
			continue
		}
		out = append(out, OpenPosition{Symbol: t.Symbol, Strategy: t.Strategy})
	}
	return out
}

// Rejection records why a signal was dropped.
type Rejection struct {
	Signal models.Signal `json:"signal"`
	Rule   Rule          `json:"rule"`
	Reason string        `json:"reason"`
}

// Override marks an accepted signal that outranks strategies already open on its symbol.
type Override struct {
	Signal    models.Signal       `json:"signal"`
	Displaces []models.StrategyID `json:"displaces"`
}

type FilterResult struct {
	Accepted  []models.Signal `json:"accepted"`
	Rejected  []Rejection     `json:"rejected"`
	Overrides []Override      `json:"overrides,omitempty"`
}

// PositionRuleEngine applies portfolio limits to a batch of signals. It does no I/O.
type PositionRuleEngine struct {
	rules   strategy.PositionRules
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func NewPositionRuleEngine(rules strategy.PositionRules, logger *zap.Logger, recorder *metrics.Recorder) *PositionRuleEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionRuleEngine{rules: rules, logger: logger, metrics: recorder}
}

func (e *PositionRuleEngine) Rules() strategy.PositionRules {
	return e.rules
}

// Filter keeps the signals that fit the limits, preserving their order.
// Accepted signals count toward the limits of the signals after them.
func (e *PositionRuleEngine) Filter(signals []models.Signal, positions []OpenPosition) FilterResult {
	bySymbol := make(map[string][]models.StrategyID)
	perStrategy := make(map[models.StrategyID]int)
	total := 0
	for _, p := range positions {
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], p.Strategy)
		perStrategy[p.Strategy]++
		total++
	}

	var result FilterResult
	for _, sig := range signals {
		var displaces []models.StrategyID
		rule, reason := Rule(""), ""

		if !e.rules.AllowMultipleStrategiesPerPair {
			displaces, rule, reason = e.checkPair(sig, bySymbol[sig.Symbol])
		}
		if rule == "" {
			if limit, ok := e.rules.MaxPerStrategy[sig.Strategy]; ok && perStrategy[sig.Strategy]+1 > limit {
				rule = RuleStrategyLimit
				reason = fmt.Sprintf("%s already has %d of %d positions", sig.Strategy, perStrategy[sig.Strategy], limit)
			}
		}
		if rule == "" && total+1 > e.rules.MaxTotal {
			rule = RuleTotalLimit
			reason = fmt.Sprintf("%d of %d total positions open", total, e.rules.MaxTotal)
		}

		if rule != "" {
			e.reject(&result, sig, rule, reason)
			continue
		}

		result.Accepted = append(result.Accepted, sig)
		if len(displaces) > 0 {
			result.Overrides = append(result.Overrides, Override{Signal: sig, Displaces: displaces})
			e.logger.Info("Signal overrides lower priority position",
				zap.String("symbol", sig.Symbol),
				zap.String("strategy", string(sig.Strategy)),
				zap.Int("displaced", len(displaces)))
		}
		bySymbol[sig.Symbol] = append(bySymbol[sig.Symbol], sig.Strategy)
		perStrategy[sig.Strategy]++
		total++
	}
	return result
}

// checkPair allows a signal on a symbol held by other strategies only when
// every one of them ranks strictly below it.
func (e *PositionRuleEngine) checkPair(sig models.Signal, held []models.StrategyID) ([]models.StrategyID, Rule, string) {
	var displaces []models.StrategyID
	rank := e.rules.Rank(sig.Strategy)
	for _, existing := range held {
		if existing == sig.Strategy {
			continue
		}
		if e.rules.Rank(existing) >= rank {
			return nil, RulePairConflict, fmt.Sprintf("%s already holds %s", existing, sig.Symbol)
		}
		displaces = append(displaces, existing)
	}
	return displaces, "", ""
}

func (e *PositionRuleEngine) reject(result *FilterResult, sig models.Signal, rule Rule, reason string) {
	result.Rejected = append(result.Rejected, Rejection{Signal: sig, Rule: rule, Reason: reason})
	e.metrics.RecordRejection(string(rule))
	e.logger.Info("Signal rejected by position rules",
		zap.String("symbol", sig.Symbol),
		zap.String("strategy", string(sig.Strategy)),
		zap.String("rule", string(rule)),
		zap.String("reason", reason))
}
