package signals

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/strategy"
)

// Score ranks a signal: 10 points per priority rank, up to 10 for the
// 20-candle move, 5 when price is more than 2% off SMA20 and 3 when
// volatility is under 5%.
func Score(sig models.Signal, rank int) float64 {
	score := 10 * float64(rank)
	score += math.Min(math.Abs(sig.Technical.Change20), 10)
	if math.Abs(sig.Technical.PriceVsSMA20) > 2 {
		score += 5
	}
	if sig.Technical.VolatilityPercent < 5 {
		score += 3
	}
	return score
}

// Prioritize returns a copy of sigs with Priority set, ordered by score,
// then strategy rank, then original position. The first element is the
// cycle's primary signal.
func Prioritize(sigs []models.Signal, rules strategy.PositionRules) []models.Signal {
	out := make([]models.Signal, len(sigs))
	copy(out, sigs)
	for i := range out {
		out[i].Priority = Score(out[i], rules.Rank(out[i].Strategy))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return rules.Rank(out[i].Strategy) > rules.Rank(out[j].Strategy)
	})
	return out
}

// Summary renders signals one per line for logs and notifications.
func Summary(sigs []models.Signal) string {
	if len(sigs) == 0 {
		return "No trading signals detected."
	}
	title := cases.Title(language.English)
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d trading signal(s):", len(sigs))
	for i, sig := range sigs {
		fmt.Fprintf(&b, "\n%d. %s %s via %s @ %.4f (%s, priority %.1f)",
			i+1,
			title.String(strings.ToLower(string(sig.Action))),
			sig.Symbol,
			sig.StrategyName,
			sig.Price,
			sig.Timeframe,
			sig.Priority,
		)
	}
	return b.String()
}
