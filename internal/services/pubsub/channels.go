// Package pubsub publishes engine events over Redis pub/sub.
//
// Channel naming convention: {domain}:{entity}[:{qualifier}]
// Examples: tradeloop:decision:BTC/USDT, tradeloop:trade:closed
package pubsub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/irfndi/tradeloop/internal/models"
)

const DomainEngine = "tradeloop"

const (
	EntityDecision = "decision"
	EntityTrade    = "trade"
	EntityEnsemble = "ensemble"
)

const (
	ChannelAllDecisions    = DomainEngine + ":" + EntityDecision + ":*"
	ChannelTradeClosed     = DomainEngine + ":" + EntityTrade + ":closed"
	ChannelEnsembleWeights = DomainEngine + ":" + EntityEnsemble + ":weights"
)

func DecisionChannel(symbol string) string {
	return fmt.Sprintf("%s:%s:%s", DomainEngine, EntityDecision, symbol)
}

// ParseChannel extracts domain, entity, and qualifiers from a channel name.
// Channel format is {domain}:{entity}[:{q1}:{q2}:...].
func ParseChannel(channel string) (domain, entity string, qualifiers []string) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) < 2 {
		return "", "", nil
	}
	domain = parts[0]
	entity = parts[1]
	if len(parts) == 3 {
		qualifiers = strings.Split(parts[2], ":")
	}
	return domain, entity, qualifiers
}

type MessageType string

const (
	MessageTypeDecision    MessageType = "decision"
	MessageTypeTradeClosed MessageType = "trade_closed"
	MessageTypeWeights     MessageType = "weights"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel"`
	Symbol    string          `json:"symbol,omitempty"`
	CycleID   string          `json:"cycle_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecisionPayload carries one symbol's ranked, rule-filtered signals.
type DecisionPayload struct {
	CycleID string             `json:"cycle_id"`
	Symbol  string             `json:"symbol"`
	Regime  string             `json:"regime,omitempty"`
	Signals []models.Signal    `json:"signals"`
	Weights map[string]float64 `json:"weights"`
}

type TradeClosedPayload struct {
	Trade models.Trade `json:"trade"`
}

type WeightsPayload struct {
	Weights           map[string]float64 `json:"weights"`
	OptimizationCount int                `json:"optimization_count"`
}
