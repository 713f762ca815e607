package strategy

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/irfndi/tradeloop/internal/models"
)

// Config is the immutable definition of one strategy.
type Config struct {
	ID                models.StrategyID
	Name              string
	Description       string
	Timeframe         string
	AdvisoryTimeframe string
	CheckInterval     time.Duration
	StopLossPercent   float64
	TakeProfitPercent float64
	MinHold           time.Duration
	MaxHold           time.Duration
	Trailing          *models.TrailingStop
	Enabled           bool
}

// RiskParams returns the risk parameters copied onto every signal the strategy emits.
func (c Config) RiskParams() models.RiskParams {
	params := models.RiskParams{
		StopLossPercent:   c.StopLossPercent,
		TakeProfitPercent: c.TakeProfitPercent,
		MinHold:           c.MinHold,
		MaxHold:           c.MaxHold,
	}
	if c.Trailing != nil {
		trailing := *c.Trailing
		params.Trailing = &trailing
	}
	return params
}

// Catalog is the read-only table of strategy definitions shared by the engine.
type Catalog struct {
	strategies map[models.StrategyID]Config
	order      []models.StrategyID
}

// NewCatalog builds a catalog, rejecting unknown or duplicate strategy ids.
func NewCatalog(configs ...Config) (*Catalog, error) {
	c := &Catalog{strategies: make(map[models.StrategyID]Config, len(configs))}
	for _, cfg := range configs {
		if !cfg.ID.Valid() {
			return nil, fmt.Errorf("unknown strategy %q", cfg.ID)
		}
		if _, exists := c.strategies[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate strategy %q", cfg.ID)
		}
		if cfg.CheckInterval <= 0 {
			return nil, fmt.Errorf("strategy %q: check interval must be positive", cfg.ID)
		}
		c.strategies[cfg.ID] = cfg
		c.order = append(c.order, cfg.ID)
	}
	return c, nil
}

// DefaultCatalog returns the built-in strategy set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Config{
			ID:                models.StrategyScalping,
			Name:              "Scalping",
			Description:       "Quick trades on small price movements",
			Timeframe:         "5m",
			AdvisoryTimeframe: "15m",
			CheckInterval:     60 * time.Second,
			StopLossPercent:   0.8,
			TakeProfitPercent: 1.2,
			MinHold:           3 * time.Minute,
			MaxHold:           2 * time.Hour,
			Enabled:           true,
		},
		Config{
			ID:                models.StrategyMomentum,
			Name:              "Momentum",
			Description:       "Ride strong trends with volume confirmation",
			Timeframe:         "1h",
			AdvisoryTimeframe: "4h",
			CheckInterval:     5 * time.Minute,
			StopLossPercent:   2.0,
			TakeProfitPercent: 3.5,
			MinHold:           time.Hour,
			MaxHold:           12 * time.Hour,
			Enabled:           true,
		},
		Config{
			ID:                models.StrategyMeanReversion,
			Name:              "Mean Reversion",
			Description:       "Buy oversold dips and sell overbought rallies back to the mean",
			Timeframe:         "1h",
			AdvisoryTimeframe: "4h",
			CheckInterval:     5 * time.Minute,
			StopLossPercent:   2.0,
			TakeProfitPercent: 3.0,
			MinHold:           30 * time.Minute,
			MaxHold:           8 * time.Hour,
			Enabled:           true,
		},
		Config{
			ID:                models.StrategyMACDSupertrend,
			Name:              "MACD Supertrend",
			Description:       "Swing trades on MACD crossovers confirmed by Supertrend",
			Timeframe:         "4h",
			AdvisoryTimeframe: "1d",
			CheckInterval:     15 * time.Minute,
			StopLossPercent:   3.0,
			TakeProfitPercent: 8.0,
			MinHold:           4 * time.Hour,
			MaxHold:           7 * 24 * time.Hour,
			Trailing:          &models.TrailingStop{ActivationPercent: 5.0, DistancePercent: 3.0},
			Enabled:           true,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("invalid default strategy catalog: %v", err))
	}
	return c
}

type catalogFile struct {
	Strategies []catalogEntry `yaml:"strategies" validate:"required,min=1,dive"`
}

type catalogEntry struct {
	ID                   string               `yaml:"id" validate:"required"`
	Name                 string               `yaml:"name" validate:"required"`
	Description          string               `yaml:"description"`
	Timeframe            string               `yaml:"timeframe" validate:"required,oneof=1m 5m 15m 1h 4h 1d"`
	AdvisoryTimeframe    string               `yaml:"advisory_timeframe" validate:"required,oneof=1m 5m 15m 1h 4h 1d"`
	CheckIntervalSeconds int                  `yaml:"check_interval" validate:"required,gt=0"`
	StopLossPercent      float64              `yaml:"stop_loss_percent" validate:"gt=0"`
	TakeProfitPercent    float64              `yaml:"take_profit_percent" validate:"gt=0"`
	MinHoldMinutes       int                  `yaml:"min_hold_minutes" validate:"gte=0"`
	MaxHoldMinutes       int                  `yaml:"max_hold_minutes" validate:"gtefield=MinHoldMinutes"`
	Trailing             *models.TrailingStop `yaml:"trailing_stop" validate:"omitempty"`
	Enabled              *bool                `yaml:"enabled"`
}

// LoadCatalog reads a YAML strategy catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML strategy catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategy catalog: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid strategy catalog: %w", err)
	}

	configs := make([]Config, 0, len(file.Strategies))
	for _, entry := range file.Strategies {
		id, err := models.ParseStrategyID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid strategy catalog: %w", err)
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		configs = append(configs, Config{
			ID:                id,
			Name:              entry.Name,
			Description:       entry.Description,
			Timeframe:         entry.Timeframe,
			AdvisoryTimeframe: entry.AdvisoryTimeframe,
			CheckInterval:     time.Duration(entry.CheckIntervalSeconds) * time.Second,
			StopLossPercent:   entry.StopLossPercent,
			TakeProfitPercent: entry.TakeProfitPercent,
			MinHold:           time.Duration(entry.MinHoldMinutes) * time.Minute,
			MaxHold:           time.Duration(entry.MaxHoldMinutes) * time.Minute,
			Trailing:          entry.Trailing,
			Enabled:           enabled,
		})
	}
	return NewCatalog(configs...)
}

// Get returns the definition for id.
func (c *Catalog) Get(id models.StrategyID) (Config, bool) {
	cfg, ok := c.strategies[id]
	return cfg, ok
}

// IDs returns every strategy id in catalog order, enabled or not.
func (c *Catalog) IDs() []models.StrategyID {
	out := make([]models.StrategyID, len(c.order))
	copy(out, c.order)
	return out
}

// Enabled returns the enabled strategies in catalog order.
func (c *Catalog) Enabled() []Config {
	out := make([]Config, 0, len(c.order))
	for _, id := range c.order {
		if cfg := c.strategies[id]; cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// Restrict returns a copy of the catalog where only the listed strategies stay enabled.
func (c *Catalog) Restrict(ids []models.StrategyID) *Catalog {
	keep := make(map[models.StrategyID]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := &Catalog{strategies: make(map[models.StrategyID]Config, len(c.strategies))}
	for _, id := range c.order {
		cfg := c.strategies[id]
		cfg.Enabled = cfg.Enabled && keep[id]
		out.strategies[id] = cfg
		out.order = append(out.order, id)
	}
	return out
}

// Timeframes returns every distinct strategy and advisory timeframe used by enabled strategies.
func (c *Catalog) Timeframes() []string {
	seen := make(map[string]struct{})
	for _, cfg := range c.Enabled() {
		seen[cfg.Timeframe] = struct{}{}
		seen[cfg.AdvisoryTimeframe] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for tf := range seen {
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool {
		return TimeframeDuration(out[i]) < TimeframeDuration(out[j])
	})
	return out
}

// BaseCheckInterval is the shortest check interval among enabled strategies.
func (c *Catalog) BaseCheckInterval() time.Duration {
	var base time.Duration
	for _, cfg := range c.Enabled() {
		if base == 0 || cfg.CheckInterval < base {
			base = cfg.CheckInterval
		}
	}
	return base
}

// TimeframeDuration converts a timeframe label such as "15m" or "4h" into a duration.
// Unknown labels return 0.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	}
	return 0
}
