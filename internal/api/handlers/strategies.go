package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/strategy"
)

// StrategyGuard reports loss streak pauses and size throttling.
type StrategyGuard interface {
	Allowed(ctx context.Context, ids []models.StrategyID) []models.StrategyID
	Multiplier(ctx context.Context, id models.StrategyID) decimal.Decimal
}

type StrategyHandler struct {
	catalog *strategy.Catalog
	rules   strategy.PositionRules
	guard   StrategyGuard
}

func NewStrategyHandler(catalog *strategy.Catalog, rules strategy.PositionRules, guard StrategyGuard) *StrategyHandler {
	return &StrategyHandler{catalog: catalog, rules: rules, guard: guard}
}

type StrategyStatus struct {
	ID                  models.StrategyID    `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	Timeframe           string               `json:"timeframe"`
	CheckInterval       string               `json:"check_interval"`
	StopLossPercent     float64              `json:"stop_loss_percent"`
	TakeProfitPercent   float64              `json:"take_profit_percent"`
	MaxHold             string               `json:"max_hold"`
	Trailing            *models.TrailingStop `json:"trailing_stop,omitempty"`
	Priority            int                  `json:"priority"`
	MaxPositions        *int                 `json:"max_positions,omitempty"`
	PositionSizePercent float64              `json:"position_size_percent"`
	Paused              bool                 `json:"paused"`
	SizeMultiplier      string               `json:"size_multiplier"`
}

// ListStrategies serves GET /api/v1/strategies in catalog order.
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	ctx := c.Request.Context()
	enabled := h.catalog.Enabled()

	ids := make([]models.StrategyID, 0, len(enabled))
	for _, cfg := range enabled {
		ids = append(ids, cfg.ID)
	}
	allowed := make(map[models.StrategyID]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	if h.guard != nil {
		allowed = make(map[models.StrategyID]bool, len(ids))
		for _, id := range h.guard.Allowed(ctx, ids) {
			allowed[id] = true
		}
	}

	out := make([]StrategyStatus, 0, len(enabled))
	for _, cfg := range enabled {
		status := StrategyStatus{
			ID:                  cfg.ID,
			Name:                cfg.Name,
			Description:         cfg.Description,
			Timeframe:           cfg.Timeframe,
			CheckInterval:       cfg.CheckInterval.String(),
			StopLossPercent:     cfg.StopLossPercent,
			TakeProfitPercent:   cfg.TakeProfitPercent,
			MaxHold:             cfg.MaxHold.Round(time.Minute).String(),
			Trailing:            cfg.Trailing,
			Priority:            h.rules.Rank(cfg.ID),
			PositionSizePercent: h.rules.PositionSizePercent[cfg.ID],
			Paused:              !allowed[cfg.ID],
			SizeMultiplier:      "1",
		}
		if limit, ok := h.rules.MaxPerStrategy[cfg.ID]; ok {
			status.MaxPositions = &limit
		}
		if h.guard != nil {
			status.SizeMultiplier = h.guard.Multiplier(ctx, cfg.ID).String()
		}
		out = append(out, status)
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"count":      len(out),
			"strategies": out,
			"max_total":  h.rules.MaxTotal,
		},
	})
}
