package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeloop/internal/models"
)

const defaultPerformanceLimit = 100

// PerformanceReader is the read side of the trade history store.
type PerformanceReader interface {
	GetRecentPerformance(ctx context.Context, limit int) (*models.PerformanceSnapshot, error)
	GetTodaysPerformance(ctx context.Context) (*models.DailyPerformance, error)
	GetOpenTradesCount(ctx context.Context) (int, error)
}

type PerformanceHandler struct {
	store PerformanceReader
}

func NewPerformanceHandler(store PerformanceReader) *PerformanceHandler {
	return &PerformanceHandler{store: store}
}

type performanceQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// GetRecentPerformance serves GET /api/v1/performance?limit=N.
func (h *PerformanceHandler) GetRecentPerformance(c *gin.Context) {
	var q performanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "limit must be an integer between 1 and 1000",
		})
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPerformanceLimit
	}

	snapshot, err := h.store.GetRecentPerformance(c.Request.Context(), q.Limit)
	if errors.Is(err, models.ErrNoPerformanceData) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "no closed trades yet",
		})
		return
	}
	if err != nil {
		internalError(c, err, "failed to load performance")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   snapshot,
	})
}

// GetTodaysPerformance serves GET /api/v1/performance/today.
func (h *PerformanceHandler) GetTodaysPerformance(c *gin.Context) {
	daily, err := h.store.GetTodaysPerformance(c.Request.Context())
	if err != nil {
		internalError(c, err, "failed to load today's performance")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   daily,
	})
}

// GetOpenTradesCount serves GET /api/v1/trades/open/count.
func (h *PerformanceHandler) GetOpenTradesCount(c *gin.Context) {
	count, err := h.store.GetOpenTradesCount(c.Request.Context())
	if err != nil {
		internalError(c, err, "failed to count open trades")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"open_trades": count},
	})
}
