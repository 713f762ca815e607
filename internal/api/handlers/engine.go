package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeloop/internal/cache"
	"github.com/irfndi/tradeloop/internal/services"
)

type CycleReporter interface {
	LastResult() (services.CycleResult, bool)
}

type CacheReporter interface {
	Stats() cache.Stats
}

// EngineHandler exposes decision loop and candle cache state.
type EngineHandler struct {
	loop  CycleReporter
	cache CacheReporter
}

func NewEngineHandler(loop CycleReporter, cache CacheReporter) *EngineHandler {
	return &EngineHandler{loop: loop, cache: cache}
}

// GetLastCycle serves GET /api/v1/cycles/last.
func (h *EngineHandler) GetLastCycle(c *gin.Context) {
	result, ok := h.loop.LastResult()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "no decision cycle has completed yet",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
	})
}

// GetCacheStats serves GET /api/v1/cache/stats.
func (h *EngineHandler) GetCacheStats(c *gin.Context) {
	stats := h.cache.Stats()
	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"hits":         stats.Hits,
			"misses":       stats.Misses,
			"fetch_errors": stats.FetchErrors,
			"hit_rate":     hitRate,
		},
	})
}
