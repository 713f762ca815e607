package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeloop/internal/services/ensemble"
)

// EnsembleReader exposes the optimizer state.
type EnsembleReader interface {
	Weights() ensemble.Weights
	PerformanceSummary() map[ensemble.ModelSource]ensemble.ModelSummary
	History() []ensemble.OptimizationRecord
	OptimizationCount() int
}

type EnsembleHandler struct {
	optimizer EnsembleReader
}

func NewEnsembleHandler(optimizer EnsembleReader) *EnsembleHandler {
	return &EnsembleHandler{optimizer: optimizer}
}

// GetWeights serves GET /api/v1/ensemble/weights.
func (h *EnsembleHandler) GetWeights(c *gin.Context) {
	summary := h.optimizer.PerformanceSummary()
	models := make(map[string]ensemble.ModelSummary, len(summary))
	for source, s := range summary {
		models[string(source)] = s
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"weights":            h.optimizer.Weights().StringMap(),
			"optimization_count": h.optimizer.OptimizationCount(),
			"models":             models,
		},
	})
}

// GetHistory serves GET /api/v1/ensemble/history, newest first.
func (h *EnsembleHandler) GetHistory(c *gin.Context) {
	records := h.optimizer.History()
	out := make([]ensemble.OptimizationRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"count":   len(out),
			"history": out,
		},
	})
}
