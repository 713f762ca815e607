package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeloop/internal/database"
	"github.com/irfndi/tradeloop/internal/models"
	"github.com/irfndi/tradeloop/internal/services/ensemble"
)

// TradeRecorder is the write side of the trade history store.
type TradeRecorder interface {
	RecordEntry(ctx context.Context, req database.EntryRequest) (int64, error)
	RecordExit(ctx context.Context, id int64, exitPrice float64, reason string) (*models.Trade, error)
}

// PredictionTracker keeps the model calls made at entry until the trade closes.
type PredictionTracker interface {
	Track(tradeID int64, preds map[ensemble.ModelSource]ensemble.Prediction)
}

// TradeHandler accepts fills from the execution collaborator.
type TradeHandler struct {
	store   TradeRecorder
	tracker PredictionTracker
}

func NewTradeHandler(store TradeRecorder, tracker PredictionTracker) *TradeHandler {
	return &TradeHandler{store: store, tracker: tracker}
}

type entryRequest struct {
	Symbol      string                   `json:"symbol" binding:"required"`
	Strategy    models.StrategyID        `json:"strategy" binding:"required"`
	EntryPrice  float64                  `json:"entry_price" binding:"required,gt=0"`
	Quantity    float64                  `json:"quantity" binding:"required,gt=0"`
	Advisory    *models.AdvisoryDecision `json:"advisory"`
	Predictions map[string]string        `json:"predictions"`
}

type exitRequest struct {
	ExitPrice float64 `json:"exit_price" binding:"required,gt=0"`
	Reason    string  `json:"reason" binding:"required"`
}

// RecordEntry serves POST /api/v1/trades.
func (h *TradeHandler) RecordEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "symbol, strategy, entry_price and quantity are required")
		return
	}
	if !req.Strategy.Valid() {
		badRequest(c, "unknown strategy "+string(req.Strategy))
		return
	}
	preds, err := parsePredictions(req.Predictions)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := h.store.RecordEntry(c.Request.Context(), database.EntryRequest{
		Symbol:     req.Symbol,
		Strategy:   req.Strategy,
		EntryPrice: req.EntryPrice,
		Quantity:   req.Quantity,
		Advisory:   req.Advisory,
	})
	if err != nil {
		internalError(c, err, "failed to record trade entry")
		return
	}
	if h.tracker != nil {
		h.tracker.Track(id, preds)
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   gin.H{"id": id},
	})
}

// RecordExit serves POST /api/v1/trades/:id/exit.
func (h *TradeHandler) RecordExit(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "trade id must be a positive integer")
		return
	}
	var req exitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "exit_price and reason are required")
		return
	}

	trade, err := h.store.RecordExit(c.Request.Context(), id, req.ExitPrice, req.Reason)
	if errors.Is(err, database.ErrTradeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"status": "error",
			"error":  "trade not found or already closed",
		})
		return
	}
	if err != nil {
		internalError(c, err, "failed to record trade exit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   trade,
	})
}

func parsePredictions(raw map[string]string) (map[ensemble.ModelSource]ensemble.Prediction, error) {
	preds := make(map[ensemble.ModelSource]ensemble.Prediction, len(raw))
	for name, call := range raw {
		source, err := ensemble.ParseModelSource(name)
		if err != nil {
			// models outside the ensemble carry no weight
			continue
		}
		pred := ensemble.Prediction(call)
		switch pred {
		case ensemble.PredictionBuy, ensemble.PredictionHold, ensemble.PredictionSell:
		default:
			return nil, errors.New("prediction for " + name + " must be BUY, HOLD or SELL")
		}
		preds[source] = pred
	}
	return preds, nil
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status": "error",
		"error":  message,
	})
}
