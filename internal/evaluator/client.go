// Package evaluator talks to the external strategy evaluation service that
// decides whether a strategy's entry conditions hold on a candle window.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/services/signals"
)

const defaultTimeout = 10 * time.Second

type Response struct {
	Signal bool   `json:"signal"`
	Reason string `json:"reason,omitempty"`
}

// Client implements signals.Evaluator over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        strings.TrimRight(baseURL, "/") + "/evaluate",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "evaluator_client")),
	}
}

func (c *Client) Evaluate(ctx context.Context, req signals.EvaluationRequest) (bool, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("evaluation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Signal {
		c.logger.Debug("Evaluator fired",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.String("reason", result.Reason))
	}
	return result.Signal, nil
}
