package ccxt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/tradeloop/internal/models"
)

const defaultTimeout = 30 * time.Second

// ServiceConfig is satisfied by config.CCXTConfig.
type ServiceConfig interface {
	GetServiceURL() string
	GetTimeout() int
}

// Client fetches market data from the CCXT HTTP service for one exchange.
type Client struct {
	baseURL    string
	exchange   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg ServiceConfig, exchange string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.GetTimeout()) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.GetServiceURL(), "/"),
		exchange: exchange,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(zap.String("component", "ccxt_client"), zap.String("exchange", exchange)),
	}
}

func (c *Client) Exchange() string {
	return c.exchange
}

// GetOHLCV returns the raw service response.
func (c *Client) GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*OHLCVResponse, error) {
	if symbol == "" || timeframe == "" {
		return nil, fmt.Errorf("symbol and timeframe are required")
	}

	params := url.Values{}
	params.Set("timeframe", timeframe)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	requestURL := fmt.Sprintf("%s/api/ohlcv/%s/%s?%s",
		c.baseURL, url.PathEscape(c.exchange), url.PathEscape(symbol), params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var result OHLCVResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("Fetched OHLCV",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("candles", len(result.OHLCV)),
		zap.Duration("latency", time.Since(start)))
	return &result, nil
}

// FetchOHLCV implements cache.CandleFetcher.
func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	resp, err := c.GetOHLCV(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s candles: %w", symbol, timeframe, err)
	}
	return resp.Candles(), nil
}

// HealthCheck pings the service's /health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("ccxt service returned %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("ccxt service returned status %d", resp.StatusCode)
}

func sortCandles(candles []models.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}
