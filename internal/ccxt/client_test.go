package ccxt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	url     string
	timeout int
}

func (c testConfig) GetServiceURL() string { return c.url }
func (c testConfig) GetTimeout() int { return c.timeout }

const ohlcvBody = `{
	"exchange": "binance",
	"symbol": "BTC/USDT",
	"timeframe": "1h",
	"ohlcv": [
		{"timestamp": "2026-03-01T01:00:00Z", "open": "101", "high": "103.5", "low": "100", "close": "102.25", "volume": "12.5"},
		{"timestamp": "2026-03-01T00:00:00Z", "open": 100, "high": 101.5, "low": 99, "close": 101, "volume": 10}
	],
	"timestamp": "2026-03-01T01:30:00Z"
}`

func TestClient_FetchOHLCV(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ohlcvBody))
	}))
	defer server.Close()

	client := NewClient(testConfig{url: server.URL + "/", timeout: 5}, "binance", nil)
	candles, err := client.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 100)
	require.NoError(t, err)

	assert.Equal(t, "/api/ohlcv/binance/BTC%2FUSDT", gotPath)
	assert.Equal(t, "limit=100&timeframe=1h", gotQuery)

	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), candles[0].Timestamp.UTC())
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 102.25, candles[1].Close)
	assert.Equal(t, 12.5, candles[1].Volume)
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"exchange not available"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig{url: server.URL}, "binance", nil)
	_, err := client.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 100)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "exchange not available")
}

func TestClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ohlcv": [`))
	}))
	defer server.Close()

	_, err := NewClient(testConfig{url: server.URL}, "binance", nil).FetchOHLCV(context.Background(), "BTC/USDT", "1h", 10)
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestClient_RespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(testConfig{url: server.URL}, "binance", nil).FetchOHLCV(ctx, "BTC/USDT", "1h", 10)
	assert.Error(t, err)
}

func TestClient_Validation(t *testing.T) {
	client := NewClient(testConfig{url: "http://127.0.0.1:1"}, "binance", nil)
	_, err := client.GetOHLCV(context.Background(), "", "1h", 10)
	assert.Error(t, err)
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, "binance", client.Exchange())
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, NewClient(testConfig{url: server.URL}, "binance", nil).HealthCheck(context.Background()))
}
