// Package provider fetches historical candles from the public chart API
// used as the last resort in the acquisition fallback chain.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

// CandidateTickers resolves a platform symbol to the tickers the public
// provider may know it by, most specific first. Six-letter currency pairs
// get the "=X" forms plus symmetric USD rewrites; metals and crypto have
// fixed overrides.
func CandidateTickers(symbol string) []string {
	s := strings.ToUpper(symbol)

	if strings.Contains(s, "BTC") {
		return []string{"BTC-USD"}
	}
	if strings.Contains(s, "GOLD") || strings.Contains(s, "XAU") {
		return []string{"GC=F"}
	}

	var candidates []string
	if len(s) == 6 {
		candidates = append(candidates, s+"=X")
		if strings.HasPrefix(s, "USD") {
			candidates = append(candidates, s[3:]+"=X")
		}
		if strings.HasSuffix(s, "USD") {
			candidates = append(candidates, s[:3]+"=X")
		}
	}
	return append(candidates, s)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []quote `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type quote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

// FetchCandles tries each candidate ticker in order and returns the first
// normalized non-empty series.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, lookbackMonths int) ([]market.Candle, error) {
	candidates := CandidateTickers(symbol)

	var lastErr error
	for _, ticker := range candidates {
		candles, err := c.fetchTicker(ctx, ticker, tf, lookbackMonths)
		if err != nil {
			c.logger.Debug("provider candidate failed", "ticker", ticker, "error", err)
			lastErr = err
			continue
		}
		if len(candles) > 0 {
			return candles, nil
		}
		lastErr = fmt.Errorf("no data returned for %s", ticker)
	}
	return nil, fmt.Errorf("provider failed for all candidates %v: %w", candidates, lastErr)
}

func (c *Client) fetchTicker(ctx context.Context, ticker string, tf market.Timeframe, lookbackMonths int) ([]market.Candle, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%dmo",
		c.baseURL, url.PathEscape(ticker), tf.ProviderInterval(), lookbackMonths)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for %s", resp.StatusCode, ticker)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("parse chart response: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("provider error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty result for %s", ticker)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("missing quote columns for %s", ticker)
	}
	q := result.Indicators.Quote[0]
	if q.Open == nil || q.High == nil || q.Low == nil || q.Close == nil || len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("incomplete column set for %s", ticker)
	}

	candles := make([]market.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(q.Open) || i >= len(q.High) || i >= len(q.Low) || i >= len(q.Close) {
			break
		}
		// Rows with missing OHLC values are dropped.
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue
		}
		c := market.Candle{
			Time:  time.Unix(ts, 0).UTC(),
			Open:  *q.Open[i],
			High:  *q.High[i],
			Low:   *q.Low[i],
			Close: *q.Close[i],
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		candles = append(candles, c)
	}

	return market.Normalize(candles), nil
}
