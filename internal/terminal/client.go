// Package terminal talks to the external broker terminal through its local
// bridge API. Sessions are explicit, exclusive resources: acquiring a new
// one logs the previous one out.
package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
)

// Credentials authenticate one trading account against the terminal. The
// password arrives decrypted and is never persisted by this package.
type Credentials struct {
	Login    string
	Password string
	Server   string
}

// AccountInfo is the terminal's view of the authenticated account.
type AccountInfo struct {
	Login        string  `json:"login"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	MarginFree   float64 `json:"margin_free"`
	Profit       float64 `json:"profit"`
	Currency     string  `json:"currency"`
	TradeAllowed bool    `json:"trade_allowed"`
}

// Info describes the terminal itself.
type Info struct {
	Connected bool   `json:"connected"`
	FilesDir  string `json:"files_dir"`
}

// Client is a thin HTTP client for the terminal bridge.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     log,
	}
}

// Ping reports whether the bridge answers at all.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	return c.get(ctx, "/ping", nil, &out)
}

func (c *Client) login(ctx context.Context, creds Credentials) error {
	body := map[string]string{
		"login":    creds.Login,
		"password": creds.Password,
		"server":   creds.Server,
	}
	var out struct {
		Authorized bool   `json:"authorized"`
		Error      string `json:"error"`
	}
	if err := c.post(ctx, "/login", body, &out); err != nil {
		return err
	}
	if !out.Authorized {
		reason := out.Error
		if reason == "" {
			reason = "login rejected"
		}
		return &AuthorizationError{Reason: reason}
	}
	return nil
}

func (c *Client) logout(ctx context.Context) error {
	return c.post(ctx, "/logout", map[string]string{}, &struct{}{})
}

// Account returns account state; an unauthorized session yields an
// AuthorizationError.
func (c *Client) Account(ctx context.Context) (*AccountInfo, error) {
	var out struct {
		Account *AccountInfo `json:"account"`
		Error   string       `json:"error"`
	}
	if err := c.get(ctx, "/account", nil, &out); err != nil {
		return nil, err
	}
	if out.Account == nil {
		reason := out.Error
		if reason == "" {
			reason = "no account info"
		}
		return nil, &AuthorizationError{Reason: reason}
	}
	return out.Account, nil
}

// TerminalInfo returns connectivity state and the shared files directory.
func (c *Client) TerminalInfo(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.get(ctx, "/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Symbols lists the account's tradable symbols.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var out struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.get(ctx, "/symbols", nil, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

type wireCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Candles requests a date range of history for a resolved symbol.
func (c *Client) Candles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	params := url.Values{
		"symbol":    {symbol},
		"timeframe": {string(tf)},
		"from":      {strconv.FormatInt(from.Unix(), 10)},
		"to":        {strconv.FormatInt(to.Unix(), 10)},
	}
	var out struct {
		Candles []wireCandle `json:"candles"`
		Error   string       `json:"error"`
	}
	if err := c.get(ctx, "/candles", params, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("terminal candle request: %s", out.Error)
	}

	candles := make([]market.Candle, 0, len(out.Candles))
	for _, w := range out.Candles {
		candles = append(candles, market.Candle{
			Time:   time.Unix(w.Time, 0).UTC(),
			Open:   w.Open,
			High:   w.High,
			Low:    w.Low,
			Close:  w.Close,
			Volume: w.Volume,
		})
	}
	return market.Normalize(candles), nil
}

// Signal reads a named global signal written by the strategy executor.
func (c *Client) Signal(ctx context.Context, name string) (float64, bool, error) {
	params := url.Values{"name": {name}}
	var out struct {
		Exists bool    `json:"exists"`
		Value  float64 `json:"value"`
	}
	if err := c.get(ctx, "/signal", params, &out); err != nil {
		return 0, false, err
	}
	return out.Value, out.Exists, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &ConnectivityError{Op: op, Err: fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ConnectivityError{Op: op, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}
