package analyzer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/indicator"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
)

// Decision statuses.
const (
	StatusIdle        = "IDLE"
	StatusOrderPlaced = "ORDER_PLACED"
)

// Order directions for non-idle decisions.
const (
	OrderBuyLimit  = "BUY_LIMIT"
	OrderSellLimit = "SELL_LIMIT"
)

const (
	trendWindow      = 50
	volatilityWindow = 100
	confidenceEps    = 1e-4

	entryOffsetFactor = 0.1
	stopLossFactor    = 0.5
	takeProfitFactor  = 1.0
)

// Config describes one analysis pass for a robot.
type Config struct {
	Symbol              string
	Timeframe           market.Timeframe
	LookbackMonths      int
	RecencyBias         float64 // lambda in exp(-lambda * ageDays), 0 disables
	SessionPreference   string  // ANY, ASIA, LONDON or NY
	ConfidenceThreshold float64
	MaxEntryWait        time.Duration
}

// Decision is the outcome of a single analysis pass. Entry, stop and take
// profit are only set when Status is ORDER_PLACED.
type Decision struct {
	Status     string    `json:"status"`
	Order      string    `json:"order,omitempty"`
	Entry      float64   `json:"entry,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Confidence float64   `json:"confidence"`
	Expiry     time.Time `json:"expiry,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Fetcher supplies historical candles for the analyzed symbol.
type Fetcher interface {
	Fetch(ctx context.Context, req histdata.Request) ([]market.Candle, *histdata.Report, error)
}

// Analyzer turns recent market history into a weighted order decision.
type Analyzer struct {
	data Fetcher
	log  *logger.Logger
	now  func() time.Time
}

func New(data Fetcher, log *logger.Logger) *Analyzer {
	return &Analyzer{data: data, log: log, now: time.Now}
}

// Run fetches history for the configured symbol and evaluates it.
func (a *Analyzer) Run(ctx context.Context, cfg Config, req histdata.Request) (Decision, *histdata.Report, error) {
	candles, report, err := a.data.Fetch(ctx, req)
	if err != nil {
		return Decision{}, report, fmt.Errorf("analyzer: fetch %s: %w", cfg.Symbol, err)
	}
	dec := Evaluate(candles, cfg, a.now().UTC())
	a.log.Infof("analyzer: %s %s confidence=%.4f status=%s", cfg.Symbol, cfg.Timeframe, dec.Confidence, dec.Status)
	return dec, report, nil
}

// Evaluate scores the candle history and decides whether to place a limit
// order. It is a pure function of its inputs.
func Evaluate(candles []market.Candle, cfg Config, now time.Time) Decision {
	if len(candles) < trendWindow+1 {
		return Decision{Status: StatusIdle, Reason: "not enough history"}
	}

	sma := indicator.SMA(candles, trendWindow)

	var bullish, bearish float64
	for i, c := range candles {
		if !indicator.Defined(sma[i]) {
			continue
		}
		w := candleWeight(c, cfg, now)
		switch {
		case c.Close > sma[i]:
			bullish += w
		case c.Close < sma[i]:
			bearish += w
		}
	}

	// Neutral candles (close on the trend line) carry no directional
	// information and are excluded from the denominator.
	dominant := math.Max(bullish, bearish)
	confidence := dominant / (bullish + bearish + confidenceEps)

	if confidence < cfg.ConfidenceThreshold {
		return Decision{
			Status:     StatusIdle,
			Confidence: round5(confidence),
			Reason:     fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, cfg.ConfidenceThreshold),
		}
	}

	vol := volatility(candles)
	price := candles[len(candles)-1].Close

	dec := Decision{
		Status:     StatusOrderPlaced,
		Confidence: round5(confidence),
		Expiry:     now.Add(cfg.MaxEntryWait),
	}
	if bullish >= bearish {
		dec.Order = OrderBuyLimit
		dec.Entry = round5(price - entryOffsetFactor*vol)
		dec.StopLoss = round5(dec.Entry - stopLossFactor*vol)
		dec.TakeProfit = round5(dec.Entry + takeProfitFactor*vol)
	} else {
		dec.Order = OrderSellLimit
		dec.Entry = round5(price + entryOffsetFactor*vol)
		dec.StopLoss = round5(dec.Entry + stopLossFactor*vol)
		dec.TakeProfit = round5(dec.Entry - takeProfitFactor*vol)
	}
	return dec
}

// candleWeight combines the recency decay and the session preference
// multiplier for one candle.
func candleWeight(c market.Candle, cfg Config, now time.Time) float64 {
	w := 1.0
	if cfg.RecencyBias > 0 {
		ageDays := now.Sub(c.Time).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		w = math.Exp(-cfg.RecencyBias * ageDays)
	}
	return w * sessionWeight(SessionFor(c.Time.UTC().Hour()), cfg.SessionPreference)
}

func sessionWeight(session, pref string) float64 {
	if pref == "" || pref == SessionAny {
		return 1.0
	}
	if session == pref {
		return 1.5
	}
	return 0.5
}

// volatility is the full range of the most recent candles.
func volatility(candles []market.Candle) float64 {
	start := len(candles) - volatilityWindow
	if start < 0 {
		start = 0
	}
	hi := math.Inf(-1)
	lo := math.Inf(1)
	for _, c := range candles[start:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return hi - lo
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
