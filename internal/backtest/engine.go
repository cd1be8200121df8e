// Package backtest evaluates a rule set over a historical candle series by
// running a flat/long/short position state machine on closing prices.
package backtest

import (
	"time"

	"github.com/robopilot/robopilot/internal/indicator"
	"github.com/robopilot/robopilot/internal/market"
)

const (
	SideLong  = "long"
	SideShort = "short"
)

// Trade is one simulated position. Profit is only meaningful when Closed.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Side       string    `json:"side"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	Profit     float64   `json:"profit"`
	Closed     bool      `json:"closed"`
}

// Metrics aggregates a trade list. WinRate and TotalProfit consider closed
// trades only; TotalTrades counts a position left open at series end too.
type Metrics struct {
	WinRate      float64 `json:"win_rate"`
	TotalProfit  float64 `json:"total_profit"`
	TotalTrades  int     `json:"total_trades"`
	ClosedTrades int     `json:"closed_trades"`
}

// Run evaluates the rule set bar by bar. A buy signal is the conjunction of
// every active rule's buy predicate, likewise for sell; a bar where an
// indicator is still undefined fails that rule's predicate.
func Run(candles []market.Candle, rules RuleSet) []Trade {
	rules.ApplyDefaults()
	if len(candles) < 2 || rules.Empty() {
		return nil
	}

	var rsi, ma, macdLine, macdSignal []float64
	if rules.RSI != nil {
		rsi = indicator.RSI(candles, rules.RSI.Period)
	}
	if rules.MA != nil {
		ma = indicator.SMA(candles, rules.MA.Period)
	}
	if rules.MACD != nil {
		macdLine, macdSignal = indicator.MACD(candles, rules.MACD.Fast, rules.MACD.Slow, rules.MACD.Signal)
	}

	var trades []Trade
	position := "" // "", SideLong or SideShort

	start := rules.MaxWindow()
	if start < 1 {
		start = 1
	}
	for i := start; i < len(candles); i++ {
		buy, sell := true, true

		if rules.RSI != nil {
			buy = buy && indicator.Defined(rsi[i]) && rsi[i] < rules.RSI.Buy
			sell = sell && indicator.Defined(rsi[i]) && rsi[i] > rules.RSI.Sell
		}
		if rules.MA != nil {
			buy = buy && indicator.Defined(ma[i]) && candles[i].Close > ma[i]
			sell = sell && indicator.Defined(ma[i]) && candles[i].Close < ma[i]
		}
		if rules.MACD != nil {
			crossUp := indicator.Defined(macdLine[i]) && indicator.Defined(macdSignal[i]) &&
				indicator.Defined(macdLine[i-1]) && indicator.Defined(macdSignal[i-1]) &&
				macdLine[i] > macdSignal[i] && macdLine[i-1] <= macdSignal[i-1]
			crossDown := indicator.Defined(macdLine[i]) && indicator.Defined(macdSignal[i]) &&
				indicator.Defined(macdLine[i-1]) && indicator.Defined(macdSignal[i-1]) &&
				macdLine[i] < macdSignal[i] && macdLine[i-1] >= macdSignal[i-1]
			buy = buy && crossUp
			sell = sell && crossDown
		}

		c := candles[i]
		switch position {
		case "":
			if buy {
				position = SideLong
				trades = append(trades, Trade{EntryTime: c.Time, EntryPrice: c.Close, Side: SideLong})
			} else if sell {
				position = SideShort
				trades = append(trades, Trade{EntryTime: c.Time, EntryPrice: c.Close, Side: SideShort})
			}
		case SideLong:
			if sell {
				closeTrade(trades, c)
				position = ""
			}
		case SideShort:
			if buy {
				closeTrade(trades, c)
				position = ""
			}
		}
	}

	return trades
}

func closeTrade(trades []Trade, c market.Candle) {
	last := &trades[len(trades)-1]
	last.ExitTime = c.Time
	last.ExitPrice = c.Close
	if last.Side == SideLong {
		last.Profit = last.ExitPrice - last.EntryPrice
	} else {
		last.Profit = last.EntryPrice - last.ExitPrice
	}
	last.Closed = true
}

// ComputeMetrics aggregates win rate and profit over closed trades.
func ComputeMetrics(trades []Trade) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	wins := 0
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		m.ClosedTrades++
		m.TotalProfit += t.Profit
		if t.Profit > 0 {
			wins++
		}
	}
	if m.ClosedTrades > 0 {
		m.WinRate = 100 * float64(wins) / float64(m.ClosedTrades)
	}
	return m
}
