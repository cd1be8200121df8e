package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/robopilot/robopilot/internal/market"
)

func series(closes ...float64) []market.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return out
}

func TestFlatSeriesProducesNoTrades(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 1.08
	}
	rules := RuleSet{
		RSI: &RSIRule{Period: 14, Buy: 30, Sell: 70},
		MA:  &MARule{Period: 50},
	}

	trades := Run(series(closes...), rules)
	if len(trades) != 0 {
		t.Fatalf("expected no trades on flat close series, got %d", len(trades))
	}

	m := ComputeMetrics(trades)
	if m.WinRate != 0 || m.TotalProfit != 0 || m.TotalTrades != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestMARuleOpensAndClosesLong(t *testing.T) {
	// Warm up flat at 100 for the MA window, rise above it, then fall below.
	closes := make([]float64, 0, 30)
	for i := 0; i < 10; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 5; i++ {
		closes = append(closes, 110+float64(i))
	}
	for i := 0; i < 5; i++ {
		closes = append(closes, 80-float64(i))
	}

	rules := RuleSet{MA: &MARule{Period: 5}}
	trades := Run(series(closes...), rules)

	if len(trades) == 0 {
		t.Fatal("expected at least one trade")
	}
	first := trades[0]
	if first.Side != SideLong {
		t.Errorf("first trade side = %q, want long", first.Side)
	}
	if !first.Closed {
		t.Error("expected first trade to close when price dropped below the MA")
	}
	if first.Profit != first.ExitPrice-first.EntryPrice {
		t.Errorf("long profit = %v, want exit-entry = %v", first.Profit, first.ExitPrice-first.EntryPrice)
	}
}

func TestNeverTwoOpenPositions(t *testing.T) {
	// Oscillating series produces many signals; verify at most one trade is
	// open at any point by checking every trade except the last is closed.
	closes := make([]float64, 0, 120)
	for i := 0; i < 120; i++ {
		closes = append(closes, 100+20*math.Sin(float64(i)/3))
	}

	rules := RuleSet{MA: &MARule{Period: 10}}
	trades := Run(series(closes...), rules)

	for i, tr := range trades[:max(len(trades)-1, 0)] {
		if !tr.Closed {
			t.Errorf("trade %d is open while a later trade exists", i)
		}
	}
}

func TestShortProfitIsEntryMinusExit(t *testing.T) {
	closes := make([]float64, 0, 30)
	for i := 0; i < 10; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 5; i++ {
		closes = append(closes, 90-float64(i)) // below MA -> sell
	}
	for i := 0; i < 5; i++ {
		closes = append(closes, 120+float64(i)) // above MA -> buy closes short
	}

	rules := RuleSet{MA: &MARule{Period: 5}}
	trades := Run(series(closes...), rules)

	if len(trades) == 0 {
		t.Fatal("expected trades")
	}
	short := trades[0]
	if short.Side != SideShort {
		t.Fatalf("first trade side = %q, want short", short.Side)
	}
	if !short.Closed {
		t.Fatal("expected short to close")
	}
	if short.Profit != short.EntryPrice-short.ExitPrice {
		t.Errorf("short profit = %v, want entry-exit = %v", short.Profit, short.EntryPrice-short.ExitPrice)
	}
}

func TestMetricsMatchTradeList(t *testing.T) {
	trades := []Trade{
		{Side: SideLong, Profit: 2.5, Closed: true},
		{Side: SideShort, Profit: -1.0, Closed: true},
		{Side: SideLong, Profit: 0.5, Closed: true},
		{Side: SideShort}, // left open, excluded from win rate and profit
	}

	m := ComputeMetrics(trades)
	if m.TotalTrades != 4 {
		t.Errorf("total trades = %d, want 4", m.TotalTrades)
	}
	if m.ClosedTrades != 3 {
		t.Errorf("closed trades = %d, want 3", m.ClosedTrades)
	}

	var sum float64
	for _, tr := range trades {
		if tr.Closed {
			sum += tr.Profit
		}
	}
	if m.TotalProfit != sum {
		t.Errorf("total profit = %v, want re-summed %v", m.TotalProfit, sum)
	}

	wantRate := 100 * 2.0 / 3.0
	if math.Abs(m.WinRate-wantRate) > 1e-9 {
		t.Errorf("win rate = %v, want %v", m.WinRate, wantRate)
	}
	if m.WinRate < 0 || m.WinRate > 100 {
		t.Errorf("win rate %v out of [0,100]", m.WinRate)
	}
	if m.TotalTrades < m.ClosedTrades {
		t.Errorf("total %d < closed %d", m.TotalTrades, m.ClosedTrades)
	}
}
