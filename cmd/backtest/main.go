package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/robopilot/robopilot/internal/backtest"
	"github.com/robopilot/robopilot/internal/cache"
	"github.com/robopilot/robopilot/internal/config"
	"github.com/robopilot/robopilot/internal/histdata"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/provider"
	"github.com/robopilot/robopilot/internal/terminal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to backtest")
	timeframe := flag.String("timeframe", "H1", "candle timeframe (M1, M5, M15, H1, H4, D1)")
	lookback := flag.Int("lookback", 6, "history depth in months")
	rulesJSON := flag.String("rules", "", "strategy rules as JSON (defaults applied when empty)")
	verbose := flag.Bool("trades", false, "print every trade")
	flag.Parse()

	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -symbol EURUSD [-timeframe H1] [-lookback 6] [-rules '{...}']")
		os.Exit(1)
	}
	tf := market.Timeframe(*timeframe)
	if !tf.Valid() {
		fmt.Fprintf(os.Stderr, "unknown timeframe %q\n", *timeframe)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level)

	var rules backtest.RuleSet
	if *rulesJSON != "" {
		if err := json.Unmarshal([]byte(*rulesJSON), &rules); err != nil {
			fmt.Fprintf(os.Stderr, "invalid rules: %v\n", err)
			os.Exit(1)
		}
	}
	rules.ApplyDefaults()

	client := terminal.NewClient(cfg.Terminal.BridgeURL, log)
	manager := terminal.NewManager(client, log)
	data := histdata.NewService(
		cache.New(cfg.Data.CacheDir, cfg.CacheTTL()),
		histdata.NewTerminalSource(manager),
		provider.NewClient(cfg.Data.ProviderURL, log),
		histdata.NewMirror(cfg.Data.MirrorDir),
		cfg.Data.Retries, cfg.BackoffBase(), log)

	var account *terminal.Credentials
	if cfg.Terminal.Login != "" {
		account = &terminal.Credentials{
			Login:    cfg.Terminal.Login,
			Password: cfg.Terminal.Password,
			Server:   cfg.Terminal.Server,
		}
	}

	candles, report, err := data.Fetch(context.Background(), histdata.Request{
		Symbol:         *symbol,
		Timeframe:      tf,
		LookbackMonths: *lookback,
		AllowFallback:  true,
		Account:        account,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Data: %d candles from %s (%s)\n", report.CandleCount, report.Source, report.Status)
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	trades := backtest.Run(candles, rules)
	metrics := backtest.ComputeMetrics(trades)

	if *verbose {
		fmt.Println()
		for _, t := range trades {
			state := "open"
			if t.Closed {
				state = fmt.Sprintf("closed %.5f, profit %+.5f", t.ExitPrice, t.Profit)
			}
			fmt.Printf("  %s %s @ %.5f (%s)\n", t.EntryTime.Format("2006-01-02 15:04"), t.Side, t.EntryPrice, state)
		}
	}

	fmt.Println()
	fmt.Printf("Trades:       %d (closed %d)\n", metrics.TotalTrades, metrics.ClosedTrades)
	fmt.Printf("Win rate:     %.2f%%\n", metrics.WinRate)
	fmt.Printf("Total profit: %+.5f\n", metrics.TotalProfit)
}
