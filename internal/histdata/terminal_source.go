package histdata

import (
	"context"
	"fmt"
	"time"

	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/terminal"
)

// TerminalSource adapts the terminal session manager to the LiveSource
// interface. Each fetch acquires its own session and releases it on every
// exit path.
type TerminalSource struct {
	manager *terminal.Manager
}

func NewTerminalSource(mgr *terminal.Manager) *TerminalSource {
	return &TerminalSource{manager: mgr}
}

func (t *TerminalSource) Fetch(ctx context.Context, creds terminal.Credentials, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	session, err := t.manager.Acquire(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	resolved, err := session.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	candles, err := session.Candles(ctx, resolved, tf, from, to)
	if err != nil {
		return nil, fmt.Errorf("terminal history for %s: %w", resolved, err)
	}
	return candles, nil
}
