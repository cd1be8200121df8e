package histdata

import (
	"context"
	"time"

	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/terminal"
)

// Health is a per-symbol probe across the three sources.
type Health struct {
	Symbol   string `json:"symbol"`
	Cache    bool   `json:"cache"`
	Terminal string `json:"terminal"`
	Provider string `json:"provider"`
}

// Health probes each source independently; failures are reported inline and
// never returned as errors.
func (s *Service) Health(ctx context.Context, symbol string, account *terminal.Credentials) Health {
	h := Health{Symbol: symbol}

	_, h.Cache = s.cache.Load(symbol, market.D1)

	if account == nil {
		h.Terminal = "no account configured"
	} else {
		to := time.Now()
		if _, err := s.live.Fetch(ctx, *account, symbol, market.D1, to.AddDate(0, -1, 0), to); err != nil {
			h.Terminal = err.Error()
		} else {
			h.Terminal = "OK"
		}
	}

	if _, err := s.provider.FetchCandles(ctx, symbol, market.D1, 1); err != nil {
		h.Provider = err.Error()
	} else {
		h.Provider = "OK"
	}

	return h
}
