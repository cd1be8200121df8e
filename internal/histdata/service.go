// Package histdata acquires historical candles through an ordered fallback
// chain: on-disk cache, then the live terminal, then the public provider.
// Source failures are aggregated into the fetch report instead of aborting
// the chain.
package histdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/robopilot/robopilot/internal/cache"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/terminal"
)

// LiveSource fetches candles from the live terminal for an authenticated
// account.
type LiveSource interface {
	Fetch(ctx context.Context, creds terminal.Credentials, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error)
}

// ProviderSource fetches candles from the public provider.
type ProviderSource interface {
	FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, lookbackMonths int) ([]market.Candle, error)
}

// Request describes one acquisition.
type Request struct {
	Symbol         string
	Timeframe      market.Timeframe
	LookbackMonths int
	AllowFallback  bool
	// Account enables the live-terminal source when set.
	Account *terminal.Credentials
}

type Service struct {
	cache    *cache.Store
	live     LiveSource
	provider ProviderSource
	mirror   *Mirror
	retries  int
	backoff  time.Duration
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewService(store *cache.Store, live LiveSource, prov ProviderSource, mirror *Mirror, retries int, backoff time.Duration, log *logger.Logger) *Service {
	return &Service{
		cache:    store,
		live:     live,
		provider: prov,
		mirror:   mirror,
		retries:  retries,
		backoff:  backoff,
		logger:   log,
		sleep:    sleepCtx,
	}
}

type attemptResult struct {
	candles []market.Candle
	source  Source
}

// Fetch walks the source chain in order, short-circuiting on the first
// success. On total failure the returned error is an *AllSourcesExhausted
// carrying every source's diagnostic, and the report has status FAILED.
func (s *Service) Fetch(ctx context.Context, req Request) ([]market.Candle, *Report, error) {
	report := &Report{Status: StatusFailed, Source: SourceNone, Errors: []SourceError{}, Warnings: []string{}}

	if candles, ok := s.cache.Load(req.Symbol, req.Timeframe); ok {
		s.logger.Info("cache hit", "symbol", req.Symbol, "timeframe", req.Timeframe)
		finishReport(report, candles, SourceCache)
		return candles, report, nil
	}

	if result := s.tryTerminal(ctx, req, report); result != nil {
		s.persist(req, result.candles, report)
		finishReport(report, result.candles, result.source)
		return result.candles, report, nil
	}

	if req.AllowFallback {
		if result := s.tryProvider(ctx, req, report); result != nil {
			s.persist(req, result.candles, report)
			finishReport(report, result.candles, result.source)
			return result.candles, report, nil
		}
	}

	err := &AllSourcesExhausted{
		Symbol:  req.Symbol,
		Errors:  report.Errors,
		Actions: remediationActions,
	}
	s.logger.Error("historical data acquisition failed", "symbol", req.Symbol, "sources", len(report.Errors))
	return nil, report, err
}

func (s *Service) tryTerminal(ctx context.Context, req Request, report *Report) *attemptResult {
	if req.Account == nil {
		report.Errors = append(report.Errors, SourceError{
			Source:  "live_terminal",
			Message: "no account supplied for terminal fetch",
		})
		return nil
	}

	to := time.Now()
	from := to.AddDate(0, -req.LookbackMonths, 0)

	candles, err := s.live.Fetch(ctx, *req.Account, req.Symbol, req.Timeframe, from, to)
	if err != nil {
		report.Errors = append(report.Errors, SourceError{Source: "live_terminal", Message: err.Error()})
		s.logger.Warn("terminal source failed, continuing chain", "symbol", req.Symbol, "error", err)
		return nil
	}
	if len(candles) == 0 {
		report.Errors = append(report.Errors, SourceError{Source: "live_terminal", Message: "terminal returned no candles"})
		return nil
	}
	return &attemptResult{candles: candles, source: SourceTerminal}
}

func (s *Service) tryProvider(ctx context.Context, req Request, report *Report) *attemptResult {
	for attempt := 1; attempt <= s.retries; attempt++ {
		candles, err := s.provider.FetchCandles(ctx, req.Symbol, req.Timeframe, req.LookbackMonths)
		if err == nil && len(candles) > 0 {
			return &attemptResult{candles: candles, source: SourceProvider}
		}
		if err == nil {
			err = fmt.Errorf("provider returned no candles")
		}
		report.Errors = append(report.Errors, SourceError{
			Source:  fmt.Sprintf("public_provider_attempt_%d", attempt),
			Message: err.Error(),
		})

		if attempt < s.retries {
			delay := time.Duration(float64(s.backoff) * math.Pow(2, float64(attempt-1)))
			if err := s.sleep(ctx, delay); err != nil {
				report.Errors = append(report.Errors, SourceError{
					Source:  "public_provider",
					Message: fmt.Sprintf("retry aborted: %v", err),
				})
				return nil
			}
		}
	}
	return nil
}

// persist caches the fetched series and mirrors it to durable storage.
// Neither failure aborts the fetch; both downgrade the report to PARTIAL.
func (s *Service) persist(req Request, candles []market.Candle, report *Report) {
	if err := s.cache.Save(req.Symbol, req.Timeframe, candles); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("cache write failed: %v", err))
		s.logger.Warn("cache write failed", "symbol", req.Symbol, "error", err)
	}
	if s.mirror != nil {
		if err := s.mirror.Write(req.Symbol, candles); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("mirror write failed: %v", err))
			s.logger.Warn("mirror write failed", "symbol", req.Symbol, "error", err)
		}
	}
}

func finishReport(report *Report, candles []market.Candle, source Source) {
	report.Source = source
	report.CandleCount = len(candles)
	if len(candles) > 0 {
		start := candles[0].Time
		end := candles[len(candles)-1].Time
		report.StartTime = &start
		report.EndTime = &end
	}
	if len(report.Warnings) > 0 {
		report.Status = StatusPartial
	} else {
		report.Status = StatusSuccess
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
