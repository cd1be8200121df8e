package histdata

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/robopilot/robopilot/internal/cache"
	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
	"github.com/robopilot/robopilot/internal/terminal"
)

func makeCandles(n int) []market.Candle {
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Open:  1.08, High: 1.09, Low: 1.07, Close: 1.085,
		}
	}
	return out
}

type fakeLive struct {
	candles []market.Candle
	err     error
	calls   int
}

func (f *fakeLive) Fetch(ctx context.Context, creds terminal.Credentials, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	f.calls++
	return f.candles, f.err
}

type fakeProvider struct {
	candles []market.Candle
	errs    []error // one per attempt; nil means success
	calls   int
}

func (f *fakeProvider) FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, lookbackMonths int) ([]market.Candle, error) {
	f.calls++
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return f.candles, nil
}

func newService(t *testing.T, live *fakeLive, prov *fakeProvider) (*Service, *cache.Store) {
	t.Helper()
	store := cache.New(t.TempDir(), time.Hour)
	svc := NewService(store, live, prov, nil, 3, time.Millisecond, logger.New("error"))
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return svc, store
}

func TestCacheHitShortCircuits(t *testing.T) {
	live := &fakeLive{}
	prov := &fakeProvider{}
	svc, store := newService(t, live, prov)

	if err := store.Save("EURUSD", market.H1, makeCandles(10)); err != nil {
		t.Fatal(err)
	}

	creds := terminal.Credentials{Login: "1001"}
	candles, report, err := svc.Fetch(context.Background(), Request{
		Symbol: "EURUSD", Timeframe: market.H1, LookbackMonths: 3,
		AllowFallback: true, Account: &creds,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if report.Source != SourceCache || report.Status != StatusSuccess {
		t.Errorf("report = %+v, want CACHE/SUCCESS", report)
	}
	if len(candles) != 10 {
		t.Errorf("got %d candles, want 10", len(candles))
	}
	if live.calls != 0 || prov.calls != 0 {
		t.Errorf("cache hit must not consult other sources: live=%d provider=%d", live.calls, prov.calls)
	}
}

func TestTerminalSuccessPopulatesCache(t *testing.T) {
	live := &fakeLive{candles: makeCandles(20)}
	prov := &fakeProvider{}
	svc, store := newService(t, live, prov)

	creds := terminal.Credentials{Login: "1001"}
	_, report, err := svc.Fetch(context.Background(), Request{
		Symbol: "EURUSD", Timeframe: market.H1, LookbackMonths: 3,
		AllowFallback: true, Account: &creds,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if report.Source != SourceTerminal {
		t.Errorf("source = %s, want LIVE_TERMINAL", report.Source)
	}
	if prov.calls != 0 {
		t.Error("provider consulted despite terminal success")
	}
	if _, ok := store.Load("EURUSD", market.H1); !ok {
		t.Error("terminal fetch should populate the cache")
	}
}

// Scenario: cache miss, terminal rejects authorization, provider succeeds.
func TestTerminalFailureFallsBackToProvider(t *testing.T) {
	live := &fakeLive{err: &terminal.AuthorizationError{Reason: "invalid credentials"}}
	prov := &fakeProvider{candles: makeCandles(500)}
	svc, _ := newService(t, live, prov)

	creds := terminal.Credentials{Login: "1001"}
	candles, report, err := svc.Fetch(context.Background(), Request{
		Symbol: "EURUSD", Timeframe: market.H1, LookbackMonths: 3,
		AllowFallback: true, Account: &creds,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if report.Status != StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", report.Status)
	}
	if report.Source != SourceProvider {
		t.Errorf("source = %s, want PUBLIC_PROVIDER", report.Source)
	}
	if report.CandleCount != 500 || len(candles) != 500 {
		t.Errorf("candle count = %d/%d, want 500", report.CandleCount, len(candles))
	}
	if len(report.Errors) != 1 || report.Errors[0].Source != "live_terminal" {
		t.Errorf("errors = %+v, want single live_terminal entry", report.Errors)
	}
}

func TestProviderRetriesWithTaggedAttempts(t *testing.T) {
	live := &fakeLive{err: errors.New("terminal down")}
	prov := &fakeProvider{
		candles: makeCandles(50),
		errs:    []error{errors.New("rate limited"), errors.New("rate limited"), nil},
	}
	svc, _ := newService(t, live, prov)

	creds := terminal.Credentials{Login: "1001"}
	_, report, err := svc.Fetch(context.Background(), Request{
		Symbol: "GBPUSD", Timeframe: market.H1, LookbackMonths: 1,
		AllowFallback: true, Account: &creds,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if prov.calls != 3 {
		t.Errorf("provider calls = %d, want 3", prov.calls)
	}

	var tags []string
	for _, se := range report.Errors {
		tags = append(tags, se.Source)
	}
	want := []string{"live_terminal", "public_provider_attempt_1", "public_provider_attempt_2"}
	if len(tags) != len(want) {
		t.Fatalf("error tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tag[%d] = %s, want %s", i, tags[i], want[i])
		}
	}
}

func TestAllSourcesExhausted(t *testing.T) {
	live := &fakeLive{err: errors.New("terminal down")}
	prov := &fakeProvider{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	svc, _ := newService(t, live, prov)

	creds := terminal.Credentials{Login: "1001"}
	_, report, err := svc.Fetch(context.Background(), Request{
		Symbol: "EURUSD", Timeframe: market.H1, LookbackMonths: 1,
		AllowFallback: true, Account: &creds,
	})

	var exhausted *AllSourcesExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want AllSourcesExhausted", err)
	}
	if report.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", report.Status)
	}
	if len(exhausted.Errors) != 4 { // live_terminal + three provider attempts
		t.Errorf("errors = %d, want 4: %+v", len(exhausted.Errors), exhausted.Errors)
	}
	if len(exhausted.Actions) == 0 {
		t.Error("expected remediation actions")
	}
	if !strings.Contains(exhausted.Error(), "live_terminal") {
		t.Errorf("error string should name sources: %s", exhausted.Error())
	}
}

func TestNoFallbackSkipsProvider(t *testing.T) {
	live := &fakeLive{err: errors.New("terminal down")}
	prov := &fakeProvider{candles: makeCandles(10)}
	svc, _ := newService(t, live, prov)

	creds := terminal.Credentials{Login: "1001"}
	_, _, err := svc.Fetch(context.Background(), Request{
		Symbol: "EURUSD", Timeframe: market.H1, LookbackMonths: 1,
		AllowFallback: false, Account: &creds,
	})
	if err == nil {
		t.Fatal("expected failure with fallback disabled")
	}
	if prov.calls != 0 {
		t.Errorf("provider calls = %d, want 0", prov.calls)
	}
}

func TestNoAccountRecordsTerminalError(t *testing.T) {
	live := &fakeLive{candles: makeCandles(10)}
	prov := &fakeProvider{candles: makeCandles(10)}
	svc, _ := newService(t, live, prov)

	_, report, err := svc.Fetch(context.Background(), Request{
		Symbol: "EURUSD", Timeframe: market.H1, LookbackMonths: 1,
		AllowFallback: true,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if live.calls != 0 {
		t.Error("live source must not be consulted without an account")
	}
	if len(report.Errors) == 0 || report.Errors[0].Source != "live_terminal" {
		t.Errorf("expected live_terminal skip entry, got %+v", report.Errors)
	}
	if report.Source != SourceProvider {
		t.Errorf("source = %s, want PUBLIC_PROVIDER", report.Source)
	}
}
