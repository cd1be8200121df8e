package market

import (
	"testing"
	"time"
)

func ts(h int) time.Time {
	return time.Date(2025, 1, 1, h, 0, 0, 0, time.UTC)
}

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	in := []Candle{
		{Time: ts(3), Close: 3},
		{Time: ts(1), Close: 1},
		{Time: ts(2), Close: 2},
		{Time: ts(2), Close: 22}, // duplicate timestamp, later value wins
	}
	out := Normalize(in)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i].Time.After(out[i-1].Time) {
			t.Fatalf("times not strictly increasing at %d", i)
		}
	}
	if out[1].Close != 22 {
		t.Errorf("duplicate not resolved to last occurrence: close = %v", out[1].Close)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if out := Normalize(nil); len(out) != 0 {
		t.Fatalf("len = %d", len(out))
	}
}

func TestTimeframe(t *testing.T) {
	cases := []struct {
		tf       Timeframe
		valid    bool
		interval string
	}{
		{M1, true, "1m"},
		{M5, true, "5m"},
		{M15, true, "15m"},
		{H1, true, "1h"},
		{H4, true, "4h"},
		{D1, true, "1d"},
		{Timeframe("W1"), false, ""},
		{Timeframe(""), false, ""},
	}
	for _, tc := range cases {
		if got := tc.tf.Valid(); got != tc.valid {
			t.Errorf("%q.Valid() = %v, want %v", tc.tf, got, tc.valid)
		}
		if tc.valid && tc.tf.ProviderInterval() != tc.interval {
			t.Errorf("%q.ProviderInterval() = %q, want %q", tc.tf, tc.tf.ProviderInterval(), tc.interval)
		}
	}
	if H1.Duration() != time.Hour {
		t.Errorf("H1 duration = %v", H1.Duration())
	}
	if D1.Duration() != 24*time.Hour {
		t.Errorf("D1 duration = %v", D1.Duration())
	}
}
