package market

import (
	"sort"
	"time"
)

// Candle is one OHLCV bar for a fixed time interval.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Normalize sorts candles by time and drops duplicate timestamps, keeping
// the last occurrence. The result is strictly increasing in time.
func Normalize(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	out := sorted[:0]
	for _, c := range sorted {
		if len(out) > 0 && !c.Time.After(out[len(out)-1].Time) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// Closes extracts the closing price series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
