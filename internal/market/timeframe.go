package market

import "time"

// Timeframe is a chart interval identifier (M1, M5, M15, H1, H4, D1).
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

var durations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
}

// Duration returns the bar length, defaulting to one hour for unknown values.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := durations[tf]; ok {
		return d
	}
	return time.Hour
}

// ProviderInterval maps a timeframe to the public provider's interval token.
func (tf Timeframe) ProviderInterval() string {
	switch tf {
	case M1:
		return "1m"
	case M5:
		return "5m"
	case M15:
		return "15m"
	case H4:
		return "4h"
	case D1:
		return "1d"
	default:
		return "1h"
	}
}

// Valid reports whether tf is a known timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := durations[tf]
	return ok
}
