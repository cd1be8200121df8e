package analyzer

// Trading session labels derived from a candle's UTC hour.
const (
	SessionAsia   = "ASIA"
	SessionLondon = "LONDON"
	SessionNY     = "NY"
	SessionOther  = "OTHER"
	SessionAny    = "ANY"
)

// SessionFor buckets a UTC hour into its trading session. The windows
// overlap (London 8-16, New York 13-21); precedence is Asia, London, then
// New York, so the overlap hours 13-16 are labeled LONDON.
func SessionFor(hour int) string {
	switch {
	case hour >= 0 && hour < 8:
		return SessionAsia
	case hour >= 8 && hour < 16:
		return SessionLondon
	case hour >= 13 && hour < 21:
		return SessionNY
	default:
		return SessionOther
	}
}
