package backtest

// RuleSet maps the indicators a robot trades on to their parameters. A nil
// rule means the indicator is not part of the strategy.
type RuleSet struct {
	RSI  *RSIRule  `json:"rsi,omitempty"`
	MA   *MARule   `json:"ma,omitempty"`
	MACD *MACDRule `json:"macd,omitempty"`
}

type RSIRule struct {
	Period int     `json:"period"`
	Buy    float64 `json:"buy"`
	Sell   float64 `json:"sell"`
}

type MARule struct {
	Period int `json:"period"`
}

type MACDRule struct {
	Fast   int `json:"fast"`
	Slow   int `json:"slow"`
	Signal int `json:"signal"`
}

// ApplyDefaults fills zero-valued parameters with the platform defaults.
func (r *RuleSet) ApplyDefaults() {
	if r.RSI != nil {
		if r.RSI.Period == 0 {
			r.RSI.Period = 14
		}
		if r.RSI.Buy == 0 {
			r.RSI.Buy = 30
		}
		if r.RSI.Sell == 0 {
			r.RSI.Sell = 70
		}
	}
	if r.MA != nil && r.MA.Period == 0 {
		r.MA.Period = 50
	}
	if r.MACD != nil {
		if r.MACD.Fast == 0 {
			r.MACD.Fast = 12
		}
		if r.MACD.Slow == 0 {
			r.MACD.Slow = 26
		}
		if r.MACD.Signal == 0 {
			r.MACD.Signal = 9
		}
	}
}

// MaxWindow returns the largest indicator window in the set, used as the
// evaluation warm-up.
func (r *RuleSet) MaxWindow() int {
	max := 1
	if r.RSI != nil && r.RSI.Period > max {
		max = r.RSI.Period
	}
	if r.MA != nil && r.MA.Period > max {
		max = r.MA.Period
	}
	if r.MACD != nil && r.MACD.Slow > max {
		max = r.MACD.Slow
	}
	return max
}

// Empty reports whether no rules are active.
func (r *RuleSet) Empty() bool {
	return r.RSI == nil && r.MA == nil && r.MACD == nil
}
