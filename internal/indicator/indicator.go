// Package indicator provides pure technical-indicator transforms over a
// candle series. Each function returns one value per input bar; bars where
// the indicator is not yet defined hold NaN.
package indicator

import (
	"math"

	"github.com/robopilot/robopilot/internal/market"
)

// Defined reports whether v holds a computed indicator value.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// SMA returns the rolling arithmetic mean of closing prices over period bars.
func SMA(candles []market.Candle, period int) []float64 {
	return rollingMean(market.Closes(candles), period)
}

// EMA returns the exponential moving average of closing prices with
// smoothing factor 2/(period+1), seeded by the first close.
func EMA(candles []market.Candle, period int) []float64 {
	return ema(market.Closes(candles), period)
}

// RSI returns the relative strength index over period bars.
func RSI(candles []market.Candle, period int) []float64 {
	closes := market.Closes(candles)
	n := len(closes)
	gains := nanSlice(n)
	losses := nanSlice(n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i], losses[i] = delta, 0
		} else {
			gains[i], losses[i] = 0, -delta
		}
	}

	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)

	out := nanSlice(n)
	for i := 0; i < n; i++ {
		if !Defined(avgGain[i]) || !Defined(avgLoss[i]) {
			continue
		}
		if avgLoss[i] == 0 {
			if avgGain[i] == 0 {
				continue // flat window, undefined
			}
			out[i] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD returns the main line EMA(fast)−EMA(slow) and its EMA(signal) line.
func MACD(candles []market.Candle, fast, slow, signal int) (line, signalLine []float64) {
	closes := market.Closes(candles)
	fastEMA := ema(closes, fast)
	slowEMA := ema(closes, slow)

	line = nanSlice(len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine = ema(line, signal)
	return line, signalLine
}

// Bollinger returns the upper band, middle SMA and lower band for the given
// period and stddev multiplier.
func Bollinger(candles []market.Candle, period int, k float64) (upper, middle, lower []float64) {
	closes := market.Closes(candles)
	middle = rollingMean(closes, period)
	std := rollingStd(closes, period)

	upper = nanSlice(len(closes))
	lower = nanSlice(len(closes))
	for i := range closes {
		upper[i] = middle[i] + k*std[i]
		lower[i] = middle[i] - k*std[i]
	}
	return upper, middle, lower
}

// ATR returns the rolling mean of the true range over period bars.
func ATR(candles []market.Candle, period int) []float64 {
	return rollingMean(trueRange(candles), period)
}

// Stochastic returns %K over kPeriod bars and %D, the rolling mean of %K
// over dPeriod bars.
func Stochastic(candles []market.Candle, kPeriod, dPeriod int) (k, d []float64) {
	n := len(candles)
	k = nanSlice(n)
	for i := kPeriod - 1; i < n; i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := i - kPeriod + 1; j <= i; j++ {
			lo = math.Min(lo, candles[j].Low)
			hi = math.Max(hi, candles[j].High)
		}
		if hi == lo {
			continue
		}
		k[i] = 100 * (candles[i].Close - lo) / (hi - lo)
	}
	d = rollingMean(k, dPeriod)
	return k, d
}

// ADX returns the average directional index with its +DI and −DI components.
// Directional movement is smoothed with a rolling mean and normalized by ATR.
func ADX(candles []market.Candle, period int) (adx, plusDI, minusDI []float64) {
	n := len(candles)
	plusDM := nanSlice(n)
	minusDM := nanSlice(n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i].Low - candles[i-1].Low
		if up < 0 {
			up = 0
		}
		if down > 0 {
			down = 0
		}
		plusDM[i] = up
		minusDM[i] = -down
	}

	atr := ATR(candles, period)
	plusSmooth := rollingMean(plusDM, period)
	minusSmooth := rollingMean(minusDM, period)

	plusDI = nanSlice(n)
	minusDI = nanSlice(n)
	dx := nanSlice(n)
	for i := 0; i < n; i++ {
		if !Defined(atr[i]) || atr[i] == 0 {
			continue
		}
		plusDI[i] = 100 * plusSmooth[i] / atr[i]
		minusDI[i] = 100 * minusSmooth[i] / atr[i]
		sum := plusDI[i] + minusDI[i]
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
	}
	adx = rollingMean(dx, period)
	return adx, plusDI, minusDI
}

func trueRange(candles []market.Candle) []float64 {
	tr := nanSlice(len(candles))
	for i := 1; i < len(candles); i++ {
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - candles[i-1].Close)
		lc := math.Abs(candles[i].Low - candles[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)

	seeded := false
	var prev float64
	for i, v := range values {
		if !Defined(v) {
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// rollingMean computes the mean over the trailing window. Any NaN inside the
// window leaves the result undefined, matching how diffs shorten a series.
func rollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if !Defined(values[j]) {
				ok = false
				break
			}
			sum += values[j]
		}
		if ok {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// rollingStd computes the trailing sample standard deviation.
func rollingStd(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 1 {
		return out
	}
	means := rollingMean(values, period)
	for i := period - 1; i < len(values); i++ {
		if !Defined(means[i]) {
			continue
		}
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - means[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
