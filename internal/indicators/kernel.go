package indicators

import (
	"math"

	"github.com/ajitpratap0/scalpd/internal/market"
)

// Default lookbacks used by the indicator set
const (
	RSIPeriod        = 14
	SwingLookback    = 20
	VolatilityPeriod = 20
	VolumePeriod     = 20
)

// All kernel functions operate on oldest-to-newest slices and return NaN
// when there is not enough data to produce a defined value. Callers test
// with math.IsNaN, never by comparing against a magic number.

// SMA returns the arithmetic mean of the last n values
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// EMA returns the exponential moving average with period n, seeded from the
// first value and iterated over the whole slice. Defined for any non-empty
// input; a short history just carries less smoothing context.
func EMA(values []float64, n int) float64 {
	if n <= 0 || len(values) == 0 {
		return math.NaN()
	}
	k := 2.0 / (float64(n) + 1.0)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// RSI returns the Wilder relative strength index over period n. The first
// average gain/loss is a simple mean of the first n deltas; later deltas use
// Wilder smoothing. A perfectly flat series reads as neutral 50.
func RSI(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return math.NaN()
	}

	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)

	for i := n + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// VWAP returns the volume-weighted average of typical prices over the
// window. Undefined when total volume is zero.
func VWAP(candles []market.Candle) float64 {
	var pv, vol float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return math.NaN()
	}
	return pv / vol
}

// SwingLevels returns the highest fractal swing high and lowest fractal
// swing low within the last lookback bars. A swing high is a bar whose high
// strictly exceeds its immediate neighbor on each side; swing lows mirror.
// When the window confirms no fractal the window extremes stand in, so both
// levels are defined for any non-empty window.
func SwingLevels(highs, lows []float64, lookback int) (swingHigh, swingLow float64) {
	swingHigh, swingLow = math.NaN(), math.NaN()
	if len(highs) != len(lows) || len(highs) == 0 || lookback <= 0 {
		return swingHigh, swingLow
	}

	start := len(highs) - lookback
	if start < 0 {
		start = 0
	}

	// Fractals need a neighbor on each side
	first := start
	if first < 1 {
		first = 1
	}
	for i := first; i <= len(highs)-2; i++ {
		if highs[i] > highs[i-1] && highs[i] > highs[i+1] &&
			(math.IsNaN(swingHigh) || highs[i] > swingHigh) {
			swingHigh = highs[i]
		}
		if lows[i] < lows[i-1] && lows[i] < lows[i+1] &&
			(math.IsNaN(swingLow) || lows[i] < swingLow) {
			swingLow = lows[i]
		}
	}

	if math.IsNaN(swingHigh) {
		for _, h := range highs[start:] {
			if math.IsNaN(swingHigh) || h > swingHigh {
				swingHigh = h
			}
		}
	}
	if math.IsNaN(swingLow) {
		for _, l := range lows[start:] {
			if math.IsNaN(swingLow) || l < swingLow {
				swingLow = l
			}
		}
	}
	return swingHigh, swingLow
}

// Volatility returns the annualized standard deviation of log returns over
// the last n returns
func Volatility(closes []float64, n int) float64 {
	if n <= 1 || len(closes) < n+1 {
		return math.NaN()
	}

	returns := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return math.NaN()
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)

	return math.Sqrt(variance) * math.Sqrt(252)
}

// VolumeRatio returns the last volume relative to the mean of the n volumes
// preceding it. Above 1 means the current bar trades heavier than recent
// bars.
func VolumeRatio(volumes []float64, n int) float64 {
	if n <= 0 || len(volumes) < n+1 {
		return math.NaN()
	}

	mean := 0.0
	for _, v := range volumes[len(volumes)-1-n : len(volumes)-1] {
		mean += v
	}
	mean /= float64(n)
	if mean == 0 {
		return math.NaN()
	}
	return volumes[len(volumes)-1] / mean
}
