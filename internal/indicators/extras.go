package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

// MACD parameters (12/26/9) and the Bollinger period are fixed: these
// values are reported for operators, not consulted by the decision ladder.
const (
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	bollingerSpan  = 20
	macdMinCandles = macdSlow + macdSignal
)

// MACD returns the most recent MACD line and signal line values, NaN when
// the series is too short
func MACD(closes []float64) (macd, signal float64) {
	if len(closes) < macdMinCandles {
		return math.NaN(), math.NaN()
	}

	// Convert slice to channel
	pricesChan := make(chan float64, len(closes))
	for _, p := range closes {
		pricesChan <- p
	}
	close(pricesChan)

	macdIndicator := trend.NewMacdWithPeriod[float64](macdFast, macdSlow, macdSignal)
	macdChan, signalChan := macdIndicator.Compute(pricesChan)

	macd, signal = math.NaN(), math.NaN()
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macd, signal = m, s
	}
	return macd, signal
}

// Bollinger returns the most recent upper and lower band values for the
// fixed 20-period, 2-sigma bands, NaN when the series is too short
func Bollinger(closes []float64) (upper, lower float64) {
	if len(closes) < bollingerSpan {
		return math.NaN(), math.NaN()
	}

	pricesChan := make(chan float64, len(closes))
	for _, p := range closes {
		pricesChan <- p
	}
	close(pricesChan)

	bbIndicator := volatility.NewBollingerBandsWithPeriod[float64](bollingerSpan)
	lowerChan, middleChan, upperChan := bbIndicator.Compute(pricesChan)

	upper, lower = math.NaN(), math.NaN()
	for {
		l, lok := <-lowerChan
		_, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		upper, lower = u, l
	}
	return upper, lower
}
