package indicators

import (
	"time"

	"github.com/ajitpratap0/scalpd/internal/market"
)

// WarmCandles is the minimum buffer depth before a symbol's indicators are
// trusted for trading decisions. The EMAs are defined on shorter histories
// but carry too little context to trade on below this depth.
const WarmCandles = 21

// Set is one symbol's indicator snapshot. Fields that cannot be computed
// from the available candles hold NaN.
type Set struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	SMA20          float64   `json:"sma_20"`
	EMA9           float64   `json:"ema_9"`
	EMA21          float64   `json:"ema_21"`
	EMA50          float64   `json:"ema_50"`
	EMA200         float64   `json:"ema_200"`
	RSI14          float64   `json:"rsi_14"`
	VWAP           float64   `json:"vwap"`
	SwingHigh      float64   `json:"swing_high"`
	SwingLow       float64   `json:"swing_low"`
	Volatility     float64   `json:"volatility"`
	VolumeRatio    float64   `json:"volume_ratio"`
	MACD           float64   `json:"macd"`
	MACDSignal     float64   `json:"macd_signal"`
	BollingerUpper float64   `json:"bollinger_upper"`
	BollingerLower float64   `json:"bollinger_lower"`
	Candles        int       `json:"candles"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Warm reports whether enough candles back the set for trading decisions
func (s Set) Warm() bool {
	return s.Candles >= WarmCandles
}

// Compute assembles the full indicator set from an oldest-to-newest candle
// window. Pure: identical candles produce an identical set apart from
// ComputedAt.
func Compute(symbol string, candles []market.Candle) Set {
	set := Set{
		Symbol:     symbol,
		Candles:    len(candles),
		ComputedAt: time.Now().UTC(),
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	if len(closes) > 0 {
		set.Price = closes[len(closes)-1]
	}

	set.SMA20 = SMA(closes, 20)
	set.EMA9 = EMA(closes, 9)
	set.EMA21 = EMA(closes, 21)
	set.EMA50 = EMA(closes, 50)
	set.EMA200 = EMA(closes, 200)
	set.RSI14 = RSI(closes, RSIPeriod)
	set.VWAP = VWAP(candles)
	set.SwingHigh, set.SwingLow = SwingLevels(highs, lows, SwingLookback)
	set.Volatility = Volatility(closes, VolatilityPeriod)
	set.VolumeRatio = VolumeRatio(volumes, VolumePeriod)
	set.MACD, set.MACDSignal = MACD(closes)
	set.BollingerUpper, set.BollingerLower = Bollinger(closes)

	return set
}
