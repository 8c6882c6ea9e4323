package signal

import (
	"math"
	"time"

	"github.com/ajitpratap0/scalpd/internal/indicators"
)

// Confidence bounds for actionable advice. HOLD always reads 50.
const (
	confidenceFloor = 40.0
	confidenceCeil  = 95.0
	holdConfidence  = 50.0
)

// Risk/reward multiples applied when a swing level anchors the stop
const (
	strongRiskReward = 2.0
	normalRiskReward = 1.5
)

func defined(v float64) bool {
	return !math.IsNaN(v)
}

// Synthesize runs the decision ladder over one symbol's indicator set and
// returns graded advice. The ladder is evaluated top to bottom and the first
// matching tier decides direction and base confidence; volume and VWAP
// deviation add a bounded bonus on top. Tiers whose required indicators are
// undefined are skipped. A set that is still warming always yields HOLD.
func Synthesize(set indicators.Set, params Params) Advice {
	advice := Advice{
		Symbol:      set.Symbol,
		Signal:      Hold,
		Confidence:  holdConfidence,
		GeneratedAt: time.Now().UTC(),
	}

	if !set.Warm() {
		advice.Reasons = []string{"warming"}
		return advice
	}

	price := set.Price
	rsi := set.RSI14
	vr := set.VolumeRatio

	dev := 0.0
	if defined(set.VWAP) && set.VWAP != 0 {
		dev = (price - set.VWAP) / set.VWAP
	}

	volBonus := 0.0
	if defined(vr) {
		volBonus = math.Min(10, vr*5)
	}
	devBonus := math.Min(5, math.Abs(dev)*200)

	emaFast := defined(set.EMA9) && defined(set.EMA21)
	uptrend := defined(set.EMA50) && defined(set.EMA200) &&
		price > set.EMA50 && set.EMA50 > set.EMA200
	downtrend := defined(set.EMA50) && defined(set.EMA200) &&
		price < set.EMA50 && set.EMA50 < set.EMA200
	nearEMA50 := defined(set.EMA50) && set.EMA50 != 0 &&
		math.Abs(price-set.EMA50)/set.EMA50 <= 0.005

	switch {
	// Tier 1/2: fast EMA cross with confirming RSI and live volume
	case emaFast && defined(rsi) && defined(vr) &&
		set.EMA9 > set.EMA21 && rsi >= 25 && rsi <= 55 && vr >= 1.0:
		advice.set(StrongBuy, 80+volBonus+devBonus, "scalp_long_ema_cross")

	case emaFast && defined(rsi) && defined(vr) &&
		set.EMA9 < set.EMA21 && rsi >= 45 && rsi <= 75 && vr >= 1.0:
		advice.set(StrongSell, 80+volBonus+devBonus, "scalp_short_ema_cross")

	// Tier 3/4: pullback to EMA50 inside an established trend
	case uptrend && nearEMA50 && defined(rsi) && rsi >= 45 && rsi <= 65:
		advice.set(Buy, 70+volBonus, "pullback_long")

	case downtrend && nearEMA50 && defined(rsi) && rsi >= 35 && rsi <= 55:
		advice.set(Sell, 70+volBonus, "pullback_short")

	// Tier 5/6: momentum with VWAP confirmation
	case uptrend && defined(rsi) && rsi >= 50 && rsi <= 65 &&
		defined(set.VWAP) && price > set.VWAP:
		advice.set(Buy, 55+volBonus+devBonus, "momentum_long")

	case downtrend && defined(rsi) && rsi >= 35 && rsi <= 50 &&
		defined(set.VWAP) && price < set.VWAP:
		advice.set(Sell, 55+volBonus+devBonus, "momentum_short")

	// Tier 7/8: bare trend follow
	case uptrend && defined(rsi) && rsi >= 45 && rsi <= 60:
		advice.set(Buy, 45, "trend_long")

	case downtrend && defined(rsi) && rsi >= 40 && rsi <= 55:
		advice.set(Sell, 45, "trend_short")

	// Tier 9: exhaustion reversion on heavy volume
	case defined(rsi) && defined(vr) && rsi < 30 && vr > 1.0:
		advice.set(Buy, 60, "oversold_bounce")

	case defined(rsi) && defined(vr) && rsi > 70 && vr > 1.5:
		advice.set(Sell, 60, "overbought_fade")

	// Tier 10: neutral RSI with some participation, lean on fair value
	case defined(rsi) && defined(vr) && rsi >= 30 && rsi <= 70 && vr >= 0.5:
		ref := set.VWAP
		if !defined(ref) {
			ref = set.EMA21
		}
		if defined(ref) && price >= ref {
			advice.set(Buy, 35+volBonus, "fair_value_drift_long")
		} else if defined(ref) {
			advice.set(Sell, 35+volBonus, "fair_value_drift_short")
		}
	}

	if !advice.Signal.Actionable() {
		advice.Signal = Hold
		advice.Confidence = holdConfidence
		if len(advice.Reasons) == 0 {
			advice.Reasons = []string{"no_setup"}
		}
		return advice
	}

	advice.Confidence = clamp(advice.Confidence, confidenceFloor, confidenceCeil)
	advice.Entry = price
	advice.StopLoss, advice.TakeProfit, advice.RiskReward =
		ComputeTargets(advice.Signal, price, set, params)

	return advice
}

func (a *Advice) set(sig Signal, confidence float64, reason string) {
	a.Signal = sig
	a.Confidence = confidence
	a.Reasons = append(a.Reasons, reason)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ComputeTargets derives the stop and target levels for an actionable
// signal. Stops anchor on the recent swing level when one exists, padded by
// half a percent, but never wider than the configured percent stop. Targets
// are a risk multiple of the stop distance; without a swing anchor both
// levels fall back to the configured percentages.
func ComputeTargets(sig Signal, price float64, set indicators.Set, params Params) (stop, target, riskReward float64) {
	if !sig.Actionable() || price <= 0 {
		return 0, 0, 0
	}

	rr := normalRiskReward
	if sig.Strong() {
		rr = strongRiskReward
	}

	if sig.IsBuy() {
		pctStop := price * (1 - params.StopLossPercent/100)
		if defined(set.SwingLow) && set.SwingLow < price {
			stop = math.Min(set.SwingLow*0.995, pctStop)
			target = price + (price-stop)*rr
		} else {
			stop = pctStop
			target = price * (1 + params.TakeProfitPercent/100)
		}
	} else {
		pctStop := price * (1 + params.StopLossPercent/100)
		if defined(set.SwingHigh) && set.SwingHigh > price {
			stop = math.Max(set.SwingHigh*1.005, pctStop)
			target = price - (stop-price)*rr
		} else {
			stop = pctStop
			target = price * (1 - params.TakeProfitPercent/100)
		}
	}

	if stop != price {
		riskReward = math.Abs(target-price) / math.Abs(price-stop)
	}
	return stop, target, riskReward
}
