// strategy/adaptive_momentum.go
package strategy

import (
	"fmt"
	"time"

	"nuanced_trader_go/logs"
	"nuanced_trader_go/marketdata"
	"nuanced_trader_go/signal"
	"nuanced_trader_go/utils"
)

func init() {
	Register("adaptive_momentum", func(parameters map[string]float64) (Strategy, error) {
		return NewAdaptiveMomentum(parameters), nil
	})
}

// defaultStake is the per-trade quote stake used as a sizing placeholder
// before the risk manager applies its own position sizing.
const defaultStake = 100.0

// AdaptiveMomentum combines trend, momentum, and volatility indicators
// and switches its entry rules with the detected market regime.
type AdaptiveMomentum struct {
	rsiOverbought      float64
	rsiOversold        float64
	regimeLookback     int
	volatilityLookback int

	regimes map[string]signal.Regime
	traders map[signal.Regime]regimeTrader
}

// regimeTrader produces the entry decision for one market regime.
// First matching rule wins.
type regimeTrader interface {
	evaluate(f *marketdata.Frame) (action signal.Action, reason string, confidence float64, ok bool)
}

// NewAdaptiveMomentum builds the strategy from its configured
// parameters, falling back to the documented defaults.
func NewAdaptiveMomentum(parameters map[string]float64) *AdaptiveMomentum {
	param := func(key string, def float64) float64 {
		if v, ok := parameters[key]; ok && v > 0 {
			return v
		}
		return def
	}
	s := &AdaptiveMomentum{
		rsiOverbought:      param("rsi_overbought", 70),
		rsiOversold:        param("rsi_oversold", 30),
		regimeLookback:     int(param("regime_lookback", 50)),
		volatilityLookback: int(param("volatility_lookback", 20)),
		regimes:            make(map[string]signal.Regime),
	}
	s.traders = map[signal.Regime]regimeTrader{
		signal.RegimeTrending: trendingTrader{},
		signal.RegimeRanging:  rangingTrader{overbought: s.rsiOverbought, oversold: s.rsiOversold},
		signal.RegimeVolatile: volatileTrader{},
	}
	logs.Info("Initialized Adaptive Momentum Strategy")
	return s
}

// Name returns the registered strategy name.
func (s *AdaptiveMomentum) Name() string { return "adaptive_momentum" }

// Regimes returns the last detected regime per pair, for status reporting.
func (s *AdaptiveMomentum) Regimes() map[string]signal.Regime {
	out := make(map[string]signal.Regime, len(s.regimes))
	for pair, regime := range s.regimes {
		out[pair] = regime
	}
	return out
}

// Analyze classifies the pair's regime and runs the matching entry rules.
func (s *AdaptiveMomentum) Analyze(f *marketdata.Frame) ([]*signal.Signal, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("no data available for %s", f.Pair)
	}

	regime := s.determineRegime(f)
	s.regimes[f.Pair] = regime

	// Indicator values below the long lookback are too noisy to act on.
	if f.Len() < 50 {
		return nil, nil
	}

	trader, ok := s.traders[regime]
	if !ok {
		// Unknown regime defaults to the trend rules.
		logs.Debugf("Regime for %s unknown, falling back to trend rules", f.Pair)
		trader = s.traders[signal.RegimeTrending]
	}

	action, reason, confidence, matched := trader.evaluate(f)
	if !matched {
		return nil, nil
	}

	currentPrice := f.LastClose()
	stopLoss, takeProfit := exitLevels(f, action, regime)

	sig, err := signal.New(f.Pair, action, defaultStake/currentPrice)
	if err != nil {
		return nil, err
	}
	sig.Reason = fmt.Sprintf("%s_%s", regime, reason)
	sig.Confidence = confidence
	sig.Timeframe = f.Timeframe
	sig.Timestamp = time.Now().UnixMilli()
	sig.Regime = regime
	sig.StopLoss = stopLoss
	sig.TakeProfit = takeProfit

	logs.Infof("Signal for %s: %s (%s, confidence %.2f)", f.Pair, action, sig.Reason, confidence)
	return []*signal.Signal{sig}, nil
}

// determineRegime classifies the market using trend strength, band
// width, and trailing volatility over the regime lookback window.
func (s *AdaptiveMomentum) determineRegime(f *marketdata.Frame) signal.Regime {
	if f.Len() < s.regimeLookback {
		return signal.RegimeUnknown
	}

	last := f.Len() - 1
	adxCurrent := f.ADX[last]

	start := f.Len() - s.regimeLookback
	bbWidthCurrent := f.BollWidth[last]
	bbWidthAvg := utils.Mean(f.BollWidth[start:])

	volatility := f.Volatility(s.volatilityLookback)

	var regime signal.Regime
	switch {
	case adxCurrent > 25:
		regime = signal.RegimeTrending
	case volatility > 2.5 || bbWidthCurrent > bbWidthAvg*1.5:
		regime = signal.RegimeVolatile
	default:
		regime = signal.RegimeRanging
	}

	logs.Debugf("Market regime for %s: %s (ADX: %.1f, Volatility: %.2f%%, BB Width: %.4f)",
		f.Pair, regime, adxCurrent, volatility, bbWidthCurrent)
	return regime
}

// trendingTrader follows the trend: EMA crossovers confirmed by MACD,
// or established trends confirmed by ADX.
type trendingTrader struct{}

func (trendingTrader) evaluate(f *marketdata.Frame) (signal.Action, string, float64, bool) {
	last := f.Len() - 1
	prev := last - 1

	bullishTrend := f.EMAShort[last] > f.EMALong[last] &&
		f.SMAShort[last] > f.SMALong[last] &&
		f.Close[last] > f.SMAShort[last]
	bearishTrend := f.EMAShort[last] < f.EMALong[last] &&
		f.SMAShort[last] < f.SMALong[last] &&
		f.Close[last] < f.SMAShort[last]

	bullishCrossover := f.EMAShort[prev] <= f.EMALong[prev] && f.EMAShort[last] > f.EMALong[last]
	bearishCrossover := f.EMAShort[prev] >= f.EMALong[prev] && f.EMAShort[last] < f.EMALong[last]

	macdBullish := f.MACD[last] > f.MACDSignal[last] &&
		f.MACDHist[last] > 0 &&
		f.MACDHist[last] > f.MACDHist[prev]
	macdBearish := f.MACD[last] < f.MACDSignal[last] &&
		f.MACDHist[last] < 0 &&
		f.MACDHist[last] < f.MACDHist[prev]

	switch {
	case bullishCrossover && macdBullish:
		return signal.Buy, "ema_crossover_with_macd", 0.8, true
	case bullishTrend && macdBullish && f.ADX[last] > 25:
		return signal.Buy, "strong_trend_continuation", 0.7, true
	case bearishCrossover && macdBearish:
		return signal.Sell, "ema_crossover_with_macd", 0.8, true
	case bearishTrend && macdBearish && f.ADX[last] > 25:
		return signal.Sell, "strong_trend_continuation", 0.7, true
	}
	return "", "", 0, false
}

// rangingTrader mean-reverts off the Bollinger bands when RSI and the
// stochastic oscillator agree the move is exhausted.
type rangingTrader struct {
	overbought float64
	oversold   float64
}

func (t rangingTrader) evaluate(f *marketdata.Frame) (signal.Action, string, float64, bool) {
	last := f.Len() - 1

	nearUpperBand := f.Close[last] > f.BollUpper[last]*0.98
	nearLowerBand := f.Close[last] < f.BollLower[last]*1.02

	rsiOversold := f.RSI[last] < t.oversold
	rsiOverbought := f.RSI[last] > t.overbought

	stochOversold := f.StochK[last] < 20 && f.StochD[last] < 20
	stochOverbought := f.StochK[last] > 80 && f.StochD[last] > 80

	switch {
	case nearLowerBand && rsiOversold && stochOversold:
		return signal.Buy, "oversold_bounce", 0.75, true
	case nearUpperBand && rsiOverbought && stochOverbought:
		return signal.Sell, "overbought_reversal", 0.75, true
	}
	return "", "", 0, false
}

// volatileTrader trades band breakouts backed by a volume surge, the
// Ichimoku cloud, and strong ADX. Confidence is lower in this regime.
type volatileTrader struct{}

func (volatileTrader) evaluate(f *marketdata.Frame) (signal.Action, string, float64, bool) {
	last := f.Len() - 1
	prev := last - 1

	aboveCloud := f.Close[last] > f.IchimokuA[last] && f.Close[last] > f.IchimokuB[last]
	belowCloud := f.Close[last] < f.IchimokuA[last] && f.Close[last] < f.IchimokuB[last]

	volStart := f.Len() - 10
	if volStart < 0 {
		volStart = 0
	}
	volumeSurge := f.Volume[last] > utils.Mean(f.Volume[volStart:])*1.5

	strongADX := f.ADX[last] > 30

	upperBreakout := f.Close[last] > f.BollUpper[last] &&
		f.Close[prev] <= f.BollUpper[prev] &&
		volumeSurge
	lowerBreakout := f.Close[last] < f.BollLower[last] &&
		f.Close[prev] >= f.BollLower[prev] &&
		volumeSurge

	switch {
	case upperBreakout && aboveCloud && strongADX:
		return signal.Buy, "volatility_breakout", 0.6, true
	case lowerBreakout && belowCloud && strongADX:
		return signal.Sell, "volatility_breakdown", 0.6, true
	}
	return "", "", 0, false
}

// exitLevels derives stop-loss and take-profit prices from the current
// ATR, with multipliers tuned per regime. Ranging markets get scaled
// partial exits at 1x, 2x, and 3x ATR.
func exitLevels(f *marketdata.Frame, action signal.Action, regime signal.Regime) (float64, *signal.TakeProfit) {
	last := f.Len() - 1
	price := f.Close[last]
	atr := f.ATR[last]

	var slMult, tpMult float64
	switch regime {
	case signal.RegimeRanging:
		slMult, tpMult = 1.5, 2.0
	case signal.RegimeVolatile:
		slMult, tpMult = 3.0, 4.0
	default: // trending and unknown
		slMult, tpMult = 2.0, 3.0
	}

	direction := 1.0
	if action == signal.Sell {
		direction = -1.0
	}
	stopLoss := utils.Round8(price - direction*atr*slMult)

	if regime == signal.RegimeRanging {
		targets := make([]float64, 0, 3)
		for _, mult := range []float64{1.0, 2.0, 3.0} {
			targets = append(targets, utils.Round8(price+direction*atr*mult))
		}
		return stopLoss, signal.ScaledTargets(targets)
	}
	return stopLoss, signal.SingleTarget(utils.Round8(price + direction*atr*tpMult))
}
