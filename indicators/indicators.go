// indicators/indicators.go
package indicators

import (
	"math"

	"nuanced_trader_go/utils"
)

// Series functions return a slice aligned with the input: out[i] is the
// indicator value at bar i. Warmup bars are filled with the best
// partial-window estimate so callers never see NaN.

// SMA computes a simple moving average.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded from the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1.0-k)
	}
	return out
}

// RSI computes Wilder's relative strength index. Warmup bars read 50.
func RSI(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = 50.0
	}
	if len(values) <= period || period <= 0 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// MACDResult holds the MACD line, signal line, and histogram series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the moving average convergence divergence series.
func MACD(values []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	fast := EMA(values, fastPeriod)
	slow := EMA(values, slowPeriod)

	macd := make([]float64, len(values))
	for i := range values {
		macd[i] = fast[i] - slow[i]
	}
	sig := EMA(macd, signalPeriod)

	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = macd[i] - sig[i]
	}
	return MACDResult{MACD: macd, Signal: sig, Histogram: hist}
}

// BollingerResult holds the band series plus the normalized band width.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64
}

// Bollinger computes Bollinger bands over a rolling window.
func Bollinger(values []float64, period int, stdDev float64) BollingerResult {
	n := len(values)
	res := BollingerResult{
		Upper:  make([]float64, n),
		Middle: SMA(values, period),
		Lower:  make([]float64, n),
		Width:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := values[start : i+1]
		sd := populationStdDev(window, res.Middle[i])
		res.Upper[i] = res.Middle[i] + stdDev*sd
		res.Lower[i] = res.Middle[i] - stdDev*sd
		if res.Middle[i] != 0 {
			res.Width[i] = (res.Upper[i] - res.Lower[i]) / res.Middle[i]
		}
	}
	return res
}

func populationStdDev(window []float64, mean float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(window)))
}

// StochasticResult holds the %K and %D oscillator series.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes the stochastic oscillator from high/low/close series.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) StochasticResult {
	n := len(closes)
	k := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i - kPeriod + 1
		if start < 0 {
			start = 0
		}
		hh, ll := highs[start], lows[start]
		for j := start + 1; j <= i; j++ {
			if highs[j] > hh {
				hh = highs[j]
			}
			if lows[j] < ll {
				ll = lows[j]
			}
		}
		if utils.FloatEquals(hh, ll) {
			k[i] = 50.0
		} else {
			k[i] = 100.0 * (closes[i] - ll) / (hh - ll)
		}
	}
	return StochasticResult{K: k, D: SMA(k, dPeriod)}
}

// ATR computes Wilder's average true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 || period <= 0 {
		return out
	}
	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		if i < period {
			sum += tr[i]
			out[i] = sum / float64(i+1)
		} else {
			out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
		}
	}
	return out
}

// ADX computes the average directional index, a trend-strength measure.
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n < 2 || period <= 0 {
		return out
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	smTR := wilderSmooth(tr, period)
	smPlus := wilderSmooth(plusDM, period)
	smMinus := wilderSmooth(minusDM, period)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if smTR[i] == 0 {
			continue
		}
		pdi := 100.0 * smPlus[i] / smTR[i]
		mdi := 100.0 * smMinus[i] / smTR[i]
		if pdi+mdi != 0 {
			dx[i] = 100.0 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
	}
	return wilderSmooth(dx, period)
}

func wilderSmooth(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
		} else {
			out[i] = (out[i-1]*float64(period-1) + v) / float64(period)
		}
	}
	return out
}

// IchimokuResult holds the two cloud boundary series (senkou span A/B).
type IchimokuResult struct {
	SpanA []float64
	SpanB []float64
}

// Ichimoku computes the cloud boundaries from high/low series. Spans are
// not forward-displaced; values are anchored at the bar they derive from.
func Ichimoku(highs, lows []float64, conversionPeriod, basePeriod, spanBPeriod int) IchimokuResult {
	n := len(highs)
	res := IchimokuResult{SpanA: make([]float64, n), SpanB: make([]float64, n)}
	for i := 0; i < n; i++ {
		tenkan := midpoint(highs, lows, i, conversionPeriod)
		kijun := midpoint(highs, lows, i, basePeriod)
		res.SpanA[i] = (tenkan + kijun) / 2.0
		res.SpanB[i] = midpoint(highs, lows, i, spanBPeriod)
	}
	return res
}

func midpoint(highs, lows []float64, i, period int) float64 {
	start := i - period + 1
	if start < 0 {
		start = 0
	}
	hh, ll := highs[start], lows[start]
	for j := start + 1; j <= i; j++ {
		if highs[j] > hh {
			hh = highs[j]
		}
		if lows[j] < ll {
			ll = lows[j]
		}
	}
	return (hh + ll) / 2.0
}

// Returns computes simple percentage returns aligned with the input;
// the first element is 0.
func Returns(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			out[i] = values[i]/values[i-1] - 1.0
		}
	}
	return out
}
