// marketdata/provider.go
package marketdata

import (
	"context"
	"fmt"
	"sync"

	"nuanced_trader_go/exchange"
	"nuanced_trader_go/indicators"
	"nuanced_trader_go/logs"
	"nuanced_trader_go/utils"
)

// Params carries the indicator periods used to annotate candle frames.
// Zero fields fall back to the documented defaults.
type Params struct {
	SMAShort           int
	SMALong            int
	EMAShort           int
	EMALong            int
	RSIPeriod          int
	BollingerPeriod    int
	BollingerStd       float64
	MACDFast           int
	MACDSlow           int
	MACDSignal         int
	StochKPeriod       int
	StochDPeriod       int
	ATRPeriod          int
	ADXPeriod          int
	IchimokuConversion int
	IchimokuBase       int
	IchimokuSpanB      int
	VolatilityLookback int
}

// DefaultParams returns the standard indicator configuration.
func DefaultParams() Params {
	return Params{
		SMAShort:           20,
		SMALong:            50,
		EMAShort:           9,
		EMALong:            21,
		RSIPeriod:          14,
		BollingerPeriod:    20,
		BollingerStd:       2.0,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		StochKPeriod:       14,
		StochDPeriod:       3,
		ATRPeriod:          14,
		ADXPeriod:          14,
		IchimokuConversion: 9,
		IchimokuBase:       26,
		IchimokuSpanB:      52,
		VolatilityLookback: 20,
	}
}

// ParamsFromStrategy overlays strategy parameters onto the defaults.
func ParamsFromStrategy(parameters map[string]float64) Params {
	p := DefaultParams()
	read := func(key string, dst *int) {
		if v, ok := parameters[key]; ok && v > 0 {
			*dst = int(v)
		}
	}
	read("sma_short", &p.SMAShort)
	read("sma_long", &p.SMALong)
	read("ema_short", &p.EMAShort)
	read("ema_long", &p.EMALong)
	read("rsi_period", &p.RSIPeriod)
	read("bollinger_period", &p.BollingerPeriod)
	read("volatility_lookback", &p.VolatilityLookback)
	if v, ok := parameters["bollinger_std"]; ok && v > 0 {
		p.BollingerStd = v
	}
	return p
}

// Frame is a candle series for one pair annotated with every indicator
// series the strategies consume. All slices share the same length and
// index alignment.
type Frame struct {
	Pair      string
	Timeframe string

	OpenTime []int64
	Open     []float64
	High     []float64
	Low      []float64
	Close    []float64
	Volume   []float64

	SMAShort []float64
	SMALong  []float64
	EMAShort []float64
	EMALong  []float64

	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	BollUpper  []float64
	BollMiddle []float64
	BollLower  []float64
	BollWidth  []float64

	StochK []float64
	StochD []float64

	ATR []float64
	ADX []float64

	IchimokuA []float64
	IchimokuB []float64
}

// Len returns the number of bars in the frame.
func (f *Frame) Len() int { return len(f.Close) }

// LastClose returns the most recent close price, or 0 for an empty frame.
func (f *Frame) LastClose() float64 {
	if f.Len() == 0 {
		return 0
	}
	return f.Close[f.Len()-1]
}

// Volatility returns the sample standard deviation of percentage
// returns over the trailing lookback window, expressed in percent.
func (f *Frame) Volatility(lookback int) float64 {
	returns := indicators.Returns(f.Close)
	if lookback > 0 && len(returns) > lookback {
		returns = returns[len(returns)-lookback:]
	}
	return utils.SampleStdDev(returns) * 100.0
}

// BuildFrame annotates raw candles with the full indicator set.
func BuildFrame(pair, timeframe string, candles []exchange.Candle, p Params) *Frame {
	n := len(candles)
	f := &Frame{
		Pair:      pair,
		Timeframe: timeframe,
		OpenTime:  make([]int64, n),
		Open:      make([]float64, n),
		High:      make([]float64, n),
		Low:       make([]float64, n),
		Close:     make([]float64, n),
		Volume:    make([]float64, n),
	}
	for i, c := range candles {
		f.OpenTime[i] = c.OpenTime
		f.Open[i] = c.Open
		f.High[i] = c.High
		f.Low[i] = c.Low
		f.Close[i] = c.Close
		f.Volume[i] = c.Volume
	}

	f.SMAShort = indicators.SMA(f.Close, p.SMAShort)
	f.SMALong = indicators.SMA(f.Close, p.SMALong)
	f.EMAShort = indicators.EMA(f.Close, p.EMAShort)
	f.EMALong = indicators.EMA(f.Close, p.EMALong)
	f.RSI = indicators.RSI(f.Close, p.RSIPeriod)

	macd := indicators.MACD(f.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
	f.MACD, f.MACDSignal, f.MACDHist = macd.MACD, macd.Signal, macd.Histogram

	boll := indicators.Bollinger(f.Close, p.BollingerPeriod, p.BollingerStd)
	f.BollUpper, f.BollMiddle, f.BollLower, f.BollWidth = boll.Upper, boll.Middle, boll.Lower, boll.Width

	stoch := indicators.Stochastic(f.High, f.Low, f.Close, p.StochKPeriod, p.StochDPeriod)
	f.StochK, f.StochD = stoch.K, stoch.D

	f.ATR = indicators.ATR(f.High, f.Low, f.Close, p.ATRPeriod)
	f.ADX = indicators.ADX(f.High, f.Low, f.Close, p.ADXPeriod)

	ichimoku := indicators.Ichimoku(f.High, f.Low, p.IchimokuConversion, p.IchimokuBase, p.IchimokuSpanB)
	f.IchimokuA, f.IchimokuB = ichimoku.SpanA, ichimoku.SpanB

	return f
}

// Provider caches candle data per pair and serves indicator-annotated
// frames to strategies and the risk manager.
type Provider struct {
	client     exchange.Client
	pairs      []string
	timeframe  string
	maxCandles int
	params     Params

	mu     sync.RWMutex
	frames map[string]*Frame
	stream *PriceStream
}

// NewProvider creates a market data provider over an exchange client.
func NewProvider(client exchange.Client, pairs []string, timeframe string, maxCandles int, params Params) *Provider {
	if maxCandles <= 0 {
		maxCandles = 1000
	}
	return &Provider{
		client:     client,
		pairs:      pairs,
		timeframe:  timeframe,
		maxCandles: maxCandles,
		params:     params,
		frames:     make(map[string]*Frame),
	}
}

// AttachStream registers a live price stream used to answer
// GetLatestPrice without a REST round trip.
func (p *Provider) AttachStream(stream *PriceStream) {
	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
}

// TradingPairs returns the configured traded pairs.
func (p *Provider) TradingPairs() []string { return p.pairs }

// Timeframe returns the configured candle timeframe.
func (p *Provider) Timeframe() string { return p.timeframe }

// Params returns the indicator configuration in use.
func (p *Provider) Params() Params { return p.params }

// GetOHLCV fetches the latest candles for a pair, rebuilds its indicator
// frame, and caches it.
func (p *Provider) GetOHLCV(ctx context.Context, pair string) (*Frame, error) {
	candles, err := p.client.FetchOHLCV(ctx, pair, p.timeframe, p.maxCandles)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OHLCV for %s: %w", pair, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data returned for %s", pair)
	}

	frame := BuildFrame(pair, p.timeframe, candles, p.params)
	p.mu.Lock()
	p.frames[pair] = frame
	p.mu.Unlock()

	logs.Debugf("[Market Data] Refreshed %s: %d candles, last close %.8f", pair, frame.Len(), frame.LastClose())
	return frame, nil
}

// CachedFrame returns the most recently built frame for a pair, if any.
func (p *Provider) CachedFrame(pair string) (*Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.frames[pair]
	return f, ok
}

// GetLatestPrice returns the freshest known price for a pair, preferring
// the live stream over a REST call.
func (p *Provider) GetLatestPrice(pair string) (float64, error) {
	p.mu.RLock()
	stream := p.stream
	p.mu.RUnlock()

	if stream != nil {
		if price, ok := stream.LastPrice(pair); ok {
			return price, nil
		}
	}
	return p.client.GetPrice(pair)
}

// GetVolatility returns the trailing return volatility (percent) for a
// pair using its cached frame, refreshing the frame if needed.
func (p *Provider) GetVolatility(ctx context.Context, pair string) (float64, error) {
	frame, ok := p.CachedFrame(pair)
	if !ok {
		var err error
		frame, err = p.GetOHLCV(ctx, pair)
		if err != nil {
			return 0, err
		}
	}
	return frame.Volatility(p.params.VolatilityLookback), nil
}
