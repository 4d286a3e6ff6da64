package marketdata

import (
	"context"
	"errors"
	"testing"

	"nuanced_trader_go/exchange"

	"github.com/stretchr/testify/require"
)

// stubClient serves canned candles and prices and counts fetches.
type stubClient struct {
	candles    map[string][]exchange.Candle
	prices     map[string]float64
	fetchCount int
}

func (s *stubClient) SyncTime() error { return nil }

func (s *stubClient) FetchBalance(ctx context.Context) (*exchange.Balance, error) {
	return &exchange.Balance{Free: map[string]float64{}, Total: map[string]float64{}}, nil
}

func (s *stubClient) FetchOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	return nil, nil
}

func (s *stubClient) GetPrice(symbol string) (float64, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return price, nil
}

func (s *stubClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	s.fetchCount++
	candles, ok := s.candles[symbol]
	if !ok {
		return nil, errors.New("unknown pair")
	}
	return candles, nil
}

func (s *stubClient) CreateMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, amount float64) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (s *stubClient) CreateLimitOrder(ctx context.Context, symbol string, side exchange.OrderSide, amount, price float64) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (s *stubClient) CreateStopLossOrder(ctx context.Context, symbol string, side exchange.OrderSide, amount, stopPrice float64) (*exchange.Order, error) {
	return nil, errors.New("not supported")
}

func (s *stubClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return errors.New("not supported")
}

func testCandles(n int, start float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		candles[i] = exchange.Candle{
			OpenTime: int64(i) * 3_600_000,
			Open:     price,
			High:     price * 1.002,
			Low:      price * 0.998,
			Close:    price,
			Volume:   100,
		}
		price *= 1.001
	}
	return candles
}

func TestBuildFrameAlignsAllSeries(t *testing.T) {
	frame := BuildFrame("BTC/USDT", "1h", testCandles(120, 50000), DefaultParams())

	n := frame.Len()
	require.Equal(t, 120, n)
	for name, series := range map[string][]float64{
		"open":        frame.Open,
		"high":        frame.High,
		"low":         frame.Low,
		"volume":      frame.Volume,
		"sma_short":   frame.SMAShort,
		"sma_long":    frame.SMALong,
		"ema_short":   frame.EMAShort,
		"ema_long":    frame.EMALong,
		"rsi":         frame.RSI,
		"macd":        frame.MACD,
		"macd_signal": frame.MACDSignal,
		"macd_hist":   frame.MACDHist,
		"boll_upper":  frame.BollUpper,
		"boll_middle": frame.BollMiddle,
		"boll_lower":  frame.BollLower,
		"boll_width":  frame.BollWidth,
		"stoch_k":     frame.StochK,
		"stoch_d":     frame.StochD,
		"atr":         frame.ATR,
		"adx":         frame.ADX,
		"ichimoku_a":  frame.IchimokuA,
		"ichimoku_b":  frame.IchimokuB,
	} {
		require.Len(t, series, n, "series %s misaligned", name)
	}
	require.Len(t, frame.OpenTime, n)
}

func TestFrameLastClose(t *testing.T) {
	frame := BuildFrame("BTC/USDT", "1h", testCandles(10, 100), DefaultParams())
	require.InDelta(t, frame.Close[9], frame.LastClose(), 1e-12)

	empty := BuildFrame("BTC/USDT", "1h", nil, DefaultParams())
	require.Equal(t, 0.0, empty.LastClose())
}

func TestFrameVolatility(t *testing.T) {
	// Constant closes have zero return volatility.
	flat := &Frame{Close: []float64{100, 100, 100, 100}}
	require.Equal(t, 0.0, flat.Volatility(20))

	// Alternating +/-2% closes give roughly 2% volatility.
	closes := []float64{100}
	for i := 1; i < 60; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[i-1]*1.02)
		} else {
			closes = append(closes, closes[i-1]*0.98)
		}
	}
	choppy := &Frame{Close: closes}
	require.Greater(t, choppy.Volatility(20), 1.5)
}

func TestParamsFromStrategyOverlaysDefaults(t *testing.T) {
	p := ParamsFromStrategy(map[string]float64{
		"sma_short":       10,
		"ema_long":        30,
		"rsi_period":      7,
		"bollinger_std":   2.5,
		"unknown_setting": 99,
	})
	require.Equal(t, 10, p.SMAShort)
	require.Equal(t, 30, p.EMALong)
	require.Equal(t, 7, p.RSIPeriod)
	require.Equal(t, 2.5, p.BollingerStd)
	// Untouched fields keep their defaults.
	require.Equal(t, 50, p.SMALong)
	require.Equal(t, 20, p.BollingerPeriod)
}

func TestProviderGetOHLCVCachesFrame(t *testing.T) {
	client := &stubClient{candles: map[string][]exchange.Candle{
		"BTC/USDT": testCandles(60, 50000),
	}}
	p := NewProvider(client, []string{"BTC/USDT"}, "1h", 500, DefaultParams())

	_, ok := p.CachedFrame("BTC/USDT")
	require.False(t, ok)

	frame, err := p.GetOHLCV(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, 60, frame.Len())
	require.Equal(t, 1, client.fetchCount)

	cached, ok := p.CachedFrame("BTC/USDT")
	require.True(t, ok)
	require.Same(t, frame, cached)
}

func TestProviderGetOHLCVPropagatesErrors(t *testing.T) {
	client := &stubClient{candles: map[string][]exchange.Candle{}}
	p := NewProvider(client, []string{"BTC/USDT"}, "1h", 500, DefaultParams())

	_, err := p.GetOHLCV(context.Background(), "BTC/USDT")
	require.Error(t, err)
	require.Contains(t, err.Error(), "BTC/USDT")
}

func TestProviderGetLatestPriceFallsBackToREST(t *testing.T) {
	client := &stubClient{prices: map[string]float64{"BTC/USDT": 50123.45}}
	p := NewProvider(client, []string{"BTC/USDT"}, "1h", 500, DefaultParams())

	price, err := p.GetLatestPrice("BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, 50123.45, price)

	_, err = p.GetLatestPrice("DOGE/USDT")
	require.Error(t, err)
}

func TestProviderGetVolatilityUsesCache(t *testing.T) {
	client := &stubClient{candles: map[string][]exchange.Candle{
		"BTC/USDT": testCandles(60, 50000),
	}}
	p := NewProvider(client, []string{"BTC/USDT"}, "1h", 500, DefaultParams())

	// First call refreshes, second call reuses the cached frame.
	vol, err := p.GetVolatility(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.GreaterOrEqual(t, vol, 0.0)
	require.Equal(t, 1, client.fetchCount)

	_, err = p.GetVolatility(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Equal(t, 1, client.fetchCount)
}
