package risk

import (
	"context"
	"testing"

	"nuanced_trader_go/exchange"
	"nuanced_trader_go/signal"

	"github.com/stretchr/testify/require"
)

func TestFixedStopLossAndTakeProfit(t *testing.T) {
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, testRiskConfig(), client)

	sig, err := signal.New("BTC/USDT", signal.Buy, 1)
	require.NoError(t, err)

	mgr.applyStopLoss(context.Background(), sig, 50000)
	require.InDelta(t, 47500.0, sig.StopLoss, 1e-6) // 5% below

	mgr.applyTakeProfit(context.Background(), sig, 50000)
	require.NotNil(t, sig.TakeProfit)
	require.False(t, sig.TakeProfit.IsScaled())
	require.InDelta(t, 55000.0, sig.TakeProfit.Single(), 1e-6) // 10% above
}

func TestFixedExitsMirrorForSell(t *testing.T) {
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, testRiskConfig(), client)

	sig, err := signal.New("BTC/USDT", signal.Sell, 1)
	require.NoError(t, err)

	mgr.applyStopLoss(context.Background(), sig, 50000)
	require.InDelta(t, 52500.0, sig.StopLoss, 1e-6) // 5% above

	mgr.applyTakeProfit(context.Background(), sig, 50000)
	require.InDelta(t, 45000.0, sig.TakeProfit.Single(), 1e-6) // 10% below
}

func TestStrategyProvidedStopIsKept(t *testing.T) {
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, testRiskConfig(), client)

	sig := buySignal(t, "BTC/USDT", 48123.45)
	mgr.applyStopLoss(context.Background(), sig, 50000)
	require.Equal(t, 48123.45, sig.StopLoss)
}

func TestTrailingStopMarksSignal(t *testing.T) {
	cfg := testRiskConfig()
	cfg.StopLoss.Type = "trailing"
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, cfg, client)

	sig, err := signal.New("BTC/USDT", signal.Buy, 1)
	require.NoError(t, err)

	mgr.applyStopLoss(context.Background(), sig, 50000)
	require.True(t, sig.Trailing)
	require.InDelta(t, 47500.0, sig.StopLoss, 1e-6)
}

func TestATRStopLoss(t *testing.T) {
	cfg := testRiskConfig()
	cfg.StopLoss.Type = "atr"
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, cfg, client)

	sig, err := signal.New("BTC/USDT", signal.Buy, 1)
	require.NoError(t, err)

	mgr.applyStopLoss(context.Background(), sig, 50000)
	// Flat candles with a 0.2% range give ATR = 100, multiplier 2.
	require.InDelta(t, 49800.0, sig.StopLoss, 1.0)
}

func TestScaledTakeProfitLevels(t *testing.T) {
	cfg := testRiskConfig()
	cfg.TakeProfit.Type = "scaled"
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, cfg, client)

	sig, err := signal.New("BTC/USDT", signal.Buy, 1)
	require.NoError(t, err)

	mgr.applyTakeProfit(context.Background(), sig, 50000)
	require.True(t, sig.TakeProfit.IsScaled())
	require.Equal(t, []float64{52500, 55000, 60000}, sig.TakeProfit.Scaled())
}

func TestAdaptiveTakeProfitFloor(t *testing.T) {
	cfg := testRiskConfig()
	cfg.TakeProfit.Type = "adaptive"
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, cfg, client)

	sig, err := signal.New("BTC/USDT", signal.Buy, 1)
	require.NoError(t, err)

	// Flat closes have near-zero volatility, so the 5% floor applies.
	mgr.applyTakeProfit(context.Background(), sig, 50000)
	require.InDelta(t, 52500.0, sig.TakeProfit.Single(), 1e-6)
}

func TestDisabledExitsLeaveSignalUntouched(t *testing.T) {
	cfg := testRiskConfig()
	cfg.StopLoss.Enabled = false
	cfg.TakeProfit.Enabled = false
	client := &fakeClient{
		balance: &exchange.Balance{Total: map[string]float64{"USDT": 10000}},
		prices:  map[string]float64{"BTC/USDT": 50000},
		candles: map[string][]exchange.Candle{"BTC/USDT": flatCandles(60, 50000)},
	}
	mgr := newTestManager(t, cfg, client)

	sig, err := signal.New("BTC/USDT", signal.Buy, 1)
	require.NoError(t, err)

	mgr.applyStopLoss(context.Background(), sig, 50000)
	mgr.applyTakeProfit(context.Background(), sig, 50000)
	require.Zero(t, sig.StopLoss)
	require.Nil(t, sig.TakeProfit)
}
