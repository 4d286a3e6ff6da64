package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newPaper(t *testing.T) *PaperClient {
	t.Helper()
	return NewPaperClient("USDT", 10000, []string{"BTC/USDT"})
}

func TestMarketSymbol(t *testing.T) {
	require.Equal(t, "BTCUSDT", MarketSymbol("BTC/USDT"))
	require.Equal(t, "ETHUSDT", MarketSymbol("ETHUSDT"))
}

func TestSplitPair(t *testing.T) {
	base, quote, ok := SplitPair("BTC/USDT")
	require.True(t, ok)
	require.Equal(t, "BTC", base)
	require.Equal(t, "USDT", quote)

	_, _, ok = SplitPair("BTCUSDT")
	require.False(t, ok)
	_, _, ok = SplitPair("/USDT")
	require.False(t, ok)
}

func TestPaperMarketBuyMovesBalances(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)

	order, err := c.CreateMarketOrder(context.Background(), "BTC/USDT", Buy, 0.1)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	require.Equal(t, 50000.0, order.Price)

	balance, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 5000.0, balance.Free["USDT"], 1e-6)
	require.InDelta(t, 0.1, balance.Free["BTC"], 1e-9)
}

func TestPaperMarketBuyInsufficientBalance(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)

	_, err := c.CreateMarketOrder(context.Background(), "BTC/USDT", Buy, 1.0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient")
}

func TestPaperMarketSellRequiresPosition(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)

	_, err := c.CreateMarketOrder(context.Background(), "BTC/USDT", Sell, 0.1)
	require.Error(t, err)

	c.SetBalance("BTC", 0.2)
	order, err := c.CreateMarketOrder(context.Background(), "BTC/USDT", Sell, 0.1)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)

	balance, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 15000.0, balance.Free["USDT"], 1e-6)
	require.InDelta(t, 0.1, balance.Free["BTC"], 1e-9)
}

func TestPaperLimitOrderRestsUntilCrossed(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)

	order, err := c.CreateLimitOrder(context.Background(), "BTC/USDT", Buy, 0.1, 49000)
	require.NoError(t, err)
	require.Equal(t, StatusNew, order.Status)

	open, err := c.FetchOpenOrders(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, open, 1)

	// Price crosses the limit: order fills.
	c.SetPrice("BTC/USDT", 48500)
	open, err = c.FetchOpenOrders(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.Empty(t, open)

	balance, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 0.1, balance.Free["BTC"], 1e-9)
}

func TestPaperCancelReleasesFunds(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)

	order, err := c.CreateLimitOrder(context.Background(), "BTC/USDT", Buy, 0.1, 49000)
	require.NoError(t, err)

	balance, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 10000.0-4900.0, balance.Free["USDT"], 1e-6)

	require.NoError(t, c.CancelOrder(context.Background(), "BTC/USDT", order.ID))

	balance, err = c.FetchBalance(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 10000.0, balance.Free["USDT"], 1e-6)

	require.Error(t, c.CancelOrder(context.Background(), "BTC/USDT", order.ID))
}

func TestPaperStopLossTriggers(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)
	c.SetBalance("BTC", 0.1)

	order, err := c.CreateStopLossOrder(context.Background(), "BTC/USDT", Sell, 0.1, 48000)
	require.NoError(t, err)
	require.Equal(t, StatusNew, order.Status)

	// Still resting above the trigger.
	c.SetPrice("BTC/USDT", 49000)
	open, _ := c.FetchOpenOrders(context.Background(), "")
	require.Len(t, open, 1)

	// Trigger crossed.
	c.SetPrice("BTC/USDT", 47500)
	open, _ = c.FetchOpenOrders(context.Background(), "")
	require.Empty(t, open)
}

func TestPaperFetchOHLCVEndsAtLivePrice(t *testing.T) {
	c := newPaper(t)
	c.SetPrice("BTC/USDT", 50000)

	candles, err := c.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 100)
	require.NoError(t, err)
	require.Len(t, candles, 100)
	require.InDelta(t, 50000.0, candles[99].Close, 1e-6)
	for _, candle := range candles {
		require.GreaterOrEqual(t, candle.High, candle.Low)
		require.Positive(t, candle.Volume)
	}

	_, err = c.FetchOHLCV(context.Background(), "XRP/USDT", "1h", 10)
	require.Error(t, err)
}

func TestPaperGetPriceUnknownPair(t *testing.T) {
	c := newPaper(t)
	_, err := c.GetPrice("DOGE/USDT")
	require.Error(t, err)
}
