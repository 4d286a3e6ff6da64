package perf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharpeRatioZeroCases(t *testing.T) {
	require.Equal(t, 0.0, SharpeRatio(nil, 0, AnnualizationFactor))
	require.Equal(t, 0.0, SharpeRatio([]float64{0.01}, 0, AnnualizationFactor))
	// Zero variance.
	require.Equal(t, 0.0, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0, AnnualizationFactor))
}

func TestSharpeRatioKnownValue(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.02, 0.005}
	mean := (0.01 - 0.01 + 0.02 + 0.005) / 4
	// Sample std dev of the series.
	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / 3)
	want := mean / std * math.Sqrt(252)
	require.InDelta(t, want, SharpeRatio(returns, 0, 252), 1e-9)
}

func TestSortinoRatio(t *testing.T) {
	// No negative returns is a perfect score.
	require.True(t, math.IsInf(SortinoRatio([]float64{0.01, 0.02}, 0, 252), 1))

	got := SortinoRatio([]float64{0.02, -0.01, 0.03, -0.02}, 0, 252)
	require.False(t, math.IsInf(got, 0))
	require.False(t, math.IsNaN(got))
}

func TestMaxDrawdown(t *testing.T) {
	require.Equal(t, 0.0, MaxDrawdown(nil))
	require.Equal(t, 0.0, MaxDrawdown([]float64{100, 110, 120}))

	// Peak 120 to trough 90 is a 25% drawdown.
	curve := []float64{100, 120, 90, 110, 105}
	require.InDelta(t, 0.25, MaxDrawdown(curve), 1e-9)
}

func TestWinRate(t *testing.T) {
	require.Equal(t, 0.0, WinRate(nil))

	trades := []TradeOutcome{
		{ProfitLoss: 10},
		{ProfitLoss: -5},
		{ProfitLoss: 20},
		{ProfitLoss: -10},
	}
	require.Equal(t, 0.5, WinRate(trades))
}

func TestProfitFactor(t *testing.T) {
	trades := []TradeOutcome{
		{ProfitLoss: 30},
		{ProfitLoss: -10},
		{ProfitLoss: -5},
	}
	require.InDelta(t, 2.0, ProfitFactor(trades), 1e-9)

	// No losing trades.
	require.True(t, math.IsInf(ProfitFactor([]TradeOutcome{{ProfitLoss: 10}}), 1))
}

func TestExpectancy(t *testing.T) {
	// 50% win rate, avg win 20, avg loss -10: 0.5*2 - 0.5 = 0.5.
	trades := []TradeOutcome{
		{ProfitLoss: 20},
		{ProfitLoss: -10},
	}
	require.InDelta(t, 0.5, Expectancy(trades), 1e-9)
}

func TestSummarize(t *testing.T) {
	trades := []TradeOutcome{
		{ProfitLoss: 100, EntryTime: 0, ExitTime: 7_200_000},    // 2h hold
		{ProfitLoss: -50, EntryTime: 0, ExitTime: 14_400_000},   // 4h hold
		{ProfitLoss: 150, EntryTime: 0, ExitTime: 10_800_000},   // 3h hold
	}
	curve := []float64{10000, 10100, 10050, 10200}

	summary := Summarize(trades, curve)
	require.Equal(t, 3, summary.TotalTrades)
	require.Equal(t, 2, summary.WinningTrades)
	require.Equal(t, 1, summary.LosingTrades)
	require.InDelta(t, 2.0/3.0, summary.WinRate, 1e-9)
	require.InDelta(t, 5.0, summary.ProfitFactor, 1e-9) // 250 / 50
	require.InDelta(t, 0.02, summary.TotalReturn, 1e-9)
	require.InDelta(t, 3.0, summary.AvgHoldingTimeHours, 1e-9)
	require.InDelta(t, 125.0, summary.AvgWin, 1e-9)
	require.InDelta(t, -50.0, summary.AvgLoss, 1e-9)
}

func TestSummarizeEquityCurveWithoutTrades(t *testing.T) {
	summary := Summarize(nil, []float64{10000, 10100, 10050})
	require.Equal(t, 0, summary.TotalTrades)
	require.InDelta(t, 0.005, summary.TotalReturn, 1e-9)
	require.InDelta(t, 50.0/10100.0, summary.MaxDrawdown, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil, nil)
	require.Equal(t, 0, summary.TotalTrades)
	require.Equal(t, 0.0, summary.WinRate)
}
