// perf/metrics.go
package perf

import (
	"math"

	"nuanced_trader_go/utils"
)

// AnnualizationFactor is the default number of trading periods per year
// used to annualize risk-adjusted ratios.
const AnnualizationFactor = 252

// TradeOutcome is the minimal view of a closed trade the metrics need.
type TradeOutcome struct {
	ProfitLoss   float64
	EntryTime    int64 // unix milliseconds
	ExitTime     int64
}

// SharpeRatio computes the annualized Sharpe ratio of period returns.
// Fewer than two returns, or zero variance, yield 0.
func SharpeRatio(returns []float64, riskFreeRate float64, annualizationFactor int) float64 {
	if len(returns) < 2 {
		return 0
	}
	std := utils.SampleStdDev(returns)
	if std == 0 {
		return 0
	}
	periodSharpe := (utils.Mean(returns) - riskFreeRate) / std
	return periodSharpe * math.Sqrt(float64(annualizationFactor))
}

// SortinoRatio computes the annualized Sortino ratio, penalizing only
// downside deviation. No negative returns yields +Inf.
func SortinoRatio(returns []float64, riskFreeRate float64, annualizationFactor int) float64 {
	if len(returns) < 2 {
		return 0
	}
	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return math.Inf(1)
	}
	deviation := utils.SampleStdDev(downside)
	if deviation == 0 {
		return 0
	}
	periodSortino := (utils.Mean(returns) - riskFreeRate) / deviation
	return periodSortino * math.Sqrt(float64(annualizationFactor))
}

// MaxDrawdown returns the largest peak-to-trough equity decline as a
// fraction in [0, 1].
func MaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0
	}
	runningMax := equityCurve[0]
	maxDrawdown := 0.0
	for _, equity := range equityCurve {
		if equity > runningMax {
			runningMax = equity
		}
		if runningMax > 0 {
			drawdown := (runningMax - equity) / runningMax
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}
	return maxDrawdown
}

// WinRate returns the fraction of trades with a positive outcome.
func WinRate(trades []TradeOutcome) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.ProfitLoss > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitFactor returns gross profits over gross losses. No losing
// trades yields +Inf; no trades yields 0.
func ProfitFactor(trades []TradeOutcome) float64 {
	if len(trades) == 0 {
		return 0
	}
	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		if t.ProfitLoss > 0 {
			grossProfit += t.ProfitLoss
		} else if t.ProfitLoss < 0 {
			grossLoss += -t.ProfitLoss
		}
	}
	if grossLoss == 0 {
		return math.Inf(1)
	}
	return grossProfit / grossLoss
}

// Expectancy returns the expected R-multiple per trade:
// winRate * (avgWin/avgLoss) - (1 - winRate).
func Expectancy(trades []TradeOutcome) float64 {
	if len(trades) == 0 {
		return 0
	}
	winRate := WinRate(trades)
	avgWin, avgLoss := averageWinLoss(trades)

	rRatio := 0.0
	if avgLoss != 0 {
		rRatio = math.Abs(avgWin / avgLoss)
	}
	return winRate*rRatio - (1 - winRate)
}

func averageWinLoss(trades []TradeOutcome) (avgWin, avgLoss float64) {
	wins := make([]float64, 0, len(trades))
	losses := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.ProfitLoss > 0 {
			wins = append(wins, t.ProfitLoss)
		} else if t.ProfitLoss < 0 {
			losses = append(losses, t.ProfitLoss)
		}
	}
	if len(wins) > 0 {
		avgWin = utils.Mean(wins)
	}
	if len(losses) > 0 {
		avgLoss = utils.Mean(losses)
	}
	return avgWin, avgLoss
}

// Summary aggregates the performance metrics of a trade list plus the
// equity curve it produced.
type Summary struct {
	TotalTrades         int     `json:"total_trades"`
	WinningTrades       int     `json:"winning_trades"`
	LosingTrades        int     `json:"losing_trades"`
	WinRate             float64 `json:"win_rate"`
	ProfitFactor        float64 `json:"profit_factor"`
	TotalReturn         float64 `json:"total_return"`
	TotalReturnPct      float64 `json:"total_return_pct"`
	CAGR                float64 `json:"cagr"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	AvgProfit           float64 `json:"avg_profit"`
	AvgWin              float64 `json:"avg_win"`
	AvgLoss             float64 `json:"avg_loss"`
	AvgHoldingTimeHours float64 `json:"avg_holding_time_hours"`
	Expectancy          float64 `json:"expectancy"`
}

// Summarize computes the full metric set for a backtest or live session.
func Summarize(trades []TradeOutcome, equityCurve []float64) Summary {
	summary := Summary{TotalTrades: len(trades)}
	if len(equityCurve) == 0 {
		return summary
	}

	if len(trades) > 0 {
		for _, t := range trades {
			if t.ProfitLoss > 0 {
				summary.WinningTrades++
			} else if t.ProfitLoss < 0 {
				summary.LosingTrades++
			}
		}
		summary.WinRate = WinRate(trades)
		summary.ProfitFactor = ProfitFactor(trades)
		summary.Expectancy = Expectancy(trades)

		profits := make([]float64, len(trades))
		holdingHours := make([]float64, 0, len(trades))
		for i, t := range trades {
			profits[i] = t.ProfitLoss
			if t.EntryTime > 0 && t.ExitTime > t.EntryTime {
				holdingHours = append(holdingHours, float64(t.ExitTime-t.EntryTime)/3_600_000.0)
			}
		}
		summary.AvgProfit = utils.Mean(profits)
		summary.AvgWin, summary.AvgLoss = averageWinLoss(trades)
		if len(holdingHours) > 0 {
			summary.AvgHoldingTimeHours = utils.Mean(holdingHours)
		}
	}

	if len(equityCurve) >= 2 && equityCurve[0] > 0 {
		summary.TotalReturn = equityCurve[len(equityCurve)-1]/equityCurve[0] - 1
		summary.TotalReturnPct = summary.TotalReturn * 100
		summary.CAGR = math.Pow(equityCurve[len(equityCurve)-1]/equityCurve[0],
			float64(AnnualizationFactor)/float64(len(equityCurve))) - 1
	}
	summary.MaxDrawdown = MaxDrawdown(equityCurve)
	summary.MaxDrawdownPct = summary.MaxDrawdown * 100

	returns := make([]float64, 0, len(equityCurve))
	for i := 1; i < len(equityCurve); i++ {
		if equityCurve[i-1] > 0 {
			returns = append(returns, equityCurve[i]/equityCurve[i-1]-1)
		}
	}
	summary.SharpeRatio = SharpeRatio(returns, 0, AnnualizationFactor)
	summary.SortinoRatio = SortinoRatio(returns, 0, AnnualizationFactor)

	return summary
}
