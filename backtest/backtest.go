// backtest/backtest.go
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"nuanced_trader_go/config"
	"nuanced_trader_go/exchange"
	"nuanced_trader_go/logs"
	"nuanced_trader_go/marketdata"
	"nuanced_trader_go/perf"
	"nuanced_trader_go/risk"
	"nuanced_trader_go/signal"
	"nuanced_trader_go/strategy"
	"nuanced_trader_go/utils"

	"github.com/google/uuid"
)

const (
	// DefaultInitialCapital is the starting quote balance of a run.
	DefaultInitialCapital = 10000.0

	// feeRate is the assumed taker fee applied to every fill.
	feeRate = 0.001

	// warmupBars are skipped at the start of a run so indicator values
	// have settled before the first entry.
	warmupBars = 50
)

// Trade statuses.
const (
	StatusOpen       = "open"
	StatusClosed     = "closed"
	StatusStoppedOut = "stopped_out"
	StatusTakeProfit = "take_profit"
)

// TradeResult records one simulated round trip.
type TradeResult struct {
	TradeID       string    `json:"trade_id"`
	Pair          string    `json:"pair"`
	EntryTime     int64     `json:"entry_time"`
	ExitTime      int64     `json:"exit_time,omitempty"`
	EntryPrice    float64   `json:"entry_price"`
	ExitPrice     float64   `json:"exit_price,omitempty"`
	Action        string    `json:"action"`
	Amount        float64   `json:"amount"`
	ProfitLoss    float64   `json:"profit_loss"`
	ProfitLossPct float64   `json:"profit_loss_pct"`
	Status        string    `json:"status"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    []float64 `json:"take_profit,omitempty"`
}

// Close finalizes the trade at exitPrice and returns its profit or loss
// net of fees on both fills.
func (t *TradeResult) Close(exitTime int64, exitPrice float64, status string) float64 {
	t.ExitTime = exitTime
	t.ExitPrice = exitPrice
	t.Status = status

	if t.Action == string(signal.Buy) {
		t.ProfitLoss = (exitPrice - t.EntryPrice) * t.Amount
		t.ProfitLossPct = (exitPrice/t.EntryPrice - 1) * 100
	} else {
		t.ProfitLoss = (t.EntryPrice - exitPrice) * t.Amount
		t.ProfitLossPct = (t.EntryPrice/exitPrice - 1) * 100
	}
	t.ProfitLoss -= (t.EntryPrice + exitPrice) * t.Amount * feeRate
	return t.ProfitLoss
}

// Result aggregates everything a backtest run produced.
type Result struct {
	StrategyName   string             `json:"strategy_name"`
	StrategyParams map[string]float64 `json:"strategy_params"`
	StartTime      int64              `json:"start_time"`
	EndTime        int64              `json:"end_time"`
	InitialCapital float64            `json:"initial_capital"`
	FinalEquity    float64            `json:"final_equity"`
	Trades         []*TradeResult     `json:"trades"`
	EquityCurve    []float64          `json:"equity_curve"`
	Performance    perf.Summary       `json:"performance"`
}

// GenerateReport writes the result as an indented JSON file under
// outputDir and returns the file path.
func (r *Result) GenerateReport(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.json", r.StrategyName, time.Now().Format("20060102_150405"))
	reportPath := filepath.Join(outputDir, filename)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return reportPath, nil
}

// Backtester replays a strategy over historical candles, sizing every
// entry with the configured risk method and simulating stop-losses and
// take-profits bar by bar.
type Backtester struct {
	strat          strategy.Strategy
	sizer          risk.Sizer
	params         marketdata.Params
	strategyParams map[string]float64
	timeframe      string
	initialCapital float64

	balance   float64
	openTrade map[string]*TradeResult // at most one open trade per pair
}

// New creates a backtester for the given strategy. Strategy signal
// amounts are placeholders; every entry is re-sized with riskCfg's
// position sizing method against the simulated balance, exactly as the
// risk manager does in live trading. A nil riskCfg uses the default
// risk configuration.
func New(strat strategy.Strategy, riskCfg *config.RiskConfig, strategyParams map[string]float64, timeframe string, initialCapital float64) (*Backtester, error) {
	if initialCapital <= 0 {
		initialCapital = DefaultInitialCapital
	}
	if riskCfg == nil {
		riskCfg = config.NewConfig().Risk
	}
	sizer, err := risk.NewSizer(riskCfg, nil)
	if err != nil {
		return nil, err
	}
	return &Backtester{
		strat:          strat,
		sizer:          sizer,
		params:         marketdata.ParamsFromStrategy(strategyParams),
		strategyParams: strategyParams,
		timeframe:      timeframe,
		initialCapital: initialCapital,
		openTrade:      make(map[string]*TradeResult),
	}, nil
}

// Run replays all pairs' candles and returns the aggregated result.
// Candles for each pair must be in chronological order.
func (b *Backtester) Run(ctx context.Context, candlesByPair map[string][]exchange.Candle) (*Result, error) {
	if len(candlesByPair) == 0 {
		return nil, fmt.Errorf("no candle data provided")
	}

	b.balance = b.initialCapital
	b.openTrade = make(map[string]*TradeResult)

	result := &Result{
		StrategyName:   b.strat.Name(),
		StrategyParams: b.strategyParams,
		InitialCapital: b.initialCapital,
		EquityCurve:    []float64{b.initialCapital},
	}

	for pair, candles := range candlesByPair {
		if len(candles) <= warmupBars {
			logs.Warnf("Skipping %s: only %d candles, need more than %d", pair, len(candles), warmupBars)
			continue
		}
		if result.StartTime == 0 || candles[0].OpenTime < result.StartTime {
			result.StartTime = candles[0].OpenTime
		}
		if last := candles[len(candles)-1].OpenTime; last > result.EndTime {
			result.EndTime = last
		}

		trades := b.replayPair(ctx, pair, candles, result)
		result.Trades = append(result.Trades, trades...)
	}

	result.FinalEquity = b.balance
	result.Performance = perf.Summarize(toOutcomes(result.Trades), result.EquityCurve)

	logs.Infof("Backtest complete: %d trades, final equity %.2f (%.2f%% return)",
		len(result.Trades), result.FinalEquity, result.Performance.TotalReturnPct)
	return result, nil
}

// replayPair walks one pair's candles, feeding each prefix frame to the
// strategy and managing the pair's open trade.
func (b *Backtester) replayPair(ctx context.Context, pair string, candles []exchange.Candle, result *Result) []*TradeResult {
	closed := make([]*TradeResult, 0)

	for i := warmupBars; i < len(candles); i++ {
		bar := candles[i]

		if open, ok := b.openTrade[pair]; ok {
			if trade, done := b.checkExits(open, bar); done {
				closed = append(closed, trade)
				delete(b.openTrade, pair)
				result.EquityCurve = append(result.EquityCurve, b.balance)
			}
			continue
		}

		frame := marketdata.BuildFrame(pair, b.timeframe, candles[:i+1], b.params)
		signals, err := b.strat.Analyze(frame)
		if err != nil {
			logs.Errorf("Strategy error for %s at bar %d: %v", pair, i, err)
			continue
		}
		for _, sig := range signals {
			b.openPosition(ctx, sig, bar, frame)
		}
	}

	// Force-close anything still open at the last bar.
	if open, ok := b.openTrade[pair]; ok {
		last := candles[len(candles)-1]
		b.balance += open.Close(last.OpenTime, last.Close, StatusClosed)
		closed = append(closed, open)
		delete(b.openTrade, pair)
		result.EquityCurve = append(result.EquityCurve, b.balance)
	}
	return closed
}

func (b *Backtester) openPosition(ctx context.Context, sig *signal.Signal, bar exchange.Candle, frame *marketdata.Frame) {
	if sig.StopLoss == 0 {
		// Same default the risk manager derives when the strategy
		// supplies no stop: trailing volatility, at least 2% away.
		pct := math.Max(0.02, frame.Volatility(b.params.VolatilityLookback)/100)
		if sig.Action == signal.Buy {
			sig.StopLoss = utils.Round8(bar.Close * (1 - pct))
		} else {
			sig.StopLoss = utils.Round8(bar.Close * (1 + pct))
		}
	}

	sizing, err := b.sizer.Size(ctx, sig, bar.Close, b.balance)
	if err != nil {
		logs.Warnf("Skipping %s signal for %s: sizing failed: %v", sig.Action, sig.Pair, err)
		return
	}
	sig.Amount = sizing.Amount
	sig.PositionValue = sizing.PositionValue
	sig.RiskAmount = sizing.RiskAmount
	sig.RiskPercent = sizing.RiskPercent
	sig.SizingMethod = sizing.Method

	cost := sig.Amount * bar.Close
	if sig.Action == signal.Buy && cost > b.balance {
		logs.Warnf("Insufficient balance for buy on %s: %.2f > %.2f", sig.Pair, cost, b.balance)
		return
	}

	trade := &TradeResult{
		TradeID:    uuid.NewString(),
		Pair:       sig.Pair,
		EntryTime:  bar.OpenTime,
		EntryPrice: bar.Close,
		Action:     string(sig.Action),
		Amount:     utils.Round8(sig.Amount),
		Status:     StatusOpen,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit.Levels(),
	}
	b.openTrade[sig.Pair] = trade
	logs.Debugf("Opened %s %s: %.8f @ %.8f", trade.Action, trade.Pair, trade.Amount, trade.EntryPrice)
}

// checkExits closes the trade if the bar's range crossed its stop-loss
// or first take-profit target. Stops are checked before targets.
func (b *Backtester) checkExits(trade *TradeResult, bar exchange.Candle) (*TradeResult, bool) {
	isBuy := trade.Action == string(signal.Buy)

	if trade.StopLoss > 0 {
		stopped := (isBuy && bar.Low <= trade.StopLoss) || (!isBuy && bar.High >= trade.StopLoss)
		if stopped {
			b.balance += trade.Close(bar.OpenTime, trade.StopLoss, StatusStoppedOut)
			return trade, true
		}
	}

	if len(trade.TakeProfit) > 0 {
		target := trade.TakeProfit[0]
		reached := (isBuy && bar.High >= target) || (!isBuy && bar.Low <= target)
		if reached {
			b.balance += trade.Close(bar.OpenTime, target, StatusTakeProfit)
			return trade, true
		}
	}
	return trade, false
}

func toOutcomes(trades []*TradeResult) []perf.TradeOutcome {
	outcomes := make([]perf.TradeOutcome, len(trades))
	for i, t := range trades {
		outcomes[i] = perf.TradeOutcome{
			ProfitLoss: t.ProfitLoss,
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
		}
	}
	return outcomes
}
