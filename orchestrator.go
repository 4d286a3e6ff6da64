// orchestrator.go
package main

import (
	"context"
	"fmt"
	"time"

	"nuanced_trader_go/config"
	"nuanced_trader_go/exchange"
	"nuanced_trader_go/logs"
	"nuanced_trader_go/marketdata"
	"nuanced_trader_go/monitor"
	"nuanced_trader_go/notify"
	"nuanced_trader_go/perf"
	"nuanced_trader_go/risk"
	"nuanced_trader_go/signal"
	"nuanced_trader_go/strategy"
)

// Orchestrator owns the trading loop: it wires the exchange client,
// market data, strategy, risk manager, and notification channels, and
// runs one analysis cycle per candle interval.
type Orchestrator struct {
	cfg      *config.Config
	client   exchange.Client
	paper    *exchange.PaperClient // non-nil in paper mode, for Start/Stop
	data     *marketdata.Provider
	stream   *marketdata.PriceStream
	strat    strategy.Strategy
	riskMgr  *risk.Manager
	notifier *notify.Notifier
	mon      *monitor.Server

	cycleInterval time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}

	tradesToday int
	summaryDay  int
	equityCurve []float64 // portfolio value per cycle, reset daily
}

// NewOrchestrator builds the full component graph from configuration.
func NewOrchestrator(cfg *config.Config, env *config.EnvConfig) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:      cfg,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	interval, ok := config.TimeframeDuration(cfg.Exchange.Timeframe)
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe: %s", cfg.Exchange.Timeframe)
	}
	o.cycleInterval = interval

	if cfg.Exchange.PaperTrading {
		paper := exchange.NewPaperClient(cfg.Exchange.QuoteCurrency, 10000.0, cfg.Exchange.TradingPairs)
		o.client = paper
		o.paper = paper
		logs.Info("Running in paper trading mode with a simulated exchange.")
	} else {
		o.client = exchange.NewAPIClient(env.APIKey, env.APISecret, env.BaseURL, 15*time.Second)
		if err := o.client.SyncTime(); err != nil {
			return nil, fmt.Errorf("failed to sync exchange time: %w", err)
		}
	}

	params := marketdata.ParamsFromStrategy(cfg.Strategy.Parameters)
	o.data = marketdata.NewProvider(o.client, cfg.Exchange.TradingPairs, cfg.Exchange.Timeframe, cfg.General.MaxCandles, params)

	if cfg.Exchange.StreamURL != "" && !cfg.Exchange.PaperTrading {
		o.stream = marketdata.NewPriceStream(cfg.Exchange.StreamURL, cfg.Exchange.TradingPairs)
		o.data.AttachStream(o.stream)
	}

	strat, err := strategy.New(cfg.Strategy.Name, cfg.Strategy.Parameters)
	if err != nil {
		return nil, err
	}
	o.strat = strat

	riskMgr, err := risk.NewManager(cfg.Risk, o.client, o.data, cfg.Exchange.QuoteCurrency)
	if err != nil {
		return nil, err
	}
	o.riskMgr = riskMgr

	o.notifier = notify.NewNotifier(cfg.Notifications, env)

	if cfg.Monitor != nil && cfg.Monitor.Enabled {
		o.mon = monitor.NewServer(cfg.Monitor.ListenAddress, o.tradingMode(), cfg.Exchange.TradingPairs)
	}

	return o, nil
}

func (o *Orchestrator) tradingMode() string {
	switch {
	case o.cfg.General.DryRun:
		return "dry_run"
	case o.cfg.Exchange.PaperTrading:
		return "paper_trading"
	default:
		return "live_trading"
	}
}

// Start launches the trading loop in the background.
func (o *Orchestrator) Start() {
	go o.Run(context.Background())
}

// Run starts all components and blocks in the cycle loop until Stop.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.doneChan)

	if o.paper != nil {
		o.paper.Start()
	}
	if o.stream != nil {
		o.stream.Start()
	}
	if o.mon != nil {
		o.mon.Start()
		o.mon.SetOnline(true)
	}
	o.summaryDay = time.Now().YearDay()

	logs.Infof("Trading loop started: %d pairs on %s (%s mode)",
		len(o.cfg.Exchange.TradingPairs), o.cfg.Exchange.Timeframe, o.tradingMode())

	// First cycle immediately, then one per candle interval.
	o.runCycle(ctx)

	ticker := time.NewTicker(o.cycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runCycle(ctx)
			o.maybeSendDailySummary()
		}
	}
}

// Stop shuts the loop and all components down.
func (o *Orchestrator) Stop() {
	close(o.stopChan)
	<-o.doneChan

	if o.stream != nil {
		o.stream.Stop()
	}
	if o.paper != nil {
		o.paper.Stop()
	}
	if o.mon != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.mon.Shutdown(shutdownCtx); err != nil {
			logs.Errorf("Monitor shutdown error: %v", err)
		}
	}
	logs.Info("Trading loop stopped.")
}

// runCycle performs one full analyze/risk/execute pass over all pairs.
// Failures on one pair never abort the rest of the cycle.
func (o *Orchestrator) runCycle(ctx context.Context) {
	cycleStart := time.Now()
	generated := make([]*signal.Signal, 0)

	for _, pair := range o.cfg.Exchange.TradingPairs {
		frame, err := o.data.GetOHLCV(ctx, pair)
		if err != nil {
			logs.Errorf("Failed to refresh market data for %s: %v", pair, err)
			monitor.CycleErrors.Inc()
			continue
		}
		signals, err := o.strat.Analyze(frame)
		if err != nil {
			logs.Errorf("Error generating signal for %s: %v", pair, err)
			monitor.CycleErrors.Inc()
			continue
		}
		for _, sig := range signals {
			monitor.SignalsGenerated.WithLabelValues(sig.Pair).Inc()
		}
		generated = append(generated, signals...)
	}

	valid := signal.Filter(generated, func(s *signal.Signal, err error) {
		logs.Warnf("Dropping invalid signal for %s: %v", s.Pair, err)
	})

	approved := o.riskMgr.ApplyRiskManagement(ctx, valid)
	monitor.SignalsRejected.Add(float64(len(valid) - len(approved)))
	for _, sig := range approved {
		monitor.SignalsApproved.WithLabelValues(sig.Pair).Inc()
		o.executeSignal(ctx, sig)
	}

	monitor.CyclesTotal.Inc()
	monitor.PortfolioValue.Set(o.riskMgr.PortfolioValue())
	o.equityCurve = append(o.equityCurve, o.riskMgr.PortfolioValue())
	if o.mon != nil {
		o.mon.Touch()
		if regimeSource, ok := o.strat.(interface{ Regimes() map[string]signal.Regime }); ok {
			o.mon.SetRegimes(regimeSource.Regimes())
		}
	}

	logs.Infof("Cycle complete in %s: %d generated, %d approved",
		time.Since(cycleStart).Round(time.Millisecond), len(generated), len(approved))
}

// executeSignal places the entry order plus its protective orders. In
// dry-run mode the orders are logged but never sent.
func (o *Orchestrator) executeSignal(ctx context.Context, sig *signal.Signal) {
	if o.cfg.General.DryRun {
		logs.Infof("[Dry Run] Would execute %s %s: amount %.8f, SL %.8f, TP %s",
			sig.Action, sig.Pair, sig.Amount, sig.StopLoss, sig.TakeProfit)
		if o.mon != nil {
			o.mon.AddActivity(fmt.Sprintf("Dry run: %s %s (%s)", sig.Action, sig.Pair, sig.Reason), "info")
		}
		return
	}

	side := exchange.Buy
	if sig.Action == signal.Sell {
		side = exchange.Sell
	}

	order, err := o.client.CreateMarketOrder(ctx, sig.Pair, side, sig.Amount)
	if err != nil {
		logs.Errorf("Failed to execute %s for %s: %v", sig.Action, sig.Pair, err)
		o.notifier.SendError(err.Error(), fmt.Sprintf("order execution for %s", sig.Pair))
		monitor.CycleErrors.Inc()
		return
	}
	monitor.OrdersPlaced.WithLabelValues(string(side)).Inc()
	o.tradesToday++

	logs.Infof("Executed %s %s: %.8f @ %.8f (%s)", sig.Action, sig.Pair, order.Amount, order.Price, sig.Reason)
	o.notifier.SendTrade(sig, order.Price)
	if o.mon != nil {
		o.mon.AddActivity(fmt.Sprintf("Executed %s %s (%s)", sig.Action, sig.Pair, sig.Reason), "trade")
	}

	o.placeProtectiveOrders(ctx, sig, side)
}

// placeProtectiveOrders attaches the stop-loss and take-profit orders
// for a filled entry. Exit orders take the opposite side.
func (o *Orchestrator) placeProtectiveOrders(ctx context.Context, sig *signal.Signal, entrySide exchange.OrderSide) {
	exitSide := exchange.Sell
	if entrySide == exchange.Sell {
		exitSide = exchange.Buy
	}

	if sig.StopLoss > 0 {
		if _, err := o.client.CreateStopLossOrder(ctx, sig.Pair, exitSide, sig.Amount, sig.StopLoss); err != nil {
			logs.Errorf("Failed to place stop-loss for %s: %v", sig.Pair, err)
		} else {
			monitor.OrdersPlaced.WithLabelValues(string(exitSide)).Inc()
		}
	}

	if sig.TakeProfit == nil {
		return
	}
	if !sig.TakeProfit.IsScaled() {
		if _, err := o.client.CreateLimitOrder(ctx, sig.Pair, exitSide, sig.Amount, sig.TakeProfit.Single()); err != nil {
			logs.Errorf("Failed to place take-profit for %s: %v", sig.Pair, err)
		} else {
			monitor.OrdersPlaced.WithLabelValues(string(exitSide)).Inc()
		}
		return
	}

	levels := sig.TakeProfit.Scaled()
	fractions := o.cfg.Risk.TakeProfit.ScaledAmounts
	if len(fractions) != len(levels) {
		fractions = nil
	} else if err := signal.ValidateScaledAmounts(fractions); err != nil {
		logs.Warnf("Ignoring configured scaled amounts for %s: %v", sig.Pair, err)
		fractions = nil
	}
	for i, level := range levels {
		fraction := 1.0 / float64(len(levels))
		if fractions != nil {
			fraction = fractions[i]
		}
		if _, err := o.client.CreateLimitOrder(ctx, sig.Pair, exitSide, sig.Amount*fraction, level); err != nil {
			logs.Errorf("Failed to place scaled take-profit %d for %s: %v", i+1, sig.Pair, err)
			continue
		}
		monitor.OrdersPlaced.WithLabelValues(string(exitSide)).Inc()
	}
}

// maybeSendDailySummary posts a performance summary once per day, built
// from the day's portfolio-value curve, then resets the daily counters.
func (o *Orchestrator) maybeSendDailySummary() {
	today := time.Now().YearDay()
	if today == o.summaryDay {
		return
	}
	o.summaryDay = today

	summary := perf.Summarize(nil, o.equityCurve)
	summary.TotalTrades = o.tradesToday
	o.notifier.SendPerformanceSummary(summary)

	o.tradesToday = 0
	if n := len(o.equityCurve); n > 0 {
		// Last value carries over as the next day's baseline.
		o.equityCurve = o.equityCurve[n-1:]
	}
}
