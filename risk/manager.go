// risk/manager.go
package risk

import (
	"context"
	"fmt"

	"nuanced_trader_go/config"
	"nuanced_trader_go/exchange"
	"nuanced_trader_go/logs"
	"nuanced_trader_go/marketdata"
	"nuanced_trader_go/signal"
)

// Manager enforces portfolio risk policy on strategy signals: position
// sizing, stop-loss/take-profit attachment, and exposure limits.
type Manager struct {
	cfg    *config.RiskConfig
	client exchange.Client
	data   *marketdata.Provider
	quote  string
	sizer  Sizer

	// Portfolio snapshot, refreshed at the start of each
	// ApplyRiskManagement call.
	portfolioValue float64
	openPositions  map[string][]exchange.Order
	totalExposure  float64
	pairExposure   map[string]float64
}

// NewManager creates a risk manager over the given exchange client and
// market data provider.
func NewManager(cfg *config.RiskConfig, client exchange.Client, data *marketdata.Provider, quoteCurrency string) (*Manager, error) {
	sizer, err := NewSizer(cfg, data)
	if err != nil {
		return nil, err
	}
	logs.Info("Risk manager initialized")
	return &Manager{
		cfg:           cfg,
		client:        client,
		data:          data,
		quote:         quoteCurrency,
		sizer:         sizer,
		openPositions: make(map[string][]exchange.Order),
		pairExposure:  make(map[string]float64),
	}, nil
}

// ApplyRiskManagement sizes, protects, and filters signals against the
// portfolio limits. A failed account refresh rejects everything for
// this cycle; per-signal failures only drop that signal.
func (m *Manager) ApplyRiskManagement(ctx context.Context, signals []*signal.Signal) []*signal.Signal {
	if len(signals) == 0 {
		return nil
	}

	if err := m.refreshAccount(ctx); err != nil {
		logs.Errorf("Error updating account info: %v", err)
		return nil
	}

	approved := make([]*signal.Signal, 0, len(signals))
	for _, sig := range signals {
		if err := m.processSignal(ctx, sig); err != nil {
			logs.Errorf("Error applying risk management to signal for %s: %v", sig.Pair, err)
			continue
		}
		if m.checkPortfolioLimits(sig) {
			approved = append(approved, sig)
		}
	}

	logs.Infof("Applied risk management: %d/%d signals passed", len(approved), len(signals))
	return approved
}

func (m *Manager) processSignal(ctx context.Context, sig *signal.Signal) error {
	price, err := m.data.GetLatestPrice(sig.Pair)
	if err != nil {
		return fmt.Errorf("failed to get price: %w", err)
	}
	if price <= 0 {
		return fmt.Errorf("invalid price %f", price)
	}

	sizing, err := m.sizer.Size(ctx, sig, price, m.portfolioValue)
	if err != nil {
		return fmt.Errorf("position sizing failed: %w", err)
	}
	sig.Amount = sizing.Amount
	sig.PositionValue = sizing.PositionValue
	sig.RiskAmount = sizing.RiskAmount
	sig.RiskPercent = sizing.RiskPercent
	sig.SizingMethod = sizing.Method

	logs.Debugf("Position sizing for %s (%s): Amount=%.6f, Value=%.2f, Risk=%.2f (%.2f%%)",
		sig.Pair, sig.Action, sizing.Amount, sizing.PositionValue, sizing.RiskAmount, sizing.RiskPercent*100)

	m.applyStopLoss(ctx, sig, price)
	m.applyTakeProfit(ctx, sig, price)
	return sig.Validate()
}

// refreshAccount rebuilds the portfolio snapshot: total value in the
// quote currency plus current exposure from open orders.
func (m *Manager) refreshAccount(ctx context.Context) error {
	balance, err := m.client.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	openOrders, err := m.client.FetchOpenOrders(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to fetch open orders: %w", err)
	}

	totalValue := 0.0
	for asset, amount := range balance.Total {
		if amount <= 0 {
			continue
		}
		if asset == m.quote {
			totalValue += amount
			continue
		}
		price, err := m.data.GetLatestPrice(fmt.Sprintf("%s/%s", asset, m.quote))
		if err != nil {
			// Asset with no quoted market, e.g. dust or a staking token.
			continue
		}
		totalValue += amount * price
	}

	m.portfolioValue = totalValue
	m.openPositions = make(map[string][]exchange.Order)
	m.totalExposure = 0.0
	m.pairExposure = make(map[string]float64)

	for _, order := range openOrders {
		// Buy exposure is quote yet to be spent; sell exposure is the
		// base amount still offered.
		exposure := order.Remaining
		if order.Side == exchange.Buy {
			exposure = order.Remaining * order.Price
		}
		m.openPositions[order.Symbol] = append(m.openPositions[order.Symbol], order)
		m.pairExposure[order.Symbol] += exposure
		m.totalExposure += exposure
	}

	logs.Debugf("Portfolio value: %.2f, Total exposure: %.2f", m.portfolioValue, m.totalExposure)
	return nil
}

// checkPortfolioLimits enforces the open-trade count and exposure caps.
func (m *Manager) checkPortfolioLimits(sig *signal.Signal) bool {
	if len(m.openPositions) >= m.cfg.MaxOpenTrades {
		if _, tracked := m.openPositions[sig.Pair]; !tracked {
			logs.Infof("Rejecting signal for %s: maximum open trades limit reached (%d)", sig.Pair, m.cfg.MaxOpenTrades)
			return false
		}
	}

	if m.portfolioValue <= 0 {
		logs.Warnf("Rejecting signal for %s: portfolio value is zero", sig.Pair)
		return false
	}

	currentPct := m.totalExposure / m.portfolioValue
	signalPct := sig.PositionValue / m.portfolioValue
	if currentPct+signalPct > m.cfg.MaxPortfolioExposure {
		logs.Infof("Rejecting signal for %s: maximum portfolio exposure would be exceeded (%.1f%% > %.1f%%)",
			sig.Pair, (currentPct+signalPct)*100, m.cfg.MaxPortfolioExposure*100)
		return false
	}

	pairPct := m.pairExposure[sig.Pair] / m.portfolioValue
	if pairPct+signalPct > m.cfg.MaxPairExposure {
		logs.Infof("Rejecting signal for %s: maximum pair exposure would be exceeded (%.1f%% > %.1f%%)",
			sig.Pair, (pairPct+signalPct)*100, m.cfg.MaxPairExposure*100)
		return false
	}

	return true
}

// PortfolioValue returns the last computed portfolio value.
func (m *Manager) PortfolioValue() float64 { return m.portfolioValue }

// frameFor returns the cached indicator frame for a pair, fetching it
// if no frame is cached yet.
func (m *Manager) frameFor(ctx context.Context, pair string) (*marketdata.Frame, error) {
	if frame, ok := m.data.CachedFrame(pair); ok {
		return frame, nil
	}
	return m.data.GetOHLCV(ctx, pair)
}
