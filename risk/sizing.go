// risk/sizing.go
package risk

import (
	"context"
	"fmt"
	"math"

	"nuanced_trader_go/config"
	"nuanced_trader_go/logs"
	"nuanced_trader_go/marketdata"
	"nuanced_trader_go/signal"
)

// fixedStake is the quote stake used by the fixed sizing method.
const fixedStake = 100.0

// Sizing is the outcome of a position sizing calculation.
type Sizing struct {
	Amount        float64 // base units
	RiskAmount    float64 // quote at risk if the stop is hit
	PositionValue float64 // quote value of the position
	RiskPercent   float64 // fraction of portfolio at risk
	Method        string
}

// Sizer computes a position size for a signal given the current price
// and total portfolio value.
type Sizer interface {
	Method() string
	Size(ctx context.Context, sig *signal.Signal, price, portfolioValue float64) (*Sizing, error)
}

// NewSizer builds the configured sizing method. The kelly method needs
// trade history statistics that are not tracked yet, so it delegates to
// risk-based sizing with a warning.
func NewSizer(cfg *config.RiskConfig, data *marketdata.Provider) (Sizer, error) {
	riskBased := &riskBasedSizer{
		data:             data,
		maxRiskPerTrade:  cfg.MaxRiskPerTrade,
		maxPositionValue: cfg.MaxPositionValue,
	}
	switch cfg.PositionSizing.Method {
	case "fixed":
		return &fixedSizer{maxRiskPerTrade: cfg.MaxRiskPerTrade}, nil
	case "risk_based":
		return riskBased, nil
	case "kelly":
		logs.Warn("Kelly sizing requires trade history statistics; using risk-based sizing instead")
		return &kellySizer{riskBased}, nil
	}
	return nil, fmt.Errorf("unknown position sizing method: %s", cfg.PositionSizing.Method)
}

// fixedSizer stakes a constant quote amount per trade.
type fixedSizer struct {
	maxRiskPerTrade float64
}

func (s *fixedSizer) Method() string { return "fixed" }

func (s *fixedSizer) Size(ctx context.Context, sig *signal.Signal, price, portfolioValue float64) (*Sizing, error) {
	return &Sizing{
		Amount:        fixedStake / price,
		RiskAmount:    fixedStake * s.maxRiskPerTrade,
		PositionValue: fixedStake,
		RiskPercent:   s.maxRiskPerTrade,
		Method:        s.Method(),
	}, nil
}

// riskBasedSizer sizes the position so that hitting the stop loses at
// most maxRiskPerTrade of the portfolio, then caps the position value.
type riskBasedSizer struct {
	data             *marketdata.Provider
	maxRiskPerTrade  float64
	maxPositionValue float64
}

func (s *riskBasedSizer) Method() string { return "risk_based" }

func (s *riskBasedSizer) Size(ctx context.Context, sig *signal.Signal, price, portfolioValue float64) (*Sizing, error) {
	stopLoss := sig.StopLoss
	if stopLoss == 0 {
		// No stop on the signal yet: derive one from trailing volatility,
		// at least 2% away from the price.
		volatility, err := s.data.GetVolatility(ctx, sig.Pair)
		if err != nil {
			return nil, fmt.Errorf("failed to get volatility for %s: %w", sig.Pair, err)
		}
		stopLossPct := math.Max(0.02, volatility/100)
		if sig.Action == signal.Buy {
			stopLoss = price * (1 - stopLossPct)
		} else {
			stopLoss = price * (1 + stopLossPct)
		}
	}

	riskPerUnit := price - stopLoss
	if sig.Action == signal.Sell {
		riskPerUnit = stopLoss - price
	}
	if riskPerUnit <= 0 {
		return nil, fmt.Errorf("invalid risk per unit for %s: %f", sig.Pair, riskPerUnit)
	}

	riskAmount := portfolioValue * s.maxRiskPerTrade
	amount := riskAmount / riskPerUnit
	positionValue := amount * price

	maxValue := portfolioValue * s.maxPositionValue
	if positionValue > maxValue {
		positionValue = maxValue
		amount = positionValue / price
		riskAmount = amount * riskPerUnit
	}

	riskPercent := 0.0
	if portfolioValue > 0 {
		riskPercent = riskAmount / portfolioValue
	}
	return &Sizing{
		Amount:        amount,
		RiskAmount:    riskAmount,
		PositionValue: positionValue,
		RiskPercent:   riskPercent,
		Method:        s.Method(),
	}, nil
}

// kellySizer is a placeholder that reports the kelly method name while
// delegating the math to risk-based sizing.
type kellySizer struct {
	*riskBasedSizer
}

func (s *kellySizer) Method() string { return "kelly" }

func (s *kellySizer) Size(ctx context.Context, sig *signal.Signal, price, portfolioValue float64) (*Sizing, error) {
	sizing, err := s.riskBasedSizer.Size(ctx, sig, price, portfolioValue)
	if err != nil {
		return nil, err
	}
	sizing.Method = s.Method()
	return sizing, nil
}
