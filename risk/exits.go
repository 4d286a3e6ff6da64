// risk/exits.go
package risk

import (
	"context"
	"math"

	"nuanced_trader_go/logs"
	"nuanced_trader_go/signal"
	"nuanced_trader_go/utils"
)

// applyStopLoss attaches a stop-loss price to a signal that does not
// already carry one. Signals keep a strategy-provided stop untouched.
func (m *Manager) applyStopLoss(ctx context.Context, sig *signal.Signal, price float64) {
	if sig.StopLoss != 0 || !m.cfg.StopLoss.Enabled {
		return
	}

	pct := m.cfg.StopLoss.Percentage
	direction := 1.0
	if sig.Action == signal.Sell {
		direction = -1.0
	}

	var stopLoss float64
	switch m.cfg.StopLoss.Type {
	case "atr":
		frame, err := m.frameFor(ctx, sig.Pair)
		if err != nil || frame.Len() == 0 {
			// No data, fall back to the fixed percentage.
			stopLoss = price * (1 - direction*pct)
		} else {
			atr := frame.ATR[frame.Len()-1]
			stopLoss = price - direction*atr*m.cfg.StopLoss.ATRMultiplier
		}
	case "trailing":
		// Initial level matches the fixed stop; order execution trails it.
		stopLoss = price * (1 - direction*pct)
		sig.Trailing = true
	default: // fixed
		stopLoss = price * (1 - direction*pct)
	}

	sig.StopLoss = utils.Round8(stopLoss)
}

// applyTakeProfit attaches take-profit targets to a signal that does
// not already carry them.
func (m *Manager) applyTakeProfit(ctx context.Context, sig *signal.Signal, price float64) {
	if sig.TakeProfit != nil || !m.cfg.TakeProfit.Enabled {
		return
	}

	pct := m.cfg.TakeProfit.Percentage
	direction := 1.0
	if sig.Action == signal.Sell {
		direction = -1.0
	}

	switch m.cfg.TakeProfit.Type {
	case "scaled":
		levels := m.cfg.TakeProfit.ScaledLevels
		targets := make([]float64, 0, len(levels))
		for _, level := range levels {
			targets = append(targets, utils.Round8(price*(1+direction*level)))
		}
		sig.TakeProfit = signal.ScaledTargets(targets)
		return
	case "adaptive":
		frame, err := m.frameFor(ctx, sig.Pair)
		if err == nil && frame.Len() > 0 {
			volatility := frame.Volatility(m.data.Params().VolatilityLookback)
			adjusted := math.Max(0.05, volatility/10)
			logs.Debugf("Adaptive take profit for %s: %.2f%% (volatility %.2f%%)", sig.Pair, adjusted*100, volatility)
			pct = adjusted
		}
	}

	sig.TakeProfit = signal.SingleTarget(utils.Round8(price * (1 + direction*pct)))
}
