// signal/signal.go
package signal

import (
	"fmt"

	"github.com/google/uuid"
)

// Action is the direction of a trading signal.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Regime classifies current market behavior for a pair.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
	RegimeUnknown  Regime = "unknown"
)

// TakeProfit is a tagged union of a single target price or an ordered
// list of scaled exit targets.
type TakeProfit struct {
	single float64
	scaled []float64
}

// SingleTarget builds a take-profit with one exit price.
func SingleTarget(price float64) *TakeProfit {
	return &TakeProfit{single: price}
}

// ScaledTargets builds a take-profit with ordered partial-exit prices.
func ScaledTargets(prices []float64) *TakeProfit {
	return &TakeProfit{scaled: prices}
}

// IsScaled reports whether the take-profit holds multiple targets.
func (tp *TakeProfit) IsScaled() bool { return tp != nil && len(tp.scaled) > 0 }

// Single returns the single target price. Only meaningful when
// IsScaled() is false.
func (tp *TakeProfit) Single() float64 { return tp.single }

// Scaled returns the ordered target prices for a scaled exit.
func (tp *TakeProfit) Scaled() []float64 { return tp.scaled }

// Levels returns all target prices regardless of variant.
func (tp *TakeProfit) Levels() []float64 {
	if tp == nil {
		return nil
	}
	if tp.IsScaled() {
		return tp.scaled
	}
	return []float64{tp.single}
}

func (tp *TakeProfit) String() string {
	if tp == nil {
		return "none"
	}
	if tp.IsScaled() {
		return fmt.Sprintf("scaled%v", tp.scaled)
	}
	return fmt.Sprintf("%.8f", tp.single)
}

// Signal is one trading instruction produced by a strategy and refined
// by the risk manager.
type Signal struct {
	ID         string
	Pair       string
	Action     Action
	Amount     float64 // base units after sizing; quote-derived placeholder before
	Price      float64 // optional limit price, 0 = market
	StopLoss   float64 // 0 = not set
	TakeProfit *TakeProfit
	Trailing   bool // stop loss should trail, handled by order execution
	Reason     string
	Confidence float64
	Timeframe  string
	Timestamp  int64
	Regime     Regime

	// Sizing fields populated by the risk manager.
	PositionValue float64
	RiskAmount    float64
	RiskPercent   float64
	SizingMethod  string
}

// New builds a validated signal. Amount must be positive and the action
// must be buy or sell.
func New(pair string, action Action, amount float64) (*Signal, error) {
	s := &Signal{
		ID:     uuid.NewString(),
		Pair:   pair,
		Action: action,
		Amount: amount,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the structural invariants of a signal.
func (s *Signal) Validate() error {
	if s.Pair == "" {
		return fmt.Errorf("signal missing pair")
	}
	if s.Action != Buy && s.Action != Sell {
		return fmt.Errorf("invalid action %q for %s", s.Action, s.Pair)
	}
	if s.Amount <= 0 {
		return fmt.Errorf("invalid amount %f for %s", s.Amount, s.Pair)
	}
	if s.Price < 0 {
		return fmt.Errorf("invalid price %f for %s", s.Price, s.Pair)
	}
	if s.StopLoss < 0 {
		return fmt.Errorf("invalid stop loss %f for %s", s.StopLoss, s.Pair)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %f out of [0,1] for %s", s.Confidence, s.Pair)
	}
	return nil
}

// ValidateScaledAmounts checks that the configured partial-exit
// fractions for a scaled take-profit do not exceed the full position.
func ValidateScaledAmounts(fractions []float64) error {
	total := 0.0
	for _, f := range fractions {
		if f <= 0 {
			return fmt.Errorf("scaled amount %f must be positive", f)
		}
		total += f
	}
	if total > 1.0+1e-9 {
		return fmt.Errorf("scaled amounts sum to %.4f, must not exceed 1.0", total)
	}
	return nil
}

// Filter drops signals that fail validation, returning the survivors.
// Each rejection is reported through report.
func Filter(signals []*Signal, report func(s *Signal, err error)) []*Signal {
	valid := make([]*Signal, 0, len(signals))
	for _, s := range signals {
		if err := s.Validate(); err != nil {
			if report != nil {
				report(s, err)
			}
			continue
		}
		valid = append(valid, s)
	}
	return valid
}
