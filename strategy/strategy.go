// strategy/strategy.go
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"nuanced_trader_go/marketdata"
	"nuanced_trader_go/signal"
)

// Strategy analyzes one pair's indicator frame and proposes signals.
// Implementations must be safe for sequential per-pair calls within a
// trading cycle.
type Strategy interface {
	// Name returns the registered strategy name.
	Name() string

	// Analyze inspects the frame and returns zero or more signals for
	// the frame's pair. Signal amounts are placeholders until the risk
	// manager sizes them.
	Analyze(frame *marketdata.Frame) ([]*signal.Signal, error)
}

// Factory builds a strategy from its configured parameters.
type Factory func(parameters map[string]float64) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a strategy factory under a name. Called from package
// init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	registry[name] = factory
}

// New builds the named strategy with the given parameters.
func New(name string, parameters map[string]float64) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return factory(parameters)
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
