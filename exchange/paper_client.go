// exchange/paper_client.go
package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"nuanced_trader_go/logs"

	"github.com/google/uuid"
)

// Ensure PaperClient implements the Client interface.
var _ Client = (*PaperClient)(nil)

// PaperClient simulates an exchange in memory for paper trading. Prices
// follow a random walk seeded from configurable start prices, orders fill
// against the simulated price, and balances are tracked per asset.
type PaperClient struct {
	mu         sync.RWMutex
	balances   map[string]float64 // free balance per asset
	locked     map[string]float64 // balance held by open orders
	prices     map[string]float64 // current simulated price per pair
	openOrders map[string]Order   // keyed by order id
	history    []Order

	tickInterval time.Duration
	rng          *rand.Rand
	stopChan     chan struct{}
	running      bool
}

// DefaultStartPrices seed the simulator when no price is configured for
// a pair.
var DefaultStartPrices = map[string]float64{
	"BTC/USDT": 50000.0,
	"ETH/USDT": 3000.0,
}

// NewPaperClient creates a paper trading client with the given initial
// quote balance.
func NewPaperClient(quoteCurrency string, initialBalance float64, pairs []string) *PaperClient {
	c := &PaperClient{
		balances:     map[string]float64{quoteCurrency: initialBalance},
		locked:       make(map[string]float64),
		prices:       make(map[string]float64),
		openOrders:   make(map[string]Order),
		tickInterval: 2 * time.Second,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan:     make(chan struct{}),
	}
	for _, pair := range pairs {
		if p, ok := DefaultStartPrices[pair]; ok {
			c.prices[pair] = p
		} else {
			c.prices[pair] = 100.0
		}
		base, _, ok := SplitPair(pair)
		if ok {
			if _, exists := c.balances[base]; !exists {
				c.balances[base] = 0
			}
		}
	}
	return c
}

// Start launches the price simulator goroutine.
func (c *PaperClient) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.simulatePrices()
	logs.Info("[Paper Client] Price simulator started.")
}

// Stop terminates the price simulator goroutine.
func (c *PaperClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopChan)
	logs.Info("[Paper Client] Price simulator stopped.")
}

func (c *PaperClient) simulatePrices() {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			for pair, price := range c.prices {
				// Random walk, roughly +/-0.2% per tick.
				drift := (c.rng.Float64() - 0.5) * 0.004
				c.prices[pair] = price * (1 + drift)
			}
			c.matchOpenOrdersLocked()
			c.mu.Unlock()
		}
	}
}

// matchOpenOrdersLocked fills any resting order whose price has been
// crossed by the simulated market. Caller holds the write lock.
func (c *PaperClient) matchOpenOrdersLocked() {
	for id, order := range c.openOrders {
		price, ok := c.prices[order.Symbol]
		if !ok {
			continue
		}
		crossed := false
		switch order.Type {
		case Limit:
			crossed = (order.Side == Buy && price <= order.Price) ||
				(order.Side == Sell && price >= order.Price)
		case StopLoss:
			crossed = (order.Side == Sell && price <= order.StopPrice) ||
				(order.Side == Buy && price >= order.StopPrice)
		}
		if !crossed {
			continue
		}
		fillPrice := order.Price
		if fillPrice == 0 {
			fillPrice = price
		}
		c.settleLocked(&order, fillPrice)
		delete(c.openOrders, id)
		c.history = append(c.history, order)
		logs.Infof("[Paper Client] Order %s filled: %s %s %.8f @ %.8f",
			order.ID, order.Side, order.Symbol, order.Amount, fillPrice)
	}
}

// settleLocked moves balances for a fully filled order. Caller holds the
// write lock.
func (c *PaperClient) settleLocked(order *Order, fillPrice float64) {
	base, quote, ok := SplitPair(order.Symbol)
	if !ok {
		return
	}
	cost := order.Amount * fillPrice
	if order.Side == Buy {
		c.locked[quote] -= cost
		if c.locked[quote] < 0 {
			c.balances[quote] += c.locked[quote]
			c.locked[quote] = 0
		}
		c.balances[base] += order.Amount
	} else {
		c.locked[base] -= order.Amount
		if c.locked[base] < 0 {
			c.balances[base] += c.locked[base]
			c.locked[base] = 0
		}
		c.balances[quote] += cost
	}
	order.Filled = order.Amount
	order.Remaining = 0
	order.Status = StatusFilled
}

// SyncTime is a no-op for the simulator.
func (c *PaperClient) SyncTime() error { return nil }

// FetchBalance returns a snapshot of the simulated balances.
func (c *PaperClient) FetchBalance(ctx context.Context) (*Balance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	balance := &Balance{
		Free:  make(map[string]float64, len(c.balances)),
		Total: make(map[string]float64, len(c.balances)),
	}
	for asset, free := range c.balances {
		balance.Free[asset] = free
		balance.Total[asset] = free + c.locked[asset]
	}
	for asset, held := range c.locked {
		if _, ok := balance.Total[asset]; !ok && held > 0 {
			balance.Total[asset] = held
		}
	}
	return balance, nil
}

// FetchOpenOrders returns the currently resting simulated orders.
func (c *PaperClient) FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	orders := make([]Order, 0, len(c.openOrders))
	for _, order := range c.openOrders {
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetPrice returns the current simulated price for a pair.
func (c *PaperClient) GetPrice(symbol string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	price, ok := c.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no simulated price for pair %s", symbol)
	}
	return price, nil
}

// SetPrice overrides the simulated price for a pair. Used by tests and
// backtest wiring.
func (c *PaperClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
	c.matchOpenOrdersLocked()
}

// SetBalance overrides the free balance of an asset.
func (c *PaperClient) SetBalance(asset string, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[asset] = amount
}

// FetchOHLCV synthesizes a candle series that random-walks backwards
// from the current simulated price.
func (c *PaperClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	c.mu.RLock()
	current, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no simulated price for pair %s", symbol)
	}
	if limit <= 0 {
		limit = 100
	}

	interval := timeframeMillis(timeframe)
	now := time.Now().UnixMilli()
	// Walk backwards so the most recent close lands on the live price.
	closes := make([]float64, limit)
	closes[limit-1] = current
	for i := limit - 2; i >= 0; i-- {
		drift := (c.rng.Float64() - 0.5) * 0.01
		closes[i] = closes[i+1] / (1 + drift)
	}

	candles := make([]Candle, limit)
	for i := 0; i < limit; i++ {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		high := math.Max(open, closes[i]) * (1 + c.rng.Float64()*0.002)
		low := math.Min(open, closes[i]) * (1 - c.rng.Float64()*0.002)
		candles[i] = Candle{
			OpenTime: now - int64(limit-i)*interval,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closes[i],
			Volume:   100 + c.rng.Float64()*900,
		}
	}
	return candles, nil
}

func timeframeMillis(timeframe string) int64 {
	switch strings.ToLower(timeframe) {
	case "1m":
		return 60_000
	case "5m":
		return 300_000
	case "15m":
		return 900_000
	case "4h":
		return 14_400_000
	case "1d":
		return 86_400_000
	default: // "1h"
		return 3_600_000
	}
}

// CreateMarketOrder fills immediately at the simulated price.
func (c *PaperClient) CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, amount float64) (*Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	price, ok := c.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no simulated price for pair %s", symbol)
	}
	if err := c.reserveLocked(symbol, side, amount, price); err != nil {
		return nil, err
	}

	order := Order{
		ID:        uuid.NewString(),
		ClientID:  uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      Market,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	c.settleLocked(&order, price)
	order.Price = price
	c.history = append(c.history, order)
	return &order, nil
}

// CreateLimitOrder rests an order that fills when the simulated price
// crosses it.
func (c *PaperClient) CreateLimitOrder(ctx context.Context, symbol string, side OrderSide, amount, price float64) (*Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.prices[symbol]; !ok {
		return nil, fmt.Errorf("no simulated price for pair %s", symbol)
	}
	if err := c.reserveLocked(symbol, side, amount, price); err != nil {
		return nil, err
	}

	order := Order{
		ID:        uuid.NewString(),
		ClientID:  uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      Limit,
		Price:     price,
		Amount:    amount,
		Remaining: amount,
		Status:    StatusNew,
		CreatedAt: time.Now(),
	}
	c.openOrders[order.ID] = order
	c.matchOpenOrdersLocked()
	if filled, ok := c.lastFilled(order.ID); ok {
		return filled, nil
	}
	return &order, nil
}

// CreateStopLossOrder rests a stop order triggered at stopPrice.
func (c *PaperClient) CreateStopLossOrder(ctx context.Context, symbol string, side OrderSide, amount, stopPrice float64) (*Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.prices[symbol]; !ok {
		return nil, fmt.Errorf("no simulated price for pair %s", symbol)
	}
	if err := c.reserveLocked(symbol, side, amount, stopPrice); err != nil {
		return nil, err
	}

	order := Order{
		ID:        uuid.NewString(),
		ClientID:  uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      StopLoss,
		Price:     stopPrice,
		StopPrice: stopPrice,
		Amount:    amount,
		Remaining: amount,
		Status:    StatusNew,
		CreatedAt: time.Now(),
	}
	c.openOrders[order.ID] = order
	return &order, nil
}

// lastFilled reports whether the given order id was just moved to the
// fill history. Caller holds the write lock.
func (c *PaperClient) lastFilled(orderID string) (*Order, bool) {
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ID == orderID {
			filled := c.history[i]
			return &filled, true
		}
	}
	return nil, false
}

// reserveLocked moves funds from free to locked for a new order. Caller
// holds the write lock.
func (c *PaperClient) reserveLocked(symbol string, side OrderSide, amount, price float64) error {
	base, quote, ok := SplitPair(symbol)
	if !ok {
		return fmt.Errorf("invalid trading pair: %s", symbol)
	}
	if amount <= 0 {
		return fmt.Errorf("order amount must be positive, got %f", amount)
	}
	if side == Buy {
		cost := amount * price
		if c.balances[quote] < cost {
			return fmt.Errorf("insufficient %s balance: need %.8f, have %.8f", quote, cost, c.balances[quote])
		}
		c.balances[quote] -= cost
		c.locked[quote] += cost
		return nil
	}
	if c.balances[base] < amount {
		return fmt.Errorf("insufficient %s balance: need %.8f, have %.8f", base, amount, c.balances[base])
	}
	c.balances[base] -= amount
	c.locked[base] += amount
	return nil
}

// CancelOrder removes a resting order and releases its reserved funds.
func (c *PaperClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.openOrders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	base, quote, _ := SplitPair(order.Symbol)
	if order.Side == Buy {
		cost := order.Remaining * order.Price
		c.locked[quote] -= cost
		c.balances[quote] += cost
	} else {
		c.locked[base] -= order.Remaining
		c.balances[base] += order.Remaining
	}
	order.Status = StatusCanceled
	delete(c.openOrders, orderID)
	c.history = append(c.history, order)
	return nil
}
