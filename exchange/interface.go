package exchange

import (
	"context"
	"time"
)

// OrderSide defines the order direction.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderType defines the order type.
type OrderType string

const (
	Limit    OrderType = "limit"
	Market   OrderType = "market"
	StopLoss OrderType = "stop_loss_limit"
)

// OrderStatus defines the order status.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
)

// Order represents one exchange order.
type Order struct {
	ID        string
	ClientID  string // client-assigned id for tracking
	Symbol    string // unified form, e.g. "BTC/USDT"
	Side      OrderSide
	Type      OrderType
	Price     float64
	StopPrice float64
	Amount    float64 // base units originally requested
	Filled    float64
	Remaining float64
	Status    OrderStatus
	CreatedAt time.Time
}

// Balance holds per-asset account balances.
type Balance struct {
	Free  map[string]float64
	Total map[string]float64
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime int64 // unix milliseconds
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Client defines the interface exchange clients must implement.
type Client interface {
	// SyncTime synchronizes time with the exchange server. Call before
	// issuing signed requests.
	SyncTime() error

	// FetchBalance returns current account balances by asset.
	FetchBalance(ctx context.Context) (*Balance, error)

	// FetchOpenOrders returns open orders; an empty symbol means all pairs.
	FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error)

	// GetPrice returns the latest traded price for a pair.
	GetPrice(symbol string) (float64, error)

	// FetchOHLCV returns up to limit most recent candles for a pair.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// CreateMarketOrder places a market order for amount base units.
	CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, amount float64) (*Order, error)

	// CreateLimitOrder places a limit order.
	CreateLimitOrder(ctx context.Context, symbol string, side OrderSide, amount, price float64) (*Order, error)

	// CreateStopLossOrder places a stop-loss limit order triggered at stopPrice.
	CreateStopLossOrder(ctx context.Context, symbol string, side OrderSide, amount, stopPrice float64) (*Order, error)

	// CancelOrder cancels an active order.
	CancelOrder(ctx context.Context, symbol, orderID string) error
}
