// exchange/client.go
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nuanced_trader_go/logs"

	"github.com/google/uuid"
)

// Ensure APIClient implements the Client interface.
var _ Client = (*APIClient)(nil)

const defaultBaseURL = "https://api.binance.com"

// APIClient is a signed REST client for Binance spot endpoints.
type APIClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	timeOffset int64 // server time minus local time, milliseconds
	mu         sync.Mutex
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// NewAPIClient creates a new API client instance.
func NewAPIClient(apiKey, apiSecret, baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &APIClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// MarketSymbol converts a unified pair ("BTC/USDT") to the exchange
// form ("BTCUSDT").
func MarketSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

// SplitPair returns the base and quote assets of a unified pair.
func SplitPair(pair string) (base, quote string, ok bool) {
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// SyncTime synchronizes time with the exchange server and records the offset.
func (c *APIClient) SyncTime() error {
	resp, err := c.httpClient.Get(c.baseURL + "/api/v3/time")
	if err != nil {
		return fmt.Errorf("unable to get server time: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read time response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server time API error: HTTP %d, body: %s", resp.StatusCode, string(body))
	}

	var timeResp serverTimeResponse
	if err := json.Unmarshal(body, &timeResp); err != nil {
		return fmt.Errorf("failed to parse server time JSON: %w", err)
	}

	c.mu.Lock()
	c.timeOffset = timeResp.ServerTime - time.Now().UnixMilli()
	c.mu.Unlock()
	logs.Infof("[API Client] Time synchronized, local/server offset: %d ms", timeResp.ServerTime-time.Now().UnixMilli())
	return nil
}

// sendSigned sends a signed request and decodes the JSON response into target.
func (c *APIClient) sendSigned(ctx context.Context, method, endpoint string, params url.Values, target interface{}) error {
	c.mu.Lock()
	timestamp := time.Now().UnixMilli() + c.timeOffset
	c.mu.Unlock()

	params.Set("timestamp", strconv.FormatInt(timestamp, 10))

	queryString := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = mac.Write([]byte(queryString))
	signature := hex.EncodeToString(mac.Sum(nil))

	fullURL := fmt.Sprintf("%s%s?%s&signature=%s", c.baseURL, endpoint, queryString, signature)
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	if method == http.MethodPost || method == http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return c.do(req, target)
}

// sendPublic sends an unsigned request for public market data.
func (c *APIClient) sendPublic(ctx context.Context, endpoint string, params url.Values, target interface{}) error {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, target)
}

func (c *APIClient) do(req *http.Request, target interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp apiError
		if json.Unmarshal(body, &errResp) == nil && errResp.Msg != "" {
			return fmt.Errorf("API error: %s (code: %d)", errResp.Msg, errResp.Code)
		}
		return fmt.Errorf("API error: HTTP %d, body: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("failed to decode JSON: %w, body: %s", err, string(body))
		}
	}
	return nil
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// FetchBalance returns the current spot account balances.
func (c *APIClient) FetchBalance(ctx context.Context) (*Balance, error) {
	var acct accountResponse
	if err := c.sendSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &acct); err != nil {
		return nil, err
	}

	balance := &Balance{
		Free:  make(map[string]float64),
		Total: make(map[string]float64),
	}
	for _, b := range acct.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		balance.Free[b.Asset] = free
		balance.Total[b.Asset] = free + locked
	}
	return balance, nil
}

type restOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	StopPrice     string `json:"stopPrice"`
	Time          int64  `json:"time"`
}

func (ro *restOrder) toOrder(unifiedSymbol string) Order {
	price, _ := strconv.ParseFloat(ro.Price, 64)
	origQty, _ := strconv.ParseFloat(ro.OrigQty, 64)
	executed, _ := strconv.ParseFloat(ro.ExecutedQty, 64)
	stopPrice, _ := strconv.ParseFloat(ro.StopPrice, 64)

	status := StatusNew
	switch ro.Status {
	case "PARTIALLY_FILLED":
		status = StatusPartiallyFilled
	case "FILLED":
		status = StatusFilled
	case "CANCELED", "EXPIRED", "REJECTED":
		status = StatusCanceled
	}

	return Order{
		ID:        strconv.FormatInt(ro.OrderID, 10),
		ClientID:  ro.ClientOrderID,
		Symbol:    unifiedSymbol,
		Side:      OrderSide(strings.ToLower(ro.Side)),
		Type:      OrderType(strings.ToLower(ro.Type)),
		Price:     price,
		StopPrice: stopPrice,
		Amount:    origQty,
		Filled:    executed,
		Remaining: origQty - executed,
		Status:    status,
		CreatedAt: time.UnixMilli(ro.Time),
	}
}

// FetchOpenOrders returns open orders; an empty symbol queries all pairs.
func (c *APIClient) FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", MarketSymbol(symbol))
	}

	var raw []restOrder
	if err := c.sendSigned(ctx, http.MethodGet, "/api/v3/openOrders", params, &raw); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(raw))
	for i := range raw {
		unified := symbol
		if unified == "" {
			unified = raw[i].Symbol
		}
		orders = append(orders, raw[i].toOrder(unified))
	}
	return orders, nil
}

// GetPrice retrieves the latest price for a trading pair.
func (c *APIClient) GetPrice(symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))

	var data struct {
		Price string `json:"price"`
	}
	if err := c.sendPublic(context.Background(), "/api/v3/ticker/price", params, &data); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(data.Price, 64)
}

// FetchOHLCV retrieves up to limit most recent candles for a pair.
func (c *APIClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("interval", timeframe)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	// Kline rows are heterogeneous arrays: numbers and strings mixed.
	var rows [][]interface{}
	if err := c.sendPublic(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: int64(openTime),
			Open:     parseKlineField(row[1]),
			High:     parseKlineField(row[2]),
			Low:      parseKlineField(row[3]),
			Close:    parseKlineField(row[4]),
			Volume:   parseKlineField(row[5]),
		})
	}
	return candles, nil
}

func parseKlineField(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	}
	return 0
}

// CreateMarketOrder places a market order for amount base units.
func (c *APIClient) CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, amount float64) (*Order, error) {
	return c.placeOrder(ctx, symbol, side, Market, amount, 0, 0)
}

// CreateLimitOrder places a GTC limit order.
func (c *APIClient) CreateLimitOrder(ctx context.Context, symbol string, side OrderSide, amount, price float64) (*Order, error) {
	return c.placeOrder(ctx, symbol, side, Limit, amount, price, 0)
}

// CreateStopLossOrder places a stop-loss limit order. The limit price is
// set to the trigger price; slippage control beyond that is the
// exchange's concern.
func (c *APIClient) CreateStopLossOrder(ctx context.Context, symbol string, side OrderSide, amount, stopPrice float64) (*Order, error) {
	return c.placeOrder(ctx, symbol, side, StopLoss, amount, stopPrice, stopPrice)
}

func (c *APIClient) placeOrder(ctx context.Context, symbol string, side OrderSide, typ OrderType, amount, price, stopPrice float64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", strings.ToUpper(string(typ)))
	params.Set("quantity", strconv.FormatFloat(amount, 'f', -1, 64))
	params.Set("newClientOrderId", uuid.NewString())

	switch typ {
	case Limit:
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	case StopLoss:
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
		params.Set("stopPrice", strconv.FormatFloat(stopPrice, 'f', -1, 64))
	}

	var raw restOrder
	if err := c.sendSigned(ctx, http.MethodPost, "/api/v3/order", params, &raw); err != nil {
		return nil, err
	}
	order := raw.toOrder(symbol)
	return &order, nil
}

// CancelOrder cancels an active order.
func (c *APIClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", MarketSymbol(symbol))
	params.Set("orderId", orderID)
	return c.sendSigned(ctx, http.MethodDelete, "/api/v3/order", params, nil)
}
