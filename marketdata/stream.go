// marketdata/stream.go
package marketdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"nuanced_trader_go/exchange"
	"nuanced_trader_go/logs"

	"github.com/gorilla/websocket"
)

const (
	pingInterval   = 3 * time.Minute
	pongWait       = 10 * time.Minute
	reconnectDelay = 5 * time.Second
	writeWait      = 10 * time.Second
)

// miniTickerEvent is the subset of the exchange mini-ticker payload the
// stream consumes.
type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	EventTime int64  `json:"E"`
}

// PriceStream maintains a websocket subscription to per-pair mini-ticker
// updates and caches the latest price for each pair. It reconnects on
// failure until Stop is called.
type PriceStream struct {
	url   string
	pairs []string

	mu       sync.RWMutex
	prices   map[string]float64 // keyed by unified pair
	updated  map[string]time.Time
	conn     *websocket.Conn
	stopChan chan struct{}
	doneChan chan struct{}
	running  bool

	// maps exchange symbol ("BTCUSDT") back to unified pair ("BTC/USDT")
	symbolToPair map[string]string
}

// NewPriceStream creates a stream for the given pairs. The url is the
// exchange websocket base, e.g. "wss://stream.binance.com:9443/ws".
func NewPriceStream(url string, pairs []string) *PriceStream {
	symbolToPair := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		symbolToPair[exchange.MarketSymbol(pair)] = pair
	}
	return &PriceStream{
		url:          url,
		pairs:        pairs,
		prices:       make(map[string]float64),
		updated:      make(map[string]time.Time),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		symbolToPair: symbolToPair,
	}
}

// streamURL builds the combined-stream endpoint for all configured pairs.
func (s *PriceStream) streamURL() string {
	streams := make([]string, 0, len(s.pairs))
	for _, pair := range s.pairs {
		streams = append(streams, strings.ToLower(exchange.MarketSymbol(pair))+"@miniTicker")
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(s.url, "/"), strings.Join(streams, "/"))
}

// Start launches the connection loop. It returns immediately; price
// updates arrive in the background.
func (s *PriceStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.run()
}

// Stop closes the stream and waits for the background loop to exit.
func (s *PriceStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	<-s.doneChan
	logs.Info("[Price Stream] Stopped.")
}

func (s *PriceStream) run() {
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connectAndRead(); err != nil {
			logs.Warnf("[Price Stream] Connection lost: %v. Reconnecting in %s.", err, reconnectDelay)
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *PriceStream) connectAndRead() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	logs.Infof("[Price Stream] Connected for %d pairs.", len(s.pairs))

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(message)
	}
}

func (s *PriceStream) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *PriceStream) handleMessage(message []byte) {
	var event miniTickerEvent
	if err := json.Unmarshal(message, &event); err != nil || event.Symbol == "" {
		return
	}
	pair, ok := s.symbolToPair[event.Symbol]
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(event.Close, 64)
	if err != nil || price <= 0 {
		return
	}

	s.mu.Lock()
	s.prices[pair] = price
	s.updated[pair] = time.Now()
	s.mu.Unlock()
}

// LastPrice returns the latest streamed price for a pair, if one has
// arrived recently enough to trust.
func (s *PriceStream) LastPrice(pair string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[pair]
	if !ok {
		return 0, false
	}
	if time.Since(s.updated[pair]) > time.Minute {
		return 0, false
	}
	return price, true
}
