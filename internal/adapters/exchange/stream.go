package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// PriceStream keeps a live mark price cache fed by the Bybit V5 public
// linear websocket. The trading loop stays on REST; the cache serves
// status snapshots without an extra venue round-trip.
type PriceStream struct {
	url            string
	symbols        []string
	conn           *websocket.Conn
	mu             sync.Mutex
	reconnectDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc

	cacheMu sync.RWMutex
	cache   map[string]streamPrice
}

type streamPrice struct {
	mark decimal.Decimal
	last decimal.Decimal
	at   time.Time
}

type streamMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts"`
}

type streamTicker struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
	LastPrice string `json:"lastPrice"`
}

// NewPriceStream creates a stream for the given compact symbols.
func NewPriceStream(symbols []string, testnet bool) *PriceStream {
	url := BybitStreamMainnet
	if testnet {
		url = BybitStreamTestnet
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PriceStream{
		url:            url,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		cache:          make(map[string]streamPrice),
	}
}

// Connect establishes the websocket connection and subscribes.
func (s *PriceStream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to price stream: %w", err)
	}
	s.conn = conn

	if err := s.subscribe(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go s.readMessages()
	go s.pingLoop()

	logger.Info("price stream connected",
		zap.String("url", s.url),
		zap.Strings("symbols", s.symbols),
	)

	return nil
}

func (s *PriceStream) subscribe() error {
	topics := make([]string, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		topics = append(topics, fmt.Sprintf("tickers.%s", symbol))
	}
	if len(topics) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": topics,
	}
	if err := s.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	return nil
}

func (s *PriceStream) readMessages() {
	defer func() {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()

		if s.ctx.Err() == nil {
			logger.Info("reconnecting price stream...")
			time.Sleep(s.reconnectDelay)
			if err := s.Connect(); err != nil {
				logger.Error("failed to reconnect price stream", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Error("price stream read error", zap.Error(err))
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("failed to parse price stream message", zap.Error(err))
			continue
		}

		if msg.Topic != "" && len(msg.Data) > 0 {
			s.handleTicker(msg)
		}
	}
}

func (s *PriceStream) handleTicker(msg streamMessage) {
	var ticker streamTicker
	if err := json.Unmarshal(msg.Data, &ticker); err != nil {
		logger.Warn("failed to parse ticker data", zap.Error(err))
		return
	}
	if ticker.Symbol == "" {
		return
	}

	s.cacheMu.Lock()
	entry := s.cache[ticker.Symbol]
	// Delta frames omit unchanged fields; keep the previous value
	if mark := parseDecimal(ticker.MarkPrice); !mark.IsZero() {
		entry.mark = mark
	}
	if last := parseDecimal(ticker.LastPrice); !last.IsZero() {
		entry.last = last
	}
	entry.at = timeFromMillis(msg.Ts)
	s.cache[ticker.Symbol] = entry
	s.cacheMu.Unlock()
}

func (s *PriceStream) pingLoop() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != nil {
				ping := map[string]interface{}{"op": "ping"}
				if err := s.conn.WriteJSON(ping); err != nil {
					logger.Error("failed to send stream ping", zap.Error(err))
				}
			}
			s.mu.Unlock()
		}
	}
}

// MarkPrice returns the cached mark price and its receive time.
func (s *PriceStream) MarkPrice(symbol string) (decimal.Decimal, time.Time, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	entry, ok := s.cache[symbol]
	if !ok || entry.mark.IsZero() {
		return decimal.Zero, time.Time{}, false
	}
	return entry.mark, entry.at, true
}

// Close shuts down the stream.
func (s *PriceStream) Close() error {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
