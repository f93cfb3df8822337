package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var streamJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// StreamConfig конфигурация WebSocket потока одного символа
type StreamConfig struct {
	// Начальная задержка перед переподключением
	InitialDelay time.Duration
	// Максимальная задержка (после exponential backoff)
	MaxDelay time.Duration
	// Таймаут подключения
	ConnectTimeout time.Duration
	// Интервал ping для поддержания соединения
	PingInterval time.Duration
	// Таймаут записи ping
	WriteTimeout time.Duration
}

// DefaultStreamConfig возвращает конфигурацию по умолчанию:
// backoff 1s, 2s, 4s, 8s, 16s
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		InitialDelay:   1 * time.Second,
		MaxDelay:       16 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   25 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// normalized заполняет незаданные поля значениями по умолчанию.
// Нулевой WriteTimeout означал бы уже истёкший write deadline:
// каждый ping рвал бы соединение.
func (c StreamConfig) normalized() StreamConfig {
	def := DefaultStreamConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// StreamState состояние WebSocket потока
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// tradeEvent - сообщение потока <symbol>@trade
type tradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// SymbolStream - WebSocket поток сделок одного символа
//
// Держит соединение с <base>/<symbol>@trade, пишет каждую цену в
// callback и автоматически переподключается с exponential backoff.
// Close() останавливает и чтение, и цикл переподключения: брошенный
// reconnect не переживает обнуление подписчиков.
type SymbolStream struct {
	symbol string
	wsURL  string
	config StreamConfig
	logger *zap.Logger

	// вызывается на каждый тик цены
	onPrice func(symbol string, price float64)

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic StreamState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once
}

// NewSymbolStream создаёт поток для символа
//
// wsBase - базовый URL вида wss://stream.binance.com:9443/ws,
// имя потока строится как <lowercase symbol>@trade.
func NewSymbolStream(wsBase, symbol string, config StreamConfig, onPrice func(string, float64), logger *zap.Logger) *SymbolStream {
	return &SymbolStream{
		symbol:    symbol,
		wsURL:     strings.TrimRight(wsBase, "/") + "/" + strings.ToLower(symbol) + "@trade",
		config:    config.normalized(),
		onPrice:   onPrice,
		logger:    logger,
		closeChan: make(chan struct{}),
	}
}

// State возвращает текущее состояние потока
func (s *SymbolStream) State() StreamState {
	return StreamState(atomic.LoadInt32(&s.state))
}

// IsConnected проверяет, установлено ли соединение
func (s *SymbolStream) IsConnected() bool {
	return s.State() == StreamConnected
}

// Connect устанавливает соединение и запускает чтение
//
// Ошибка первого подключения не фатальна: поток уходит в
// reconnectLoop и продолжает попытки в фоне.
func (s *SymbolStream) Connect() {
	select {
	case <-s.closeChan:
		return
	default:
	}

	atomic.StoreInt32(&s.state, int32(StreamConnecting))

	if err := s.dial(); err != nil {
		s.logger.Warn("stream dial failed, scheduling reconnect",
			zap.String("symbol", s.symbol),
			zap.Error(err))
		atomic.StoreInt32(&s.state, int32(StreamReconnecting))
		go s.reconnectLoop()
		return
	}

	atomic.StoreInt32(&s.state, int32(StreamConnected))
	atomic.StoreInt32(&s.retryCount, 0)
	StreamsConnected.Inc()

	go s.readPump()
	go s.pingPump()

	s.logger.Info("price stream connected",
		zap.String("symbol", s.symbol),
		zap.String("url", s.wsURL))
}

// dial выполняет подключение к WebSocket
func (s *SymbolStream) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	return nil
}

// readPump читает сообщения потока и передаёт цены в callback
func (s *SymbolStream) readPump() {
	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(err)
			return
		}

		var event tradeEvent
		if err := streamJSON.Unmarshal(message, &event); err != nil {
			s.logger.Debug("unparseable stream message",
				zap.String("symbol", s.symbol),
				zap.Error(err))
			continue
		}

		price, err := strconv.ParseFloat(event.Price, 64)
		if err != nil || !validPrice(price) {
			s.logger.Debug("discarding invalid stream price",
				zap.String("symbol", s.symbol),
				zap.String("price", event.Price))
			continue
		}

		StreamMessages.Inc()
		s.onPrice(s.symbol, price)
	}
}

// pingPump отправляет ping для поддержания соединения
func (s *SymbolStream) pingPump() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			if conn == nil || s.State() != StreamConnected {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("stream ping failed",
					zap.String("symbol", s.symbol),
					zap.Error(err))
				s.handleDisconnect(err)
				return
			}
		}
	}
}

// handleDisconnect обрабатывает разрыв соединения
func (s *SymbolStream) handleDisconnect(err error) {
	select {
	case <-s.closeChan:
		return
	default:
	}

	// Избегаем повторной обработки
	state := s.State()
	if state == StreamReconnecting || state == StreamClosed {
		return
	}

	atomic.StoreInt32(&s.state, int32(StreamReconnecting))
	StreamsConnected.Dec()

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	if err != nil {
		s.logger.Warn("price stream disconnected",
			zap.String("symbol", s.symbol),
			zap.Error(err))
	}

	go s.reconnectLoop()
}

// reconnectLoop переподключается с exponential backoff до успеха
// или закрытия потока
func (s *SymbolStream) reconnectLoop() {
	delay := s.config.InitialDelay

	for {
		select {
		case <-s.closeChan:
			return
		case <-time.After(delay):
		}

		retryCount := atomic.AddInt32(&s.retryCount, 1)
		StreamReconnects.Inc()

		if err := s.dial(); err != nil {
			s.logger.Warn("stream reconnect failed",
				zap.String("symbol", s.symbol),
				zap.Int32("attempt", retryCount),
				zap.Error(err))

			delay *= 2
			if delay > s.config.MaxDelay {
				delay = s.config.MaxDelay
			}
			continue
		}

		// Поток могли закрыть пока dial был в полёте
		select {
		case <-s.closeChan:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			return
		default:
		}

		atomic.StoreInt32(&s.state, int32(StreamConnected))
		atomic.StoreInt32(&s.retryCount, 0)
		StreamsConnected.Inc()

		s.logger.Info("price stream reconnected",
			zap.String("symbol", s.symbol))

		go s.readPump()
		go s.pingPump()

		return
	}
}

// Close закрывает поток и останавливает переподключение
func (s *SymbolStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closeChan)

		wasConnected := s.State() == StreamConnected
		atomic.StoreInt32(&s.state, int32(StreamClosed))

		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()

		if wasConnected {
			StreamsConnected.Dec()
		}

		s.logger.Info("price stream closed", zap.String("symbol", s.symbol))
	})
}
