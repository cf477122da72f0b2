package mexc

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultWSURL  = "wss://wbs.mexc.com/ws"
	tickerChannel = "spot@public.miniTicker.v3.api"
	tickerSub     = "spot@public.miniTicker.v3.api@UTC+0"
)

// ConnState is owned exclusively by the stream client.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Tick is a parsed ticker update handed to the ingestion worker.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

type StreamConfig struct {
	URL           string
	MaxReconnects int
	PingInterval  time.Duration
	Backoff       BackoffConfig
	TickBuffer    int
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:           defaultWSURL,
		MaxReconnects: 10,
		PingInterval:  30 * time.Second,
		Backoff:       DefaultBackoffConfig(),
		TickBuffer:    1024,
	}
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type wsMessage struct {
	Channel string     `json:"c"`
	Data    tickerData `json:"d"`
}

type tickerData struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"p"`
	Timestamp int64  `json:"t"`
}

// StreamClient maintains a long-lived subscription to the MEXC ticker stream.
// Parsed ticks are delivered on a bounded channel so ordering is preserved per
// connection; the read loop never blocks on a slow consumer.
type StreamClient struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	logger *logrus.Logger

	// onStateChange, when set, is invoked after every state transition.
	onStateChange func(ConnState)

	mu             sync.Mutex
	conn           *websocket.Conn
	state          ConnState
	attempt        int
	reconnectTimer *time.Timer
	pingStop       chan struct{}
	closed         bool

	ticks    chan Tick
	down     chan struct{}
	downOnce sync.Once
}

func NewStreamClient(cfg StreamConfig, logger *logrus.Logger) *StreamClient {
	if cfg.URL == "" {
		cfg.URL = defaultWSURL
	}
	if cfg.TickBuffer <= 0 {
		cfg.TickBuffer = 1024
	}
	return &StreamClient{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
		state:  StateDisconnected,
		ticks:  make(chan Tick, cfg.TickBuffer),
		down:   make(chan struct{}),
	}
}

// SetStateChangeHook registers a callback fired on every transition. Must be
// called before Connect.
func (c *StreamClient) SetStateChangeHook(fn func(ConnState)) {
	c.onStateChange = fn
}

// Ticks returns the channel carrying parsed ticker updates.
func (c *StreamClient) Ticks() <-chan Tick {
	return c.ticks
}

// Down is closed when the reconnect-attempt cap is exhausted and the stream
// is permanently down for this process.
func (c *StreamClient) Down() <-chan struct{} {
	return c.down
}

func (c *StreamClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamClient) Connected() bool {
	return c.State() == StateConnected
}

// Connect dials the stream. It is idempotent: a call while connecting or
// connected is a no-op.
func (c *StreamClient) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("stream client is shut down")
	}
	if c.state == StateConnecting || c.state == StateConnected {
		c.logger.Warn("Already connecting or connected, skipping connect attempt")
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	attempt := c.attempt
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"url":     c.cfg.URL,
		"attempt": attempt + 1,
	}).Info("Connecting to MEXC WebSocket")

	conn, _, err := c.dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.logger.WithError(err).Error("Failed to connect to MEXC WebSocket")
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("stream client is shut down")
	}
	c.conn = conn
	c.attempt = 0
	c.setStateLocked(StateConnected)
	c.pingStop = make(chan struct{})
	pingStop := c.pingStop
	c.mu.Unlock()

	if err := c.subscribe(conn); err != nil {
		c.logger.WithError(err).Error("Failed to subscribe to ticker stream")
		c.handleClose(conn)
		return err
	}

	go c.readLoop(conn)
	go c.keepAlive(conn, pingStop)

	c.logger.Info("MEXC WebSocket connected")
	return nil
}

func (c *StreamClient) subscribe(conn *websocket.Conn) error {
	sub := subscribeMessage{
		Method: "SUBSCRIPTION",
		Params: []string{tickerSub},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}
	c.logger.WithField("channel", tickerSub).Info("Subscribed to MEXC ticker stream")
	return nil
}

func (c *StreamClient) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.WithError(err).Warn("WebSocket read failed")
			c.handleClose(conn)
			return
		}
		c.handleMessage(raw)
	}
}

func (c *StreamClient) handleMessage(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.WithError(err).WithField("payload", truncate(string(raw), 200)).
			Warn("Dropping malformed message")
		return
	}
	if !strings.HasPrefix(msg.Channel, tickerChannel) {
		return
	}
	if msg.Data.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(msg.Data.LastPrice)
	if err != nil {
		c.logger.WithField("symbol", msg.Data.Symbol).Warn("Dropping tick with unparsable price")
		return
	}

	ts := time.Now()
	if msg.Data.Timestamp > 0 {
		ts = time.UnixMilli(msg.Data.Timestamp)
	}

	select {
	case c.ticks <- Tick{Symbol: msg.Data.Symbol, Price: price, Timestamp: ts}:
	default:
		c.logger.WithField("symbol", msg.Data.Symbol).Warn("Tick buffer full, dropping tick")
	}
}

func (c *StreamClient) keepAlive(conn *websocket.Conn, stop chan struct{}) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.logger.WithError(err).Warn("Failed to send ping")
				c.handleClose(conn)
				return
			}
		}
	}
}

// handleClose transitions to disconnected and schedules a reconnect. Stale
// connections (already replaced) are ignored so a late read error cannot
// tear down a fresh connection.
func (c *StreamClient) handleClose(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}

	c.conn = nil
	conn.Close()
	c.stopPingLocked()
	c.setStateLocked(StateDisconnected)

	c.logger.WithField("reconnectAttempt", c.attempt).Warn("WebSocket connection closed")

	if c.closed {
		return
	}
	c.scheduleReconnectLocked()
}

func (c *StreamClient) scheduleReconnectLocked() {
	if c.attempt >= c.cfg.MaxReconnects {
		c.logger.WithField("maxAttempts", c.cfg.MaxReconnects).
			Error("Max reconnection attempts reached, giving up")
		c.downOnce.Do(func() { close(c.down) })
		return
	}

	c.setStateLocked(StateReconnecting)

	delay := BackoffDelay(c.attempt, c.cfg.Backoff)
	c.attempt++

	c.logger.WithFields(logrus.Fields{
		"attempt": c.attempt,
		"delayMs": delay.Milliseconds(),
	}).Info("Scheduling reconnection")

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		// Timer fired while reconnecting; clear the transient state so
		// Connect's idempotency check does not short-circuit.
		if c.state == StateReconnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.Connect()
	})
}

// Shutdown cancels pending reconnect and ping timers, closes the socket and
// forces the state to disconnected. Safe to call from any state.
func (c *StreamClient) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopPingLocked()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.setStateLocked(StateDisconnected)
	c.attempt = 0

	c.logger.Info("MEXC WebSocket client shut down")
}

func (c *StreamClient) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}

func (c *StreamClient) setStateLocked(s ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
