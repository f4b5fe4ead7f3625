package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"solana-entry-gate/internal/domain"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Venues restricts the subscription; empty means all venues.
	Venues []string
	// BufferSize is the capacity of the candidate channel.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		BufferSize:        256,
	}
}

// WSClient implements Client over gorilla/websocket.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *logrus.Entry

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out chan domain.Candidate

	received atomic.Int64
	rejected atomic.Int64

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSClient connects to the discovery endpoint and subscribes.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig, logger *logrus.Entry) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.WithField("component", "feed"),
		out:      make(chan domain.Candidate, cfg.BufferSize),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Candidates returns the stream of validated candidates.
func (c *WSClient) Candidates() <-chan domain.Candidate {
	return c.out
}

// Stats returns counts of accepted and rejected candidate messages.
func (c *WSClient) Stats() (received, rejected int64) {
	return c.received.Load(), c.rejected.Load()
}

// connect dials the endpoint and sends the subscription request.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(subscribeRequest{Type: msgSubscribe, Venues: c.config.Venues}); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	c.conn = conn
	return nil
}

// Close closes the WebSocket connection and the candidate channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.out)
	return nil
}

// readLoop reads messages and reconnects with exponential backoff on error.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.logger.WithError(err).WithField("delay", reconnectDelay).Warn("feed connection lost, reconnecting")
				c.wg.Add(1)
				go c.reconnect(conn, reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect replaces the broken connection after delay.
func (c *WSClient) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != broken {
		// already replaced
		c.connMu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// next read error retries
		c.logger.WithError(err).Warn("feed reconnect failed")
		return
	}
	c.logger.Info("feed reconnected")
}

// handleMessage decodes one frame and forwards valid candidates.
func (c *WSClient) handleMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.rejected.Add(1)
		c.logger.WithError(err).Debug("dropping undecodable message")
		return
	}

	switch env.Type {
	case msgCandidate:
		if env.Data == nil {
			c.rejected.Add(1)
			return
		}
		cand, err := env.Data.ToCandidate()
		if err != nil {
			c.rejected.Add(1)
			c.logger.WithError(err).WithField("address", env.Data.Address).Warn("dropping invalid candidate")
			return
		}
		c.received.Add(1)
		select {
		case c.out <- cand:
		case <-c.done:
		}
	case msgHeartbeat:
	case msgError:
		c.logger.WithField("message", env.Message).Error("feed reported error")
	default:
		c.logger.WithField("type", env.Type).Debug("ignoring message")
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// a dead connection surfaces in readLoop
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

var _ Client = (*WSClient)(nil)
