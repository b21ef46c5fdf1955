package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket transport to the push channel. It is
// single-use: once closed (explicitly or by a transport error) the
// Manager discards it and dials a fresh one.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan Frame
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewClient creates a new WebSocket transport.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Frame, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and
// heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server-initiated ping: respond with pong and refresh liveness.
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Pong replies to our own keepalive pings.
	conn.SetPongHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the channel of raw incoming frames.
func (c *Client) Messages() <-chan Frame {
	return c.messages
}

// Errors returns the channel of transport errors. At most one error is
// delivered; the transport is dead afterwards.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current transport state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames from the WebSocket into the messages channel.
func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors after Close() are expected teardown noise.
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		select {
		case c.messages <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// heartbeatLoop sends keepalive pings and flags silently-dead
// connections, which take the same recovery path as an explicit close.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
