package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/driftlab/feedsync/internal/session"
)

// Handle identifies one transport-level subscription. Handles are bound
// to the connection generation they were issued on; a reconnect
// invalidates every outstanding handle and the registry re-issues them.
type Handle struct {
	Topic string

	epoch uint64
}

// Manager owns the single logical connection to the push channel. At
// most one live transport exists at a time; concurrent Connect calls
// share one in-flight dial attempt.
type Manager struct {
	cfg    ManagerConfig
	tokens session.TokenSource
	logger *slog.Logger

	// connectGroup collapses concurrent Connect calls onto the single
	// in-flight dial.
	connectGroup singleflight.Group

	// frames is the stable output channel surviving reconnects.
	frames chan Frame

	// Lifecycle hooks, set before the first Connect. onConnected fires
	// after every successful dial (registry resubscription);
	// onDisconnect fires at the start of an explicit Disconnect
	// (registry subscription teardown).
	onConnected  func()
	onDisconnect func()

	mu             sync.Mutex
	state          State
	attempts       int
	epoch          uint64
	client         *Client
	stop           chan struct{}
	reconnectTimer *time.Timer

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan response
	cmdID     atomic.Int64
}

// NewManager creates a connection Manager. The token source supplies
// the bearer credential for the channel handshake.
func NewManager(cfg ManagerConfig, tokens session.TokenSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:     cfg,
		tokens:  tokens,
		logger:  logger,
		frames:  make(chan Frame, cfg.BufferSize),
		state:   StateDisconnected,
		pending: make(map[int64]chan response),
	}
}

// SetOnConnected registers the hook fired after each successful
// connect. Must be called before the first Connect.
func (m *Manager) SetOnConnected(fn func()) { m.onConnected = fn }

// SetOnDisconnect registers the hook fired when Disconnect begins.
// Must be called before the first Connect.
func (m *Manager) SetOnDisconnect(fn func()) { m.onDisconnect = fn }

// Frames returns the channel of raw push frames. The channel is stable
// across reconnects.
func (m *Manager) Frames() <-chan Frame {
	return m.frames
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current reports whether a handle belongs to the live connection
// generation. Zero handles and handles from a previous generation are
// not current.
func (m *Manager) Current(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && h.epoch != 0 && h.epoch == m.epoch
}

// Stats returns a snapshot for UI introspection.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{State: m.state, Attempts: m.attempts}
}

// Connect establishes the channel connection. It is idempotent: when
// already connected it returns immediately, and a call made while an
// attempt is in flight joins that attempt instead of dialing a second
// transport. An explicit Connect after Failed resets the attempt
// counter and retries.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateFailed:
		m.attempts = 0
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	_, err, _ := m.connectGroup.Do("connect", func() (any, error) {
		return nil, m.dial(ctx)
	})
	return err
}

// Disconnect tears down the subscription layer and the transport and
// resets to Disconnected. Topic-to-callback mappings are owned by the
// registry and survive for future resubscription.
func (m *Manager) Disconnect() {
	if m.onDisconnect != nil {
		m.onDisconnect()
	}

	m.mu.Lock()
	m.stopReconnectTimerLocked()
	client := m.client
	m.client = nil
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.state = StateDisconnected
	m.attempts = 0
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}
	m.failPending("disconnected")

	m.logger.Info("channel disconnected")
}

// Subscribe issues a transport-level subscription for a topic and
// returns its handle. The caller must hold a connected Manager.
func (m *Manager) Subscribe(ctx context.Context, topic string) (Handle, error) {
	epoch, err := m.sendCommand(ctx, "subscribe", topic)
	if err != nil {
		return Handle{}, err
	}

	m.logger.Debug("subscribed", "topic", topic)
	return Handle{Topic: topic, epoch: epoch}, nil
}

// Unsubscribe tears down a transport-level subscription. A handle from
// a previous connection generation is already gone server-side, so it
// unsubscribes to nothing and returns nil.
func (m *Manager) Unsubscribe(ctx context.Context, h Handle) error {
	m.mu.Lock()
	current := m.epoch
	m.mu.Unlock()
	if h.epoch != current {
		return nil
	}

	if _, err := m.sendCommand(ctx, "unsubscribe", h.Topic); err != nil {
		return err
	}

	m.logger.Debug("unsubscribed", "topic", h.Topic)
	return nil
}

// dial performs one connection attempt. Callers go through
// connectGroup so only one dial runs at a time.
func (m *Manager) dial(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.stopReconnectTimerLocked()
	if m.state != StateReconnecting {
		m.state = StateConnecting
	}
	m.attempts++
	attempt := m.attempts
	cfg := ClientConfig{
		URL:          m.cfg.URL,
		Token:        m.tokens.Token(),
		PingTimeout:  m.cfg.PingTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.BufferSize,
	}
	m.mu.Unlock()

	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		m.logger.Warn("connect attempt failed",
			"attempt", attempt,
			"error", err,
		)

		m.mu.Lock()
		m.transitionAfterFailureLocked()
		failed := m.state == StateFailed
		m.mu.Unlock()

		if failed {
			return fmt.Errorf("%w: %v", ErrFailed, err)
		}
		return err
	}

	stop := make(chan struct{})
	m.mu.Lock()
	m.client = client
	m.stop = stop
	m.epoch++
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()

	go m.pump(client, stop)

	m.logger.Info("channel connected", "url", m.cfg.URL, "attempt", attempt)

	if m.onConnected != nil {
		go m.onConnected()
	}

	return nil
}

// pump forwards one transport's frames to the stable output channel and
// correlates command responses, until the transport dies or is stopped.
func (m *Manager) pump(client *Client, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case err := <-client.Errors():
			m.logger.Warn("channel transport error", "error", err)
			client.Close()

			m.mu.Lock()
			if m.client != client {
				// A newer transport already took over.
				m.mu.Unlock()
				return
			}
			m.client = nil
			m.stop = nil
			m.transitionAfterFailureLocked()
			m.mu.Unlock()

			m.failPending("connection lost")
			return

		case msg, ok := <-client.Messages():
			if !ok {
				return
			}

			if resp, ok := tryParseResponse(msg.Data); ok {
				m.routeResponse(resp)
				continue
			}

			select {
			case m.frames <- msg:
			default:
				m.logger.Warn("frame buffer full, dropping frame")
			}
		}
	}
}

// transitionAfterFailureLocked moves to Reconnecting with a scheduled
// retry, or to Failed once the attempt budget is spent. Caller holds mu.
func (m *Manager) transitionAfterFailureLocked() {
	if m.attempts >= m.cfg.MaxAttempts {
		m.state = StateFailed
		m.stopReconnectTimerLocked()
		m.logger.Error("reconnect attempts exhausted",
			"attempts", m.attempts,
			"max_attempts", m.cfg.MaxAttempts,
		)
		return
	}

	m.state = StateReconnecting
	delay := backoffDelay(m.attempts, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
	m.scheduleReconnectLocked(delay)
}

// scheduleReconnectLocked arms the reconnect timer, replacing any
// pending one so a single timer exists at a time. Caller holds mu.
func (m *Manager) scheduleReconnectLocked(delay time.Duration) {
	m.stopReconnectTimerLocked()

	m.logger.Info("scheduling reconnect", "delay", delay, "attempts", m.attempts)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnectAttempt)
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// reconnectAttempt runs when the backoff timer fires.
func (m *Manager) reconnectAttempt() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.connectGroup.Do("connect", func() (any, error) {
		return nil, m.dial(context.Background())
	})
}

// backoffDelay computes the delay before the next attempt after
// `attempts` consecutive failures: base * 1.5^(attempts-1), capped.
func backoffDelay(attempts int, base, maxDelay time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := time.Duration(float64(base) * math.Pow(1.5, float64(attempts-1)))
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// sendCommand sends a control frame and waits for the correlated
// response. Returns the connection generation the command ran on.
func (m *Manager) sendCommand(ctx context.Context, action, topic string) (uint64, error) {
	m.mu.Lock()
	client := m.client
	epoch := m.epoch
	m.mu.Unlock()

	if client == nil {
		return 0, ErrNotConnected
	}

	id := m.cmdID.Add(1)
	respCh := make(chan response, 1)

	m.pendingMu.Lock()
	m.pending[id] = respCh
	m.pendingMu.Unlock()

	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	}()

	data, _ := json.Marshal(command{ID: id, Action: action, Topic: topic})
	if err := client.Send(data); err != nil {
		return 0, err
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(m.cfg.SubscribeTimeout):
		return 0, ErrTimeout
	case resp := <-respCh:
		if resp.Type == "error" {
			return 0, fmt.Errorf("%s %s: %s", action, topic, resp.Error)
		}
		return epoch, nil
	}
}

// tryParseResponse attempts to parse a frame as a command response.
// Push frames carry a topic instead of a command id.
func tryParseResponse(data []byte) (response, bool) {
	if !bytes.Contains(data, []byte(`"id":`)) {
		return response{}, false
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return response{}, false
	}

	switch resp.Type {
	case "subscribed", "unsubscribed", "error", "ok":
		return resp, true
	}

	return response{}, false
}

// routeResponse delivers a response to the goroutine waiting on it.
func (m *Manager) routeResponse(resp response) {
	m.pendingMu.Lock()
	ch, ok := m.pending[resp.ID]
	if ok {
		delete(m.pending, resp.ID)
	}
	m.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// failPending flushes every waiter with an error response after the
// transport is gone.
func (m *Manager) failPending(reason string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	for id, ch := range m.pending {
		select {
		case ch <- response{ID: id, Type: "error", Error: reason}:
		default:
		}
		delete(m.pending, id)
	}
}
