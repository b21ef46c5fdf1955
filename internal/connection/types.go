package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrFailed          = errors.New("reconnect attempts exhausted")
)

// State is the Manager's session state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Frame is a raw push frame delivered to the subscription registry.
type Frame struct {
	Data       []byte    // Raw frame bytes from the transport
	ReceivedAt time.Time // Local timestamp when the transport read returned
}

// command is a client-to-server control frame.
type command struct {
	ID     int64  `json:"id"`
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Topic  string `json:"topic"`
}

// response is a server control-frame reply, correlated by command ID.
// Push frames carry a "topic" field instead of an "id".
type response struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"` // "subscribed", "unsubscribed", "error"
	Error string          `json:"error,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// ClientConfig configures a single WebSocket transport.
type ClientConfig struct {
	URL          string        // Channel endpoint (wss://...)
	Token        string        // Bearer credential sent on the handshake
	PingTimeout  time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	URL                string        // Channel endpoint (wss://...)
	ReconnectBaseDelay time.Duration // Backoff base delay
	ReconnectMaxDelay  time.Duration // Backoff cap
	MaxAttempts        int           // Consecutive failures before Failed
	SubscribeTimeout   time.Duration // Timeout for subscribe/unsubscribe commands
	PingTimeout        time.Duration // Passed to the transport
	WriteTimeout       time.Duration // Passed to the transport
	BufferSize         int           // Frame channel buffer size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectBaseDelay: 3 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		MaxAttempts:        5,
		SubscribeTimeout:   10 * time.Second,
		PingTimeout:        60 * time.Second,
		WriteTimeout:       5 * time.Second,
		BufferSize:         1000,
	}
}

// Stats is a snapshot of the Manager's state for UI introspection.
type Stats struct {
	State    State
	Attempts int
}
