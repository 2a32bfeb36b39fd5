package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"deriv-connect/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSessionInactive = errors.New("session closed by caller")
	ErrMaxReconnects   = errors.New("maximum reconnection attempts reached")
	ErrAuthFailed      = errors.New("authorization failed")
)

// State is the session lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateAuthorizing  State = "authorizing"
	StateActive       State = "active"
	StateClosing      State = "closing"
)

// SessionInfo is a point-in-time snapshot of the session.
type SessionInfo struct {
	ID                  uuid.UUID // Assigned per successful connect, for log correlation
	State               State
	Authorized          bool
	Account             model.Account
	LastMessageAt       time.Time
	LastPingAt          time.Time
	ConsecutiveFailures uint
	ReconnectAttempts   uint
}

// TransportConfig configures a WebSocket transport.
type TransportConfig struct {
	URL              string        // Full endpoint including app_id query
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	MaxMessageSize   int64         // Inbound frame size cap
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxMessageSize:   10 * 1024 * 1024,
	}
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	URL   string // Full WebSocket endpoint including app_id query
	Token string // API token for authorize

	AuthAttempts   int           // Authorize retries before connect fails
	AuthRetryDelay time.Duration // Spacing between authorize retries
	RequestTimeout time.Duration // Response deadline per round trip
	SendAttempts   int           // Dispatcher send retries on transport failure
	SendRetryDelay time.Duration // Base spacing between send retries

	PingInterval     time.Duration // Heartbeat probe spacing
	PingTimeout      time.Duration // Heartbeat probe deadline
	PingFreshness    time.Duration // Max ping age for CheckConnection
	SilenceThreshold time.Duration // Max time without any inbound message
	FailureThreshold uint          // Empty/invalid ping replies before reconnect
	TimeoutThreshold uint          // Ping timeouts before reconnect

	Backoff        BackoffPolicy
	MinDemoBalance float64 // Demo balance below which a reset is requested
	PushBufferSize int     // Buffer for unsolicited subscription pushes
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AuthAttempts:     3,
		AuthRetryDelay:   2 * time.Second,
		RequestTimeout:   30 * time.Second,
		SendAttempts:     3,
		SendRetryDelay:   2 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      20 * time.Second,
		PingFreshness:    90 * time.Second,
		SilenceThreshold: 60 * time.Second,
		FailureThreshold: 3,
		TimeoutThreshold: 2,
		Backoff:          DefaultBackoffPolicy(),
		MinDemoBalance:   1000,
		PushBufferSize:   1024,
	}
}
