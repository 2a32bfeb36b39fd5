package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"deriv-connect/internal/model"
	"deriv-connect/internal/protocol"
)

// Manager owns the session to the venue: connection state, the authorize
// handshake, heartbeat supervision, and reconnection. It is the single
// source of truth for whether the session is usable.
type Manager struct {
	cfg        ManagerConfig
	logger     *slog.Logger
	dispatcher *Dispatcher

	// connectMu serializes connect/close sequences; mu guards session fields.
	connectMu sync.Mutex
	mu        sync.RWMutex

	tr                  Transport
	state               State
	authorized          bool
	account             model.Account
	sessionID           uuid.UUID
	lastMessageAt       time.Time
	lastPingAt          time.Time
	consecutiveFailures uint
	reconnectAttempts   uint
	userClosed          bool // Close() was called; no automatic reconnects
	inactive            bool // Reconnect budget exhausted; terminal until Connect()

	// Reconnect is single-flight: concurrent triggers share one sequence.
	reconnectSF singleflight.Group

	hb     *heartbeat
	pushes chan *protocol.Envelope
}

// NewManager creates a session manager. The session starts disconnected.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PushBufferSize <= 0 {
		cfg.PushBufferSize = 1024
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		pushes: make(chan *protocol.Envelope, cfg.PushBufferSize),
	}
	m.dispatcher = newDispatcher(m, logger)
	return m
}

// Connect establishes and authorizes the session. Idempotent: an already
// active session returns immediately. An explicit Connect also clears the
// closed and terminal-inactive marks; it is the only revival gesture, the
// reconnect path never clears them.
func (m *Manager) Connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	m.userClosed = false
	m.inactive = false
	m.mu.Unlock()

	return m.establish(ctx)
}

// establish runs the connect/authorize sequence. Callers hold connectMu.
// A session closed by the caller stays closed: a Close landing before this
// point wins over any in-flight reconnect.
func (m *Manager) establish(ctx context.Context) error {
	m.mu.Lock()
	if m.userClosed {
		m.mu.Unlock()
		return ErrSessionInactive
	}
	if m.state == StateActive && m.tr != nil && m.tr.IsOpen() {
		m.mu.Unlock()
		m.logger.Debug("connection already exists")
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	tr := NewTransport(TransportConfig{
		URL:              m.cfg.URL,
		HandshakeTimeout: DefaultTransportConfig().HandshakeTimeout,
		WriteTimeout:     DefaultTransportConfig().WriteTimeout,
		MaxMessageSize:   DefaultTransportConfig().MaxMessageSize,
	})

	if err := tr.Connect(ctx); err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("open transport: %w", err)
	}

	m.mu.Lock()
	m.tr = tr
	m.state = StateAuthorizing
	m.mu.Unlock()

	account, err := m.authorize(ctx)
	if err != nil {
		tr.Close()
		m.mu.Lock()
		m.tr = nil
		m.state = StateDisconnected
		m.authorized = false
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.account = account
	m.sessionID = uuid.New()
	m.state = StateActive
	m.authorized = true
	m.consecutiveFailures = 0
	m.reconnectAttempts = 0
	m.lastMessageAt = time.Now()
	sessionID := m.sessionID
	m.mu.Unlock()

	m.logger.Info("session active",
		"session_id", sessionID,
		"account", account.Kind,
		"balance", account.Balance,
		"currency", account.Currency,
	)

	if account.IsDemo() && account.Balance.LessThan(decimal.NewFromFloat(m.cfg.MinDemoBalance)) {
		m.logger.Warn("demo account balance low, requesting reset", "balance", account.Balance)
		if _, err := m.ResetVirtualBalance(ctx); err != nil {
			m.logger.Warn("demo balance reset failed", "error", err)
		}
	}

	m.startHeartbeat()
	return nil
}

// authorize runs the authorize handshake with bounded retries.
func (m *Manager) authorize(ctx context.Context) (model.Account, error) {
	var lastErr error = ErrAuthFailed

	for attempt := 0; attempt < m.cfg.AuthAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.Account{}, ctx.Err()
			case <-time.After(m.cfg.AuthRetryDelay):
			}
		}

		env, err := m.dispatcher.Send(ctx, protocol.Authorize(m.cfg.Token, m.dispatcher.NextReqID()))
		if err != nil {
			m.logger.Warn("authorize attempt failed", "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}

		if env.Error != nil {
			m.logger.Error("authorize rejected", "code", env.Error.Code, "message", env.Error.Message)
			lastErr = env.Error
			continue
		}

		if env.Authorize == nil {
			m.logger.Warn("authorize response missing account payload")
			lastErr = ErrAuthFailed
			continue
		}

		return env.Authorize.ToAccount(), nil
	}

	return model.Account{}, fmt.Errorf("%w: %w", ErrAuthFailed, lastErr)
}

// Close shuts the session down. Safe to call multiple times. A closed
// session performs no automatic reconnects until the next Connect.
func (m *Manager) Close() error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	m.userClosed = true
	m.mu.Unlock()

	m.teardown()
	m.logger.Info("session closed")
	return nil
}

// teardown stops the heartbeat and releases the transport. It does not touch
// the userClosed/inactive marks; callers decide those.
func (m *Manager) teardown() {
	m.mu.Lock()
	hb := m.hb
	m.hb = nil
	tr := m.tr
	m.tr = nil
	m.state = StateDisconnected
	m.authorized = false
	m.consecutiveFailures = 0
	m.lastMessageAt = time.Time{}
	m.lastPingAt = time.Time{}
	m.mu.Unlock()

	if hb != nil {
		hb.stop()
	}
	if tr != nil {
		tr.Close()
	}
}

// CheckConnection reports session health. With a fresh ping it answers from
// state alone; with no ping on record it performs one bounded inline probe.
func (m *Manager) CheckConnection(ctx context.Context) bool {
	m.mu.RLock()
	state, authorized, tr, lastPing := m.state, m.authorized, m.tr, m.lastPingAt
	m.mu.RUnlock()

	if state != StateActive || !authorized || tr == nil || !tr.IsOpen() {
		return false
	}

	if !lastPing.IsZero() {
		return time.Since(lastPing) <= m.cfg.PingFreshness
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	env, err := m.dispatcher.Send(probeCtx, protocol.Ping(m.dispatcher.NextReqID()))
	if err != nil || !env.IsPong() {
		return false
	}

	m.notePing()
	return true
}

// Reconnect runs one close/backoff/connect sequence. Concurrent triggers
// (heartbeat silence, dispatcher auth error, explicit health check) collapse
// into a single in-progress sequence whose outcome they all share.
func (m *Manager) Reconnect(ctx context.Context) error {
	_, err, _ := m.reconnectSF.Do("reconnect", func() (any, error) {
		return nil, m.reconnect(ctx)
	})
	return err
}

func (m *Manager) reconnect(ctx context.Context) error {
	m.mu.RLock()
	userClosed, inactive, attempt := m.userClosed, m.inactive, m.reconnectAttempts
	m.mu.RUnlock()

	if userClosed {
		m.logger.Debug("not reconnecting, session closed by caller")
		return ErrSessionInactive
	}
	if inactive {
		return ErrMaxReconnects
	}

	m.teardown()

	delay := m.cfg.Backoff.Delay(attempt)
	m.logger.Info("attempting reconnection",
		"attempt", attempt+1,
		"max_attempts", m.cfg.Backoff.MaxAttempts,
		"delay", delay,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	// A Close may have landed during the backoff sleep.
	m.mu.RLock()
	userClosed = m.userClosed
	m.mu.RUnlock()
	if userClosed {
		m.logger.Debug("not reconnecting, session closed during backoff")
		return ErrSessionInactive
	}

	m.connectMu.Lock()
	err := m.establish(ctx)
	m.connectMu.Unlock()

	if errors.Is(err, ErrSessionInactive) {
		return err
	}
	if err != nil {
		m.mu.Lock()
		m.reconnectAttempts++
		exhausted := m.cfg.Backoff.Exhausted(m.reconnectAttempts)
		if exhausted {
			m.inactive = true
		}
		attempts := m.reconnectAttempts
		m.mu.Unlock()

		if exhausted {
			m.logger.Error("maximum reconnection attempts reached", "attempts", attempts)
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxReconnects, attempts, err)
		}
		return fmt.Errorf("reconnect attempt %d: %w", attempts, err)
	}

	m.logger.Info("reconnection successful", "attempts_used", attempt+1)
	return nil
}

// Send performs one serialized request/response round trip.
func (m *Manager) Send(ctx context.Context, req protocol.Request) (*protocol.Envelope, error) {
	return m.dispatcher.Send(ctx, req)
}

// NextReqID allocates a request sequence number for consumers that build
// their own requests.
func (m *Manager) NextReqID() int64 {
	return m.dispatcher.NextReqID()
}

// Pushes returns the stream of unsolicited subscription frames (tick/ohlc).
// Frames are dropped with a warning when the buffer is full.
func (m *Manager) Pushes() <-chan *protocol.Envelope {
	return m.pushes
}

// Session returns a point-in-time snapshot of session state.
func (m *Manager) Session() SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SessionInfo{
		ID:                  m.sessionID,
		State:               m.state,
		Authorized:          m.authorized,
		Account:             m.account,
		LastMessageAt:       m.lastMessageAt,
		LastPingAt:          m.lastPingAt,
		ConsecutiveFailures: m.consecutiveFailures,
		ReconnectAttempts:   m.reconnectAttempts,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ServerTime fetches the venue clock.
func (m *Manager) ServerTime(ctx context.Context) (time.Time, error) {
	env, err := m.dispatcher.Send(ctx, protocol.ServerTime(m.dispatcher.NextReqID()))
	if err != nil {
		return time.Time{}, err
	}
	if env.Error != nil {
		return time.Time{}, env.Error
	}
	return time.Unix(env.Time, 0), nil
}

// ResetVirtualBalance resets a demo account balance. Refused for real
// accounts.
func (m *Manager) ResetVirtualBalance(ctx context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	account := m.account
	m.mu.RUnlock()

	if !account.IsDemo() {
		return decimal.Zero, fmt.Errorf("balance reset refused for real account")
	}

	env, err := m.dispatcher.Send(ctx, protocol.ResetBalance(m.dispatcher.NextReqID()))
	if err != nil {
		return decimal.Zero, err
	}
	if env.Error != nil {
		return decimal.Zero, env.Error
	}
	if env.ResetBalance == nil {
		return decimal.Zero, fmt.Errorf("reset_balance response missing payload")
	}

	m.mu.Lock()
	m.account.Balance = env.ResetBalance.Balance
	m.mu.Unlock()

	m.logger.Info("demo balance reset", "balance", env.ResetBalance.Balance)
	return env.ResetBalance.Balance, nil
}

// startHeartbeat replaces any running heartbeat with a fresh one.
func (m *Manager) startHeartbeat() {
	m.mu.Lock()
	old := m.hb
	m.hb = newHeartbeat(m)
	hb := m.hb
	m.mu.Unlock()

	if old != nil {
		old.stop()
	}
	hb.start()
}

// transportHandle returns the current transport, or nil.
func (m *Manager) transportHandle() Transport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tr
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// noteMessage records that an inbound frame of any kind was observed.
func (m *Manager) noteMessage() {
	m.mu.Lock()
	m.lastMessageAt = time.Now()
	m.mu.Unlock()
}

// notePing records a successful liveness probe.
func (m *Manager) notePing() {
	now := time.Now()
	m.mu.Lock()
	m.lastPingAt = now
	m.lastMessageAt = now
	m.consecutiveFailures = 0
	m.mu.Unlock()
}

// addFailure increments the consecutive probe failure counter.
func (m *Manager) addFailure() uint {
	m.mu.Lock()
	m.consecutiveFailures++
	n := m.consecutiveFailures
	m.mu.Unlock()
	return n
}

// resetFailures clears the consecutive probe failure counter.
func (m *Manager) resetFailures() {
	m.mu.Lock()
	m.consecutiveFailures = 0
	m.mu.Unlock()
}

// markUnauthorized flags the session as needing a fresh authorize.
func (m *Manager) markUnauthorized() {
	m.mu.Lock()
	m.authorized = false
	m.mu.Unlock()
}

// silentFor reports how long the session has gone without any inbound frame.
func (m *Manager) silentFor() time.Duration {
	m.mu.RLock()
	last := m.lastMessageAt
	m.mu.RUnlock()
	if last.IsZero() {
		return 0
	}
	return time.Since(last)
}

// deliverPush forwards an unsolicited frame to subscribers without blocking.
func (m *Manager) deliverPush(env *protocol.Envelope) {
	select {
	case m.pushes <- env:
	default:
		m.logger.Warn("push buffer full, dropping frame", "msg_type", env.MsgType)
	}
}
