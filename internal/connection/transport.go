package connection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deriv-connect/internal/version"
)

// Transport is a single bidirectional message connection to the venue. It
// owns the raw send/receive primitive only; serialization and retry live in
// the dispatcher.
type Transport interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection. Safe to call multiple times.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Receive returns the next inbound frame, waiting until deadline at
	// most. A deadline expiry returns ErrTimeout and leaves the connection
	// usable; the frame, if it arrives late, stays queued for the next call.
	Receive(deadline time.Time) ([]byte, error)

	// IsOpen returns current connection state.
	IsOpen() bool
}

// wsTransport implements Transport over gorilla/websocket. A read pump
// goroutine feeds inbound frames into a channel so that receive timeouts
// never touch the socket's read deadline.
type wsTransport struct {
	cfg TransportConfig

	mu      sync.RWMutex
	conn    *websocket.Conn
	open    bool
	closed  bool
	readErr error

	writeMu sync.Mutex

	frames chan []byte
	done   chan struct{}
}

// NewTransport creates an unconnected WebSocket transport.
func NewTransport(cfg TransportConfig) Transport {
	return &wsTransport{cfg: cfg}
}

// Connect establishes the WebSocket connection and starts the read pump.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.mu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "deriv-connect/"+version.Version)

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return err
	}

	if t.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(t.cfg.MaxMessageSize)
	}

	t.mu.Lock()
	t.conn = conn
	t.open = true
	t.frames = make(chan []byte, 256)
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop(conn)

	return nil
}

// readLoop pumps inbound frames into the frames channel until the
// connection fails or the transport is closed.
func (t *wsTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.open = false
			if t.readErr == nil {
				t.readErr = err
			}
			t.mu.Unlock()
			close(t.frames)
			return
		}

		select {
		case t.frames <- data:
		case <-t.done:
			return
		}
	}
}

// Close gracefully closes the connection.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.open = false
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	if done != nil {
		close(done)
	}

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	if !t.open {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.mu.Lock()
		t.open = false
		t.mu.Unlock()
		return err
	}
	return nil
}

// Receive returns the next frame, waiting until deadline at most.
func (t *wsTransport) Receive(deadline time.Time) ([]byte, error) {
	t.mu.RLock()
	frames := t.frames
	t.mu.RUnlock()

	if frames == nil {
		return nil, ErrNotConnected
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		return nil, ErrTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case data, ok := <-frames:
		if !ok {
			return nil, t.receiveErr()
		}
		return data, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// IsOpen returns the current connection state.
func (t *wsTransport) IsOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

func (t *wsTransport) receiveErr() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.readErr != nil {
		return t.readErr
	}
	return ErrNotConnected
}
