package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"deriv-connect/internal/protocol"
)

// Dispatcher serializes all outbound requests over the shared transport:
// at most one request is ever in flight, including heartbeat pings. The
// lock is held for the full send+receive round trip, so concurrent callers
// queue on it instead of racing the wire.
type Dispatcher struct {
	mgr    *Manager
	logger *slog.Logger

	mu    sync.Mutex
	reqID atomic.Int64 // Process-lifetime counter, never reset
}

func newDispatcher(mgr *Manager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mgr:    mgr,
		logger: logger,
	}
}

// NextReqID allocates a request sequence number.
func (d *Dispatcher) NextReqID() int64 {
	return d.reqID.Add(1)
}

// Send performs one request/response round trip. A closed transport triggers
// a single reconnect (only for an established session) and the send is
// retried up to the configured attempt budget with growing delays.
//
// API-level errors are reported, not swallowed: the envelope carrying the
// error is returned to the caller with a nil error. Authentication errors
// additionally mark the session unauthorized and schedule a reconnect so the
// next caller gets a fresh session.
func (d *Dispatcher) Send(ctx context.Context, req protocol.Request) (*protocol.Envelope, error) {
	if _, ok := req["req_id"]; !ok {
		req["req_id"] = d.NextReqID()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	reqID, _ := req["req_id"].(int64)

	cfg := d.mgr.cfg
	var lastErr error

	for attempt := 0; attempt < cfg.SendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.SendRetryDelay * time.Duration(attempt)):
			}
		}

		tr := d.mgr.transportHandle()
		if tr == nil || !tr.IsOpen() {
			lastErr = ErrNotConnected
			// One reconnect for a session that is meant to stay up;
			// during connect/authorize the transport was just dialed,
			// so this path cannot recurse.
			if attempt == 0 && d.mgr.State() == StateActive {
				if err := d.mgr.Reconnect(ctx); err != nil {
					d.logger.Warn("reconnect before send failed", "error", err)
				}
			}
			continue
		}

		env, err := d.roundTrip(ctx, tr, data, reqID)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrTimeout) || errors.Is(err, ctx.Err()) {
				return nil, err
			}
			d.logger.Warn("send attempt failed",
				"attempt", attempt+1,
				"req_id", reqID,
				"error", err,
			)
			continue
		}

		d.inspect(env)
		return env, nil
	}

	return nil, fmt.Errorf("send failed after %d attempts: %w", cfg.SendAttempts, lastErr)
}

// roundTrip writes the request and reads frames until the matching response
// or the deadline. Unmatched frames are forwarded as subscription pushes;
// responses are correlated by req_id, never by arrival order alone.
func (d *Dispatcher) roundTrip(ctx context.Context, tr Transport, data []byte, reqID int64) (*protocol.Envelope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := tr.Send(data); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.mgr.cfg.RequestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := tr.Receive(deadline)
		if err != nil {
			return nil, err
		}

		d.mgr.noteMessage()

		env, err := protocol.ParseEnvelope(frame)
		if err != nil {
			d.logger.Warn("dropping unparseable frame", "error", err)
			continue
		}

		if env.ReqID == reqID {
			return env, nil
		}

		if env.IsPush() {
			d.mgr.deliverPush(env)
			continue
		}

		// A reply for some other req_id; with strict serialization this
		// means an earlier timed-out request answered late.
		d.logger.Debug("discarding stray response",
			"got_req_id", env.ReqID,
			"want_req_id", reqID,
		)
	}
}

// inspect applies dispatcher-level response handling.
func (d *Dispatcher) inspect(env *protocol.Envelope) {
	if env.Error == nil {
		return
	}

	if env.Error.IsAuthError() {
		d.logger.Error("authentication error", "code", env.Error.Code, "message", env.Error.Message)
		d.mgr.markUnauthorized()
		if d.mgr.State() == StateActive {
			go d.mgr.Reconnect(context.Background())
		}
		return
	}

	d.logger.Warn("api error", "code", env.Error.Code, "message", env.Error.Message)
}
