package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"deriv-connect/internal/protocol"
)

// heartbeat probes session liveness while the session is active. Probes go
// through the shared dispatcher lock, so a slow foreground request simply
// delays the scheduled ping.
type heartbeat struct {
	m        *Manager
	done     chan struct{}
	stopOnce sync.Once
}

func newHeartbeat(m *Manager) *heartbeat {
	return &heartbeat{
		m:    m,
		done: make(chan struct{}),
	}
}

func (h *heartbeat) start() {
	go h.run()
}

// stop signals the loop to exit. It never blocks, so it is safe to call from
// within the loop's own reconnect path.
func (h *heartbeat) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *heartbeat) run() {
	ticker := time.NewTicker(h.m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			if h.m.State() != StateActive {
				continue
			}
			h.tick()
		}
	}
}

// tick runs one supervision cycle: probe, classify, escalate.
func (h *heartbeat) tick() {
	tr := h.m.transportHandle()
	if tr == nil || !tr.IsOpen() {
		h.m.logger.Warn("transport closed, attempting immediate reconnect")
		h.m.Reconnect(context.Background())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.m.cfg.PingTimeout)
	env, err := h.m.dispatcher.Send(ctx, protocol.Ping(h.m.dispatcher.NextReqID()))
	cancel()

	if h.observe(env, err) {
		h.m.logger.Warn("repeated ping failures, reconnecting")
		h.m.Reconnect(context.Background())
		return
	}

	// A session that keeps answering pings but delivers nothing else for too
	// long is presumed stalled.
	if silent := h.m.silentFor(); silent > h.m.cfg.SilenceThreshold {
		h.m.logger.Warn("no messages within silence threshold, reconnecting", "silent_for", silent)
		h.m.Reconnect(context.Background())
	}
}

// observe classifies one probe outcome and returns true once the consecutive
// failure count reaches its threshold (the counter resets at that point).
// Timeouts escalate faster than empty or malformed replies.
func (h *heartbeat) observe(env *protocol.Envelope, err error) bool {
	switch {
	case err == nil && env != nil && (env.IsPong() || env.HasData()):
		// A data frame in place of a pong still proves the channel is alive.
		h.m.notePing()
		return false

	case errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		n := h.m.addFailure()
		h.m.logger.Warn("ping timed out", "consecutive_failures", n)
		if n >= h.m.cfg.TimeoutThreshold {
			h.m.resetFailures()
			return true
		}
		return false

	default:
		n := h.m.addFailure()
		h.m.logger.Warn("ping failed", "consecutive_failures", n, "error", err)
		if n >= h.m.cfg.FailureThreshold {
			h.m.resetFailures()
			return true
		}
		return false
	}
}
