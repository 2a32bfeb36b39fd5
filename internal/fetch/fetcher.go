package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"deriv-connect/internal/model"
	"deriv-connect/internal/protocol"
)

// Errors
var (
	ErrInvalidSymbol  = errors.New("invalid symbol format")
	ErrFetchExhausted = errors.New("fetch attempts exhausted")
)

// Session is the slice of the session manager the fetcher depends on.
type Session interface {
	Connect(ctx context.Context) error
	CheckConnection(ctx context.Context) bool
	Send(ctx context.Context, req protocol.Request) (*protocol.Envelope, error)
	NextReqID() int64
}

// Config holds fetch resilience settings.
type Config struct {
	Cooldown       time.Duration // Min spacing between fetches per symbol
	CacheTTL       time.Duration // Max age for a cache entry to count as fresh
	MaxRetries     int           // Attempts per FetchSeries call
	RetryDelay     time.Duration // Base delay between attempts, doubles each retry
	OverFetch      float64       // Requested count inflation, absorbs provider gaps
	MinFillRatio   float64       // Fraction of requested records considered complete
	EscalateFactor float64       // Count escalation applied on shortfall
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cooldown:       10 * time.Second,
		CacheTTL:       15 * time.Minute,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		OverFetch:      1.2,
		MinFillRatio:   0.5,
		EscalateFactor: 1.5,
	}
}

// Options tune one FetchSeries call.
type Options struct {
	UseCache   bool // Serve cooldown hits from cache instead of waiting
	AllowStale bool // Fall back to the last cached series after exhaustion
}

// DefaultOptions enables cache use and stale fallback.
func DefaultOptions() Options {
	return Options{UseCache: true, AllowStale: true}
}

// Fetcher is the resilient read facade.
type Fetcher struct {
	cfg    Config
	sess   Session
	logger *slog.Logger

	cache *seriesCache
	rl    *rateLimiter
}

// New creates a Fetcher over the given session.
func New(cfg Config, sess Session, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:    cfg,
		sess:   sess,
		logger: logger,
		cache:  newSeriesCache(),
		rl:     newRateLimiter(),
	}
}

// ValidSymbol reports whether symbol matches a known venue format
// (forex "frx..." or synthetic "R_..." codes).
func ValidSymbol(symbol string) bool {
	return strings.HasPrefix(symbol, "frx") || strings.HasPrefix(symbol, "R_")
}

// FetchSeries fetches a candle series for (symbol, interval). Malformed
// symbols are rejected before any network activity. The per-symbol cooldown
// is never bypassed: a call inside the cooldown window either returns the
// cached series or blocks until the window elapses.
func (f *Fetcher) FetchSeries(ctx context.Context, symbol string, interval, count int, opts Options) (*model.Series, error) {
	if !ValidSymbol(symbol) {
		f.logger.Error("invalid symbol format", "symbol", symbol)
		return nil, ErrInvalidSymbol
	}
	if count < 1 {
		count = 1
	}

	k := key{symbol: symbol, interval: interval}
	rl := f.rl.entry(symbol)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.lastFetchAt.IsZero() {
		if wait := f.cfg.Cooldown - time.Since(rl.lastFetchAt); wait > 0 {
			if opts.UseCache {
				if s, ok := f.cache.get(k, f.cfg.CacheTTL); ok {
					f.logger.Debug("cooldown active, serving cached series",
						"symbol", symbol,
						"age", time.Since(s.FetchedAt),
					)
					return s, nil
				}
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	if !f.sess.CheckConnection(ctx) {
		if err := f.sess.Connect(ctx); err != nil {
			f.logger.Warn("session unavailable", "symbol", symbol, "error", err)
			return f.fallback(k, opts, err)
		}
	}

	reqCount := int(math.Ceil(float64(count) * f.cfg.OverFetch))
	if reqCount > protocol.MaxHistoryCount {
		reqCount = protocol.MaxHistoryCount
	}
	minRecords := int(float64(count) * f.cfg.MinFillRatio)

	delay := f.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		env, err := f.sess.Send(ctx, protocol.TicksHistory(symbol, interval, reqCount, f.sess.NextReqID()))
		if err != nil {
			lastErr = err
			f.logger.Warn("fetch attempt failed", "symbol", symbol, "attempt", attempt+1, "error", err)
			continue
		}
		if env.Error != nil {
			lastErr = env.Error
			f.logger.Warn("fetch rejected", "symbol", symbol, "code", env.Error.Code, "message", env.Error.Message)
			continue
		}
		if len(env.Candles) == 0 {
			lastErr = fmt.Errorf("response missing candles")
			continue
		}

		if len(env.Candles) < minRecords && attempt < f.cfg.MaxRetries-1 {
			lastErr = fmt.Errorf("short response: got %d of %d requested", len(env.Candles), count)
			escalated := int(float64(reqCount) * f.cfg.EscalateFactor)
			if escalated > protocol.MaxHistoryCount {
				escalated = protocol.MaxHistoryCount
			}
			f.logger.Warn("record shortfall, escalating count",
				"symbol", symbol,
				"got", len(env.Candles),
				"requested", count,
				"next_count", escalated,
			)
			reqCount = escalated
			continue
		}

		series := protocol.ToSeries(symbol, interval, env.Candles)
		if series.Len() > count {
			// Over-fetch margin: keep the most recent count candles.
			series.Candles = series.Candles[series.Len()-count:]
		}

		f.cache.put(k, series)
		rl.lastFetchAt = time.Now()

		f.logger.Info("fetched series",
			"symbol", symbol,
			"interval", interval,
			"candles", series.Len(),
		)
		return series.Clone(), nil
	}

	return f.fallback(k, opts, lastErr)
}

// fallback serves the last cached series, marked stale, or reports failure.
func (f *Fetcher) fallback(k key, opts Options, cause error) (*model.Series, error) {
	if opts.AllowStale {
		if s, ok := f.cache.getAny(k); ok {
			s.Stale = true
			f.logger.Warn("serving stale cached series",
				"symbol", k.symbol,
				"age", time.Since(s.FetchedAt),
				"cause", cause,
			)
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w for %s: %w", ErrFetchExhausted, k.symbol, cause)
}

// SubscribeTicks subscribes to the live tick stream for a symbol. Pushes
// arrive on the session's push channel; the returned envelope is the
// acknowledgement.
func (f *Fetcher) SubscribeTicks(ctx context.Context, symbol string) (*protocol.Envelope, error) {
	if !ValidSymbol(symbol) {
		return nil, ErrInvalidSymbol
	}

	var lastErr error
	delay := f.cfg.RetryDelay

	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		env, err := f.sess.Send(ctx, protocol.TicksSubscribe(symbol, f.sess.NextReqID()))
		if err != nil {
			lastErr = err
			continue
		}
		if env.Error != nil {
			lastErr = env.Error
			f.logger.Warn("subscribe rejected", "symbol", symbol, "code", env.Error.Code)
			continue
		}

		f.logger.Info("subscribed to ticks", "symbol", symbol)
		return env, nil
	}

	return nil, fmt.Errorf("subscribe ticks for %s: %w", symbol, lastErr)
}

// ListSymbols fetches the active symbol listing.
func (f *Fetcher) ListSymbols(ctx context.Context) ([]model.Symbol, error) {
	var lastErr error
	delay := f.cfg.RetryDelay

	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		env, err := f.sess.Send(ctx, protocol.ActiveSymbols(f.sess.NextReqID()))
		if err != nil {
			lastErr = err
			continue
		}
		if env.Error != nil {
			lastErr = env.Error
			continue
		}

		symbols := protocol.ToSymbols(env.ActiveSymbols)
		f.logger.Info("listed active symbols", "count", len(symbols))
		return symbols, nil
	}

	return nil, fmt.Errorf("list symbols: %w", lastErr)
}

// Prune evicts cache entries older than ttl and returns how many were removed.
func (f *Fetcher) Prune(ttl time.Duration) int {
	return f.cache.prune(ttl)
}
