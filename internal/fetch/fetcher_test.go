package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deriv-connect/internal/protocol"
)

// fakeSession is a scripted stand-in for the session manager.
type fakeSession struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	connectCalls int
	sendCalls    int
	sentCounts   []int // "count" field of each ticks_history request
	handler      func(req protocol.Request) (*protocol.Envelope, error)

	reqID atomic.Int64
}

func (s *fakeSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectCalls++
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) CheckConnection(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) Send(ctx context.Context, req protocol.Request) (*protocol.Envelope, error) {
	s.mu.Lock()
	s.sendCalls++
	if c, ok := req["count"].(int); ok {
		s.sentCounts = append(s.sentCounts, c)
	}
	handler := s.handler
	s.mu.Unlock()
	return handler(req)
}

func (s *fakeSession) NextReqID() int64 {
	return s.reqID.Add(1)
}

func (s *fakeSession) calls() (connects, sends int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectCalls, s.sendCalls
}

// candleEnv builds a reply carrying n candles with ascending epochs.
func candleEnv(n int) *protocol.Envelope {
	base := int64(1700000000)
	candles := make([]protocol.RawCandle, n)
	for i := range candles {
		candles[i] = protocol.RawCandle{
			Epoch: base + int64(i)*60,
			Open:  1.0, High: 1.2, Low: 0.9, Close: 1.1,
		}
	}
	return &protocol.Envelope{Candles: candles}
}

func testFetchConfig() Config {
	return Config{
		Cooldown:       50 * time.Millisecond,
		CacheTTL:       time.Minute,
		MaxRetries:     3,
		RetryDelay:     5 * time.Millisecond,
		OverFetch:      1.2,
		MinFillRatio:   0.5,
		EscalateFactor: 1.5,
	}
}

func TestValidSymbol(t *testing.T) {
	valid := []string{"frxEURUSD", "frxGBPJPY", "R_100", "R_10"}
	invalid := []string{"", "EURUSD", "rx_100", "100_R", "FRXEURUSD"}

	for _, s := range valid {
		if !ValidSymbol(s) {
			t.Errorf("ValidSymbol(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidSymbol(s) {
			t.Errorf("ValidSymbol(%q) = true, want false", s)
		}
	}
}

func TestFetchSeries_InvalidSymbolNoNetwork(t *testing.T) {
	sess := &fakeSession{connected: true}
	f := New(testFetchConfig(), sess, nil)

	_, err := f.FetchSeries(context.Background(), "EURUSD", 60, 10, DefaultOptions())
	if !errors.Is(err, ErrInvalidSymbol) {
		t.Fatalf("err = %v, want ErrInvalidSymbol", err)
	}

	connects, sends := sess.calls()
	if connects != 0 || sends != 0 {
		t.Errorf("connects = %d, sends = %d, want no network activity", connects, sends)
	}
}

func TestFetchSeries_OverFetchesAndTrims(t *testing.T) {
	sess := &fakeSession{connected: true}
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		return candleEnv(req["count"].(int)), nil
	}
	f := New(testFetchConfig(), sess, nil)

	s, err := f.FetchSeries(context.Background(), "frxEURUSD", 60, 10, DefaultOptions())
	if err != nil {
		t.Fatalf("FetchSeries failed: %v", err)
	}

	if got := sess.sentCounts[0]; got != 12 {
		t.Errorf("requested count = %d, want 12 (10 with over-fetch margin)", got)
	}
	if s.Len() != 10 {
		t.Fatalf("Len() = %d, want trimmed to 10", s.Len())
	}
	// The trim keeps the most recent candles
	if first := s.Candles[0].Epoch; first != 1700000000+2*60 {
		t.Errorf("first epoch = %d, oldest candles should be trimmed", first)
	}
	if s.Stale {
		t.Error("fresh fetch marked stale")
	}
}

func TestFetchSeries_CooldownServesCache(t *testing.T) {
	sess := &fakeSession{connected: true}
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		return candleEnv(req["count"].(int)), nil
	}
	f := New(testFetchConfig(), sess, nil)

	first, err := f.FetchSeries(context.Background(), "R_100", 60, 10, DefaultOptions())
	if err != nil {
		t.Fatalf("first FetchSeries failed: %v", err)
	}
	first.Candles[0].Close = 999 // callers own their result

	// Inside the cooldown window: served from cache, no second request
	s, err := f.FetchSeries(context.Background(), "R_100", 60, 10, DefaultOptions())
	if err != nil {
		t.Fatalf("second FetchSeries failed: %v", err)
	}
	if s.Stale {
		t.Error("cached-but-fresh series marked stale")
	}
	if s.Candles[0].Close == 999 {
		t.Error("cache corrupted through a previously returned series")
	}
	if _, sends := sess.calls(); sends != 1 {
		t.Errorf("sends = %d, want 1 (cooldown hit served from cache)", sends)
	}
}

func TestFetchSeries_CooldownBlocksWithoutCache(t *testing.T) {
	sess := &fakeSession{connected: true}
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		return candleEnv(req["count"].(int)), nil
	}
	f := New(testFetchConfig(), sess, nil)

	if _, err := f.FetchSeries(context.Background(), "R_100", 60, 10, DefaultOptions()); err != nil {
		t.Fatalf("first FetchSeries failed: %v", err)
	}

	opts := DefaultOptions()
	opts.UseCache = false

	start := time.Now()
	if _, err := f.FetchSeries(context.Background(), "R_100", 60, 10, opts); err != nil {
		t.Fatalf("second FetchSeries failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second fetch returned after %v, should have waited out the cooldown", elapsed)
	}
	if _, sends := sess.calls(); sends != 2 {
		t.Errorf("sends = %d, want 2", sends)
	}
}

func TestFetchSeries_RetriesThenSucceeds(t *testing.T) {
	sess := &fakeSession{connected: true}
	var attempt atomic.Int32
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		if attempt.Add(1) < 3 {
			return nil, errors.New("transient send failure")
		}
		return candleEnv(req["count"].(int)), nil
	}
	f := New(testFetchConfig(), sess, nil)

	s, err := f.FetchSeries(context.Background(), "frxEURUSD", 60, 10, DefaultOptions())
	if err != nil {
		t.Fatalf("FetchSeries failed: %v", err)
	}
	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10", s.Len())
	}
	if _, sends := sess.calls(); sends != 3 {
		t.Errorf("sends = %d, want 3", sends)
	}
}

func TestFetchSeries_ShortfallEscalates(t *testing.T) {
	sess := &fakeSession{connected: true}
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		return candleEnv(10), nil // always far short of the request
	}
	f := New(testFetchConfig(), sess, nil)

	// 10 records against a 100-record request is below the fill ratio; the
	// count escalates per attempt and the final attempt accepts the shortfall.
	s, err := f.FetchSeries(context.Background(), "R_100", 60, 100, DefaultOptions())
	if err != nil {
		t.Fatalf("FetchSeries failed: %v", err)
	}
	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10", s.Len())
	}

	sess.mu.Lock()
	counts := sess.sentCounts
	sess.mu.Unlock()
	want := []int{120, 180, 270}
	if len(counts) != len(want) {
		t.Fatalf("sent counts = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("attempt %d count = %d, want %d", i+1, counts[i], want[i])
		}
	}
}

func TestFetchSeries_StaleFallback(t *testing.T) {
	sess := &fakeSession{connected: true}
	healthy := true
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		if !healthy {
			return nil, errors.New("venue unavailable")
		}
		return candleEnv(req["count"].(int)), nil
	}
	f := New(testFetchConfig(), sess, nil)

	if _, err := f.FetchSeries(context.Background(), "frxEURUSD", 60, 10, DefaultOptions()); err != nil {
		t.Fatalf("priming fetch failed: %v", err)
	}

	healthy = false
	time.Sleep(60 * time.Millisecond) // leave the cooldown window

	s, err := f.FetchSeries(context.Background(), "frxEURUSD", 60, 10, DefaultOptions())
	if err != nil {
		t.Fatalf("FetchSeries with stale fallback failed: %v", err)
	}
	if !s.Stale {
		t.Error("fallback series not marked stale")
	}
	if s.Len() != 10 {
		t.Errorf("Len() = %d, want 10 cached candles", s.Len())
	}

	// Without the stale fallback the exhaustion surfaces
	time.Sleep(60 * time.Millisecond)
	opts := DefaultOptions()
	opts.AllowStale = false
	if _, err := f.FetchSeries(context.Background(), "frxEURUSD", 60, 10, opts); !errors.Is(err, ErrFetchExhausted) {
		t.Errorf("err = %v, want ErrFetchExhausted", err)
	}
}

func TestFetchSeries_SessionUnavailable(t *testing.T) {
	sess := &fakeSession{connectErr: errors.New("dial refused")}
	f := New(testFetchConfig(), sess, nil)

	_, err := f.FetchSeries(context.Background(), "R_50", 60, 10, DefaultOptions())
	if !errors.Is(err, ErrFetchExhausted) {
		t.Fatalf("err = %v, want ErrFetchExhausted", err)
	}
	if connects, sends := sess.calls(); connects != 1 || sends != 0 {
		t.Errorf("connects = %d, sends = %d, want 1 connect and no sends", connects, sends)
	}
}

func TestSubscribeTicks(t *testing.T) {
	sess := &fakeSession{connected: true}
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		return &protocol.Envelope{
			Tick:         &protocol.RawTick{Symbol: req["ticks"].(string)},
			Subscription: &protocol.SubscriptionInfo{ID: "sub-9"},
		}, nil
	}
	f := New(testFetchConfig(), sess, nil)

	if _, err := f.SubscribeTicks(context.Background(), "EURUSD"); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("err = %v, want ErrInvalidSymbol", err)
	}

	env, err := f.SubscribeTicks(context.Background(), "R_100")
	if err != nil {
		t.Fatalf("SubscribeTicks failed: %v", err)
	}
	if env.Subscription == nil || env.Subscription.ID != "sub-9" {
		t.Errorf("ack subscription = %+v", env.Subscription)
	}
}

func TestListSymbols(t *testing.T) {
	sess := &fakeSession{connected: true}
	sess.handler = func(req protocol.Request) (*protocol.Envelope, error) {
		return &protocol.Envelope{
			ActiveSymbols: []protocol.RawSymbol{
				{Symbol: "frxEURUSD", Market: "forex", ExchangeIsOpen: true},
			},
		}, nil
	}
	f := New(testFetchConfig(), sess, nil)

	symbols, err := f.ListSymbols(context.Background())
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if len(symbols) != 1 || symbols[0].Symbol != "frxEURUSD" {
		t.Errorf("symbols = %+v", symbols)
	}
}
