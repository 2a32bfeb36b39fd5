package fetch

import (
	"testing"
	"time"

	"deriv-connect/internal/model"
)

func series(symbol string, age time.Duration) *model.Series {
	return &model.Series{
		Symbol:    symbol,
		Interval:  60,
		Candles:   []model.Candle{{Epoch: 1700000000, Open: 1, High: 2, Low: 0.5, Close: 1.5}},
		FetchedAt: time.Now().Add(-age),
	}
}

func TestSeriesCache_GetRespectsAge(t *testing.T) {
	c := newSeriesCache()
	k := key{symbol: "R_100", interval: 60}

	if _, ok := c.get(k, time.Minute); ok {
		t.Error("get on empty cache returned a series")
	}

	c.put(k, series("R_100", 30*time.Second))

	if _, ok := c.get(k, time.Minute); !ok {
		t.Error("fresh entry not returned")
	}
	if _, ok := c.get(k, 10*time.Second); ok {
		t.Error("entry older than maxAge returned")
	}
	if _, ok := c.getAny(k); !ok {
		t.Error("getAny ignored an existing entry")
	}
}

func TestSeriesCache_KeysAreIndependent(t *testing.T) {
	c := newSeriesCache()
	c.put(key{symbol: "R_100", interval: 60}, series("R_100", 0))

	if _, ok := c.get(key{symbol: "R_100", interval: 300}, time.Minute); ok {
		t.Error("different interval hit the same entry")
	}
	if _, ok := c.get(key{symbol: "R_50", interval: 60}, time.Minute); ok {
		t.Error("different symbol hit the same entry")
	}
}

func TestSeriesCache_ReturnsCopies(t *testing.T) {
	c := newSeriesCache()
	k := key{symbol: "frxEURUSD", interval: 60}
	c.put(k, series("frxEURUSD", 0))

	s1, _ := c.getAny(k)
	s1.Stale = true
	s1.Symbol = "mutated"
	s1.Candles[0].Close = 999

	s2, _ := c.getAny(k)
	if s2.Stale || s2.Symbol != "frxEURUSD" {
		t.Errorf("cache entry mutated through a returned copy: %+v", s2)
	}
	if s2.Candles[0].Close == 999 {
		t.Error("cached candles mutated through a returned copy")
	}
}

func TestSeriesCache_Prune(t *testing.T) {
	c := newSeriesCache()
	c.put(key{symbol: "R_100", interval: 60}, series("R_100", 2*time.Hour))
	c.put(key{symbol: "R_50", interval: 60}, series("R_50", time.Minute))

	if removed := c.prune(time.Hour); removed != 1 {
		t.Errorf("prune removed %d entries, want 1", removed)
	}
	if _, ok := c.getAny(key{symbol: "R_100", interval: 60}); ok {
		t.Error("pruned entry still present")
	}
	if _, ok := c.getAny(key{symbol: "R_50", interval: 60}); !ok {
		t.Error("fresh entry pruned")
	}
}

func TestRateLimiter_EntryPerSymbol(t *testing.T) {
	rl := newRateLimiter()

	a := rl.entry("R_100")
	b := rl.entry("R_100")
	if a != b {
		t.Error("same symbol returned distinct entries")
	}
	if rl.entry("R_50") == a {
		t.Error("distinct symbols share an entry")
	}
}
