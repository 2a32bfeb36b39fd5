package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind distinguishes demo and real money accounts.
type AccountKind string

const (
	AccountDemo AccountKind = "demo"
	AccountReal AccountKind = "real"
)

// Account holds the authorized account details returned by the venue.
type Account struct {
	Kind     AccountKind
	Balance  decimal.Decimal
	Currency string
}

// IsDemo returns true for virtual (demo) accounts.
func (a Account) IsDemo() bool {
	return a.Kind == AccountDemo
}

// Candle is an OHLC price aggregate for one time bucket.
type Candle struct {
	Epoch int64   // Bucket start (seconds since Unix epoch)
	Open  float64 // First price in bucket
	High  float64 // Highest price in bucket
	Low   float64 // Lowest price in bucket
	Close float64 // Last price in bucket
}

// Series is a fetched candle series for one (symbol, interval) key.
type Series struct {
	Symbol    string    // Venue symbol (e.g. "frxEURUSD")
	Interval  int       // Candle granularity in seconds
	Candles   []Candle  // Sorted ascending by Epoch
	FetchedAt time.Time // When this series was fetched from the venue
	Stale     bool      // True when served from cache after a failed fetch
}

// Len returns the number of candles in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// Clone returns a deep copy. Candles are copied, so mutating the clone
// never reaches the original.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Candles = append([]Candle(nil), s.Candles...)
	return &cp
}

// Sort orders candles ascending by epoch.
func (s *Series) Sort() {
	sort.Slice(s.Candles, func(i, j int) bool {
		return s.Candles[i].Epoch < s.Candles[j].Epoch
	})
}

// Tick is a single timestamped price update for a symbol.
type Tick struct {
	Symbol     string
	Epoch      int64   // Venue timestamp (seconds since Unix epoch)
	Quote      float64 // Mid price
	ReceivedAt time.Time
}

// Symbol describes one entry from the active symbol listing.
type Symbol struct {
	Symbol         string // Venue symbol code
	DisplayName    string
	Market         string // e.g. "forex", "synthetic_index"
	ExchangeIsOpen bool
}
