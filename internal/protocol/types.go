package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// MaxHistoryCount is the venue-side cap on candles per ticks_history request.
const MaxHistoryCount = 5000

// Error codes the dispatcher treats as authentication failures.
const (
	CodeInvalidToken          = "InvalidToken"
	CodeAuthorizationRequired = "AuthorizationRequired"
)

// APIError is a well-formed error payload from the venue.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deriv api error %s: %s", e.Code, e.Message)
}

// IsAuthError returns true if the error indicates invalid or expired credentials.
func (e *APIError) IsAuthError() bool {
	return e.Code == CodeInvalidToken || e.Code == CodeAuthorizationRequired
}

// Flag is a bool that also accepts 0/1, the venue uses both encodings.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("1")):
		*f = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("0")), bytes.Equal(data, []byte("null")):
		*f = false
	default:
		return fmt.Errorf("invalid flag value: %s", data)
	}
	return nil
}

// Number is a float64 that also accepts quoted decimal strings.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number value %q: %w", s, err)
	}
	*n = Number(v)
	return nil
}

// AuthorizeResult is the payload of a successful authorize response.
type AuthorizeResult struct {
	IsVirtual Flag            `json:"is_virtual"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	LoginID   string          `json:"loginid"`
}

// BalanceResult is the payload of a reset_balance response.
type BalanceResult struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// RawCandle is one candle as sent by the venue.
type RawCandle struct {
	Epoch int64  `json:"epoch"`
	Open  Number `json:"open"`
	High  Number `json:"high"`
	Low   Number `json:"low"`
	Close Number `json:"close"`
}

// RawTick is one tick push payload.
type RawTick struct {
	Symbol string `json:"symbol"`
	Epoch  int64  `json:"epoch"`
	Quote  Number `json:"quote"`
}

// RawSymbol is one entry of an active_symbols listing.
type RawSymbol struct {
	Symbol         string `json:"symbol"`
	DisplayName    string `json:"display_name"`
	Market         string `json:"market"`
	ExchangeIsOpen Flag   `json:"exchange_is_open"`
}

// SubscriptionInfo identifies a server-side subscription stream.
type SubscriptionInfo struct {
	ID string `json:"id"`
}

// Envelope is a parsed inbound frame. Exactly the fields relevant to
// dispatch and classification are decoded; Raw keeps the full frame for
// consumers that need more.
type Envelope struct {
	ReqID         int64             `json:"req_id"`
	MsgType       string            `json:"msg_type"`
	Error         *APIError         `json:"error"`
	Authorize     *AuthorizeResult  `json:"authorize"`
	Ping          string            `json:"ping"` // "pong" on a ping reply
	Candles       []RawCandle       `json:"candles"`
	Tick          *RawTick          `json:"tick"`
	OHLC          json.RawMessage   `json:"ohlc"`
	ActiveSymbols []RawSymbol       `json:"active_symbols"`
	Time          int64             `json:"time"`
	ResetBalance  *BalanceResult    `json:"reset_balance"`
	Subscription  *SubscriptionInfo `json:"subscription"`

	Raw []byte `json:"-"`
}

// ParseEnvelope decodes an inbound frame.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	env.Raw = data
	return &env, nil
}

// IsPong returns true for an explicit ping reply.
func (e *Envelope) IsPong() bool {
	return e.Ping == "pong"
}

// HasData returns true if the frame carries any data-bearing field. A data
// frame arriving instead of a pong still proves the channel is alive.
func (e *Envelope) HasData() bool {
	return e.Tick != nil || len(e.OHLC) > 0 || len(e.Candles) > 0
}

// IsPush returns true for an unsolicited subscription push frame.
func (e *Envelope) IsPush() bool {
	return e.Subscription != nil || ((e.Tick != nil || len(e.OHLC) > 0) && e.Error == nil)
}
