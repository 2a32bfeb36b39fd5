package protocol

import (
	"time"

	"deriv-connect/internal/model"
)

// ToSeries converts raw candles into a model.Series sorted ascending by epoch.
func ToSeries(symbol string, interval int, candles []RawCandle) *model.Series {
	s := &model.Series{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   make([]model.Candle, 0, len(candles)),
		FetchedAt: time.Now(),
	}

	for _, c := range candles {
		if c.Epoch == 0 {
			continue
		}
		s.Candles = append(s.Candles, model.Candle{
			Epoch: c.Epoch,
			Open:  float64(c.Open),
			High:  float64(c.High),
			Low:   float64(c.Low),
			Close: float64(c.Close),
		})
	}

	s.Sort()
	return s
}

// ToTick converts a raw tick push into a model.Tick.
func (t *RawTick) ToTick(receivedAt time.Time) model.Tick {
	return model.Tick{
		Symbol:     t.Symbol,
		Epoch:      t.Epoch,
		Quote:      float64(t.Quote),
		ReceivedAt: receivedAt,
	}
}

// ToSymbols converts an active_symbols listing into model symbols.
func ToSymbols(raw []RawSymbol) []model.Symbol {
	out := make([]model.Symbol, 0, len(raw))
	for _, s := range raw {
		out = append(out, model.Symbol{
			Symbol:         s.Symbol,
			DisplayName:    s.DisplayName,
			Market:         s.Market,
			ExchangeIsOpen: bool(s.ExchangeIsOpen),
		})
	}
	return out
}

// ToAccount converts an authorize payload into a model.Account.
func (a *AuthorizeResult) ToAccount() model.Account {
	kind := model.AccountReal
	if a.IsVirtual {
		kind = model.AccountDemo
	}
	return model.Account{
		Kind:     kind,
		Balance:  a.Balance,
		Currency: a.Currency,
	}
}
