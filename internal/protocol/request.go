package protocol

// Request builders. Every outbound message is a flat object with a
// client-assigned req_id; the dispatcher owns req_id allocation.

// Request is an outbound message payload.
type Request map[string]any

// ReqID returns the req_id carried by the request, or 0.
func (r Request) ReqID() int64 {
	id, _ := r["req_id"].(int64)
	return id
}

// Authorize builds an authorize request for the given API token.
func Authorize(token string, reqID int64) Request {
	return Request{
		"authorize": token,
		"req_id":    reqID,
	}
}

// Ping builds a liveness probe request.
func Ping(reqID int64) Request {
	return Request{
		"ping":   1,
		"req_id": reqID,
	}
}

// TicksHistory builds a historical candle request.
func TicksHistory(symbol string, granularity, count int, reqID int64) Request {
	if count > MaxHistoryCount {
		count = MaxHistoryCount
	}
	return Request{
		"ticks_history":     symbol,
		"granularity":       granularity,
		"count":             count,
		"style":             "candles",
		"end":               "latest",
		"adjust_start_time": 1,
		"req_id":            reqID,
	}
}

// TicksSubscribe builds a tick stream subscription request.
func TicksSubscribe(symbol string, reqID int64) Request {
	return Request{
		"ticks":     symbol,
		"subscribe": 1,
		"req_id":    reqID,
	}
}

// ActiveSymbols builds a symbol listing request.
func ActiveSymbols(reqID int64) Request {
	return Request{
		"active_symbols": "brief",
		"product_type":   "basic",
		"req_id":         reqID,
	}
}

// ServerTime builds a server clock request.
func ServerTime(reqID int64) Request {
	return Request{
		"time":   1,
		"req_id": reqID,
	}
}

// ResetBalance builds a demo-account balance reset request.
func ResetBalance(reqID int64) Request {
	return Request{
		"reset_balance": 1,
		"req_id":        reqID,
	}
}
