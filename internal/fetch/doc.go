// Package fetch implements the resilient read facade over the session layer.
//
// FetchSeries wraps "get a candle series for (symbol, interval)" with symbol
// validation, per-symbol cooldown, caching, over-fetch margin, retry with
// count escalation, and stale-cache fallback. Subscriptions and symbol
// listing share the retry shape without cache or cooldown.
package fetch
