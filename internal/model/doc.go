// Package model defines shared data types used across the connector.
//
// Conventions:
//   - Prices: float64 (Deriv quotes candles/ticks as decimal fractions)
//   - Money: decimal.Decimal for account balances
//   - Timestamps: int64 seconds since Unix epoch (venue epoch fields),
//     time.Time for locally observed instants
package model
