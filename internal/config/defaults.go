package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEndpoint          = "wss://ws.binaryws.com/websockets/v3"
	DefaultAppID             = "1089"
	DefaultAuthAttempts      = 3
	DefaultAuthRetryDelay    = 2 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultSendAttempts      = 3
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 20 * time.Second
	DefaultPingFreshness     = 90 * time.Second
	DefaultSilenceThreshold  = 60 * time.Second
	DefaultFailureThreshold  = 3
	DefaultTimeoutThreshold  = 2
	DefaultReconnectBase     = 5 * time.Second
	DefaultReconnectMax      = 120 * time.Second
	DefaultReconnectJitter   = 1.0
	DefaultReconnectAttempts = 15
	DefaultMinDemoBalance    = 1000

	DefaultCooldown       = 10 * time.Second
	DefaultCacheTTL       = 15 * time.Minute
	DefaultFetchRetries   = 3
	DefaultFetchDelay     = 2 * time.Second
	DefaultOverFetch      = 1.2
	DefaultMinFillRatio   = 0.5
	DefaultEscalateFactor = 1.5

	DefaultDBPort   = 5432
	DefaultDBSSL    = "prefer"
	DefaultMaxConns = 10
	DefaultMinConns = 2

	DefaultGatherInterval = 60
	DefaultGatherCount    = 1000
	DefaultGatherPeriod   = time.Minute
)

func (c *ConnectorConfig) applyDefaults() {
	// API defaults
	if c.API.Endpoint == "" {
		c.API.Endpoint = DefaultEndpoint
	}
	if c.API.AppID == "" {
		c.API.AppID = DefaultAppID
	}

	// Session defaults
	if c.Session.AuthAttempts == 0 {
		c.Session.AuthAttempts = DefaultAuthAttempts
	}
	if c.Session.AuthRetryDelay == 0 {
		c.Session.AuthRetryDelay = DefaultAuthRetryDelay
	}
	if c.Session.RequestTimeout == 0 {
		c.Session.RequestTimeout = DefaultRequestTimeout
	}
	if c.Session.SendAttempts == 0 {
		c.Session.SendAttempts = DefaultSendAttempts
	}
	if c.Session.PingInterval == 0 {
		c.Session.PingInterval = DefaultPingInterval
	}
	if c.Session.PingTimeout == 0 {
		c.Session.PingTimeout = DefaultPingTimeout
	}
	if c.Session.PingFreshness == 0 {
		c.Session.PingFreshness = DefaultPingFreshness
	}
	if c.Session.SilenceThreshold == 0 {
		c.Session.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.Session.FailureThreshold == 0 {
		c.Session.FailureThreshold = DefaultFailureThreshold
	}
	if c.Session.TimeoutThreshold == 0 {
		c.Session.TimeoutThreshold = DefaultTimeoutThreshold
	}
	if c.Session.ReconnectBase == 0 {
		c.Session.ReconnectBase = DefaultReconnectBase
	}
	if c.Session.ReconnectMax == 0 {
		c.Session.ReconnectMax = DefaultReconnectMax
	}
	if c.Session.ReconnectJitter == 0 {
		c.Session.ReconnectJitter = DefaultReconnectJitter
	}
	if c.Session.ReconnectAttempts == 0 {
		c.Session.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Session.MinDemoBalance == 0 {
		c.Session.MinDemoBalance = DefaultMinDemoBalance
	}

	// Fetch defaults
	if c.Fetch.Cooldown == 0 {
		c.Fetch.Cooldown = DefaultCooldown
	}
	if c.Fetch.CacheTTL == 0 {
		c.Fetch.CacheTTL = DefaultCacheTTL
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = DefaultFetchRetries
	}
	if c.Fetch.RetryDelay == 0 {
		c.Fetch.RetryDelay = DefaultFetchDelay
	}
	if c.Fetch.OverFetch == 0 {
		c.Fetch.OverFetch = DefaultOverFetch
	}
	if c.Fetch.MinFillRatio == 0 {
		c.Fetch.MinFillRatio = DefaultMinFillRatio
	}
	if c.Fetch.EscalateFactor == 0 {
		c.Fetch.EscalateFactor = DefaultEscalateFactor
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSL
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Gather defaults
	if c.Gather.Interval == 0 {
		c.Gather.Interval = DefaultGatherInterval
	}
	if c.Gather.Count == 0 {
		c.Gather.Count = DefaultGatherCount
	}
	if c.Gather.Period == 0 {
		c.Gather.Period = DefaultGatherPeriod
	}
}
