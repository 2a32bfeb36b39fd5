package config

import "time"

// ConnectorConfig is the root configuration for a connector instance.
type ConnectorConfig struct {
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Database DatabaseConfig `yaml:"database"`
	Gather   GatherConfig   `yaml:"gather"`
}

// APIConfig holds Deriv API settings.
type APIConfig struct {
	Endpoint string `yaml:"endpoint"` // WebSocket endpoint (without app_id query)
	AppID    string `yaml:"app_id"`   // Application identifier
	Token    string `yaml:"token"`    // API token for authorize
}

// SessionConfig holds session lifecycle and heartbeat settings.
type SessionConfig struct {
	AuthAttempts      int           `yaml:"auth_attempts"`       // Authorize retries before connect fails
	AuthRetryDelay    time.Duration `yaml:"auth_retry_delay"`    // Spacing between authorize retries
	RequestTimeout    time.Duration `yaml:"request_timeout"`     // Per round-trip response deadline
	SendAttempts      int           `yaml:"send_attempts"`       // Dispatcher send retries on closed transport
	PingInterval      time.Duration `yaml:"ping_interval"`       // Heartbeat probe spacing
	PingTimeout       time.Duration `yaml:"ping_timeout"`        // Heartbeat probe deadline
	PingFreshness     time.Duration `yaml:"ping_freshness"`      // Max ping age for checkConnection
	SilenceThreshold  time.Duration `yaml:"silence_threshold"`   // Max time without any inbound message
	FailureThreshold  int           `yaml:"failure_threshold"`   // Ping failures before reconnect
	TimeoutThreshold  int           `yaml:"timeout_threshold"`   // Ping timeouts before reconnect
	ReconnectBase     time.Duration `yaml:"reconnect_base"`      // Backoff base delay
	ReconnectMax      time.Duration `yaml:"reconnect_max"`       // Backoff max delay
	ReconnectJitter   float64       `yaml:"reconnect_jitter"`    // Jitter spread multiplier
	ReconnectAttempts int           `yaml:"reconnect_attempts"`  // Max consecutive reconnects before giving up
	MinDemoBalance    float64       `yaml:"min_demo_balance"`    // Demo balance below which a reset is requested
}

// FetchConfig holds resilient fetch settings.
type FetchConfig struct {
	Cooldown       time.Duration `yaml:"cooldown"`         // Min spacing between fetches per symbol
	CacheTTL       time.Duration `yaml:"cache_ttl"`        // Cache entry lifetime
	MaxRetries     int           `yaml:"max_retries"`      // Fetch attempts per call
	RetryDelay     time.Duration `yaml:"retry_delay"`      // Base delay between fetch attempts
	OverFetch      float64       `yaml:"over_fetch"`       // Requested count inflation factor
	MinFillRatio   float64       `yaml:"min_fill_ratio"`   // Fraction of requested records considered complete
	EscalateFactor float64       `yaml:"escalate_factor"`  // Count escalation on persistent shortfall
}

// DatabaseConfig holds the optional Postgres store for fetched data.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// GatherConfig holds the periodic fetch loop settings for cmd/connector.
type GatherConfig struct {
	Symbols  []string      `yaml:"symbols"`  // Symbols to fetch each cycle
	Interval int           `yaml:"interval"` // Candle granularity in seconds
	Count    int           `yaml:"count"`    // Candles per fetch
	Period   time.Duration `yaml:"period"`   // Fetch cycle spacing
}
