package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ConnectorConfig) Validate() error {
	if c.API.Token == "" {
		return errors.New("api.token is required")
	}
	if c.API.AppID == "" {
		return errors.New("api.app_id is required")
	}

	if c.Session.AuthAttempts < 1 {
		return errors.New("session.auth_attempts must be >= 1")
	}
	if c.Session.SendAttempts < 1 {
		return errors.New("session.send_attempts must be >= 1")
	}
	if c.Session.ReconnectAttempts < 1 {
		return errors.New("session.reconnect_attempts must be >= 1")
	}
	if c.Session.ReconnectJitter < 1 {
		return fmt.Errorf("session.reconnect_jitter must be >= 1, got %v", c.Session.ReconnectJitter)
	}
	if c.Session.ReconnectBase > c.Session.ReconnectMax {
		return fmt.Errorf("session.reconnect_base (%v) cannot exceed reconnect_max (%v)",
			c.Session.ReconnectBase, c.Session.ReconnectMax)
	}

	if c.Fetch.MinFillRatio <= 0 || c.Fetch.MinFillRatio > 1 {
		return fmt.Errorf("fetch.min_fill_ratio must be in (0, 1], got %v", c.Fetch.MinFillRatio)
	}
	if c.Fetch.OverFetch < 1 {
		return fmt.Errorf("fetch.over_fetch must be >= 1, got %v", c.Fetch.OverFetch)
	}
	if c.Fetch.EscalateFactor < 1 {
		return fmt.Errorf("fetch.escalate_factor must be >= 1, got %v", c.Fetch.EscalateFactor)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return errors.New("database.host is required when database.enabled")
		}
		if c.Database.Name == "" {
			return errors.New("database.name is required when database.enabled")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required when database.enabled")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)",
				c.Database.MinConns, c.Database.MaxConns)
		}
	}

	return nil
}
