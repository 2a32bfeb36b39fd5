package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connector.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const minimalYAML = `
api:
  app_id: "1089"
  token: test-token
`

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "api: [not: valid")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("DERIV_TOKEN", "secret-from-env")

	path := writeTempFile(t, `
api:
  app_id: "1089"
  token: ${DERIV_TOKEN}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.Token != "secret-from-env" {
		t.Errorf("Token = %q, want expanded env value", cfg.API.Token)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.Endpoint == "" {
		t.Error("Endpoint default not applied")
	}
	if cfg.Session.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s", cfg.Session.PingInterval)
	}
	if cfg.Session.PingTimeout != 20*time.Second {
		t.Errorf("PingTimeout = %v, want 20s", cfg.Session.PingTimeout)
	}
	if cfg.Session.ReconnectBase != 5*time.Second || cfg.Session.ReconnectMax != 120*time.Second {
		t.Errorf("backoff defaults = %v/%v", cfg.Session.ReconnectBase, cfg.Session.ReconnectMax)
	}
	if cfg.Session.ReconnectAttempts != 15 {
		t.Errorf("ReconnectAttempts = %d, want 15", cfg.Session.ReconnectAttempts)
	}
	if cfg.Fetch.Cooldown != 10*time.Second {
		t.Errorf("Cooldown = %v, want 10s", cfg.Fetch.Cooldown)
	}
	if cfg.Fetch.OverFetch != 1.2 {
		t.Errorf("OverFetch = %v, want 1.2", cfg.Fetch.OverFetch)
	}
	if cfg.Fetch.MinFillRatio != 0.5 {
		t.Errorf("MinFillRatio = %v, want 0.5", cfg.Fetch.MinFillRatio)
	}
}

func TestLoadWithDefaults_KeepsExplicitValues(t *testing.T) {
	path := writeTempFile(t, `
api:
  app_id: "1089"
  token: test-token
session:
  ping_interval: 10s
  reconnect_attempts: 3
fetch:
  cooldown: 1s
`)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Session.PingInterval != 10*time.Second {
		t.Errorf("PingInterval = %v, want explicit 10s", cfg.Session.PingInterval)
	}
	if cfg.Session.ReconnectAttempts != 3 {
		t.Errorf("ReconnectAttempts = %d, want explicit 3", cfg.Session.ReconnectAttempts)
	}
	if cfg.Fetch.Cooldown != time.Second {
		t.Errorf("Cooldown = %v, want explicit 1s", cfg.Fetch.Cooldown)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConnectorConfig)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *ConnectorConfig) {},
		},
		{
			name:    "missing token",
			mutate:  func(c *ConnectorConfig) { c.API.Token = "" },
			wantErr: "api.token",
		},
		{
			name:    "missing app_id",
			mutate:  func(c *ConnectorConfig) { c.API.AppID = "" },
			wantErr: "api.app_id",
		},
		{
			name:    "zero auth attempts",
			mutate:  func(c *ConnectorConfig) { c.Session.AuthAttempts = 0 },
			wantErr: "auth_attempts",
		},
		{
			name:    "base above max",
			mutate:  func(c *ConnectorConfig) { c.Session.ReconnectBase = 5 * time.Minute },
			wantErr: "reconnect_base",
		},
		{
			name:    "jitter below one",
			mutate:  func(c *ConnectorConfig) { c.Session.ReconnectJitter = 0.5 },
			wantErr: "reconnect_jitter",
		},
		{
			name:    "fill ratio above one",
			mutate:  func(c *ConnectorConfig) { c.Fetch.MinFillRatio = 1.5 },
			wantErr: "min_fill_ratio",
		},
		{
			name:    "over fetch below one",
			mutate:  func(c *ConnectorConfig) { c.Fetch.OverFetch = 0.9 },
			wantErr: "over_fetch",
		},
		{
			name: "database enabled without host",
			mutate: func(c *ConnectorConfig) {
				c.Database.Enabled = true
				c.Database.Name = "deriv"
				c.Database.User = "deriv"
			},
			wantErr: "database.host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("1089", "test-token")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, minimalYAML)
	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	path = writeTempFile(t, "api:\n  app_id: \"1089\"\n")
	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error without token")
	}
}
