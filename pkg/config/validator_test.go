package config

import (
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.SecretKey = "test-secret"
	return cfg
}

func hasField(t *testing.T, err error, field string) bool {
	t.Helper()
	validationErrors, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	for _, validationErr := range validationErrors {
		if validationErr.Field == field {
			return true
		}
	}
	return false
}

func TestValidateConfigAcceptsDefaultsWithSecret(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing secret", func(c *Config) { c.Auth.SecretKey = " " }, "auth.secret_key"},
		{"asymmetric algorithm", func(c *Config) { c.Auth.Algorithm = "RS256" }, "auth.algorithm"},
		{"zero expiry", func(c *Config) { c.Auth.AccessTokenExpireMinutes = 0 }, "auth.access_token_expire_minutes"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"ssh port", func(c *Config) { c.SSH.DefaultPort = 0 }, "ssh.default_port"},
		{"shell metachar path", func(c *Config) { c.Nanobot.ConfigPath = "~/.nanobot/$(id).json" }, "nanobot.config_path"},
		{"empty workspace", func(c *Config) { c.Nanobot.WorkspacePath = "" }, "nanobot.workspace_path"},
		{"redis without addr", func(c *Config) { c.State.Backend = "redis" }, "state.redis_addr"},
		{"unknown backend", func(c *Config) { c.State.Backend = "etcd" }, "state.backend"},
		{"compact schedule", func(c *Config) { c.State.CompactSchedule = "every ten minutes" }, "state.compact_schedule"},
		{"log level", func(c *Config) { c.Logger.Level = "trace" }, "logger.level"},
		{"client scheme", func(c *Config) { c.Client.ServerURL = "ftp://console" }, "client.server_url"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatalf("expected validation error for %s", tc.field)
			}
			if !hasField(t, err, tc.field) {
				t.Fatalf("expected %s validation error, got %v", tc.field, err)
			}
		})
	}
}
