// Package config provides configuration management for the nanoweb console.
// It uses Viper for loading with support for:
// - JSON, YAML and TOML files
// - NANOBOT_WEB_* environment variables
// - Hot-reload of the log level and remote nanobot paths
// - Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config represents the complete nanoweb configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Auth    AuthConfig    `mapstructure:"auth" json:"auth"`
	SSH     SSHConfig     `mapstructure:"ssh" json:"ssh"`
	Nanobot NanobotConfig `mapstructure:"nanobot" json:"nanobot"`
	State   StateConfig   `mapstructure:"state" json:"state"`
	Logger  LoggerConfig  `mapstructure:"logger" json:"logger"`
	Client  ClientConfig  `mapstructure:"client" json:"client"`
	mu      sync.RWMutex
}

// ServerConfig configures the HTTP/WebSocket gateway.
type ServerConfig struct {
	Host           string   `mapstructure:"host" json:"host"`
	Port           int      `mapstructure:"port" json:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`
	MetricsEnabled bool     `mapstructure:"metrics_enabled" json:"metrics_enabled"`
}

// AuthConfig configures bearer token issuance.
type AuthConfig struct {
	SecretKey                string `mapstructure:"secret_key" json:"secret_key"`
	Algorithm                string `mapstructure:"algorithm" json:"algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes" json:"access_token_expire_minutes"`
}

// SSHConfig configures connections to nanobot hosts.
type SSHConfig struct {
	DefaultHost           string `mapstructure:"default_host" json:"default_host"`
	DefaultPort           int    `mapstructure:"default_port" json:"default_port"`
	DefaultUser           string `mapstructure:"default_user" json:"default_user"`
	KnownHostsFile        string `mapstructure:"known_hosts_file" json:"known_hosts_file"`
	DialTimeoutSeconds    int    `mapstructure:"dial_timeout_seconds" json:"dial_timeout_seconds"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds" json:"command_timeout_seconds"`
}

// NanobotConfig locates nanobot's files on the remote host.
// Paths are interpreted by the remote shell, so "~" is allowed.
type NanobotConfig struct {
	ConfigPath    string `mapstructure:"config_path" json:"config_path"`
	WorkspacePath string `mapstructure:"workspace_path" json:"workspace_path"`
	CronPath      string `mapstructure:"cron_path" json:"cron_path"`
	LogFile       string `mapstructure:"log_file" json:"log_file"`
	ServiceName   string `mapstructure:"service_name" json:"service_name"`
}

// StateConfig selects where token revocations are kept.
type StateConfig struct {
	Backend       string `mapstructure:"backend" json:"backend"` // file or redis
	FilePath      string `mapstructure:"file_path" json:"file_path"`
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" json:"redis_prefix"`
	// CompactSchedule is a cron spec for dropping expired file entries.
	// Empty disables compaction.
	CompactSchedule string `mapstructure:"compact_schedule" json:"compact_schedule"`
}

// LoggerConfig mirrors logger.Config in file form.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress"`
	Development bool   `mapstructure:"development" json:"development"`
}

// ClientConfig configures the terminal console.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url" json:"server_url"`
	TokenFile string `mapstructure:"token_file" json:"token_file"`
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	home := homeDir()
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			CORSOrigins:    []string{"*"},
			MetricsEnabled: true,
		},
		Auth: AuthConfig{
			Algorithm:                "HS256",
			AccessTokenExpireMinutes: 720,
		},
		SSH: SSHConfig{
			DefaultPort:           22,
			DefaultUser:           "root",
			DialTimeoutSeconds:    30,
			CommandTimeoutSeconds: 30,
		},
		Nanobot: NanobotConfig{
			ConfigPath:    "~/.nanobot/config.json",
			WorkspacePath: "~/.nanobot/workspace",
			CronPath:      "~/.nanobot/cron/jobs.json",
			LogFile:       "/tmp/nanobot.log",
			ServiceName:   "nanobot",
		},
		State: StateConfig{
			Backend:         "file",
			FilePath:        filepath.Join(home, ".nanoweb", "state.json"),
			RedisPrefix:     "nanoweb:",
			CompactSchedule: "@every 10m",
		},
		Logger: LoggerConfig{
			Level:      "info",
			OutputPath: filepath.Join(home, ".nanoweb", "logs", "nanoweb.log"),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:8000",
			TokenFile: filepath.Join(home, ".nanoweb", "token"),
		},
	}
}

// TokenTTL returns the lifetime of issued bearer tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.AccessTokenExpireMinutes) * time.Minute
}

// DialTimeout returns the SSH dial and handshake timeout.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.SSH.DialTimeoutSeconds) * time.Second
}

// CommandTimeout returns the default timeout for one remote command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.SSH.CommandTimeoutSeconds) * time.Second
}

// NanobotPaths returns the remote path settings. They may change on reload.
func (c *Config) NanobotPaths() NanobotConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Nanobot
}

// LoggerSettings returns the logger section. It may change on reload.
func (c *Config) LoggerSettings() LoggerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logger
}

// ApplyReload copies the hot-reloadable sections from next.
// Listener address, secrets and the state backend need a restart.
func (c *Config) ApplyReload(next *Config) {
	paths := next.NanobotPaths()
	logs := next.LoggerSettings()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Nanobot = paths
	c.Logger = logs
}

// GenerateSecret returns a random hex secret suitable for HMAC signing.
func GenerateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
