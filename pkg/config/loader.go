package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"nanoweb/pkg/fileutil"
)

// ConfigPathEnv overrides the config file location when no path is given.
const ConfigPathEnv = "NANOBOT_WEB_CONFIG_FILE"

const envPrefix = "NANOBOT_WEB"

// legacyEnv maps keys to the flat variable names older deployments export
// (NANOBOT_WEB_SECRET_KEY rather than NANOBOT_WEB_AUTH_SECRET_KEY).
var legacyEnv = map[string]string{
	"auth.secret_key":                  "NANOBOT_WEB_SECRET_KEY",
	"auth.algorithm":                   "NANOBOT_WEB_ALGORITHM",
	"auth.access_token_expire_minutes": "NANOBOT_WEB_ACCESS_TOKEN_EXPIRE_MINUTES",
	"ssh.default_host":                 "NANOBOT_WEB_DEFAULT_SSH_HOST",
	"ssh.default_port":                 "NANOBOT_WEB_DEFAULT_SSH_PORT",
	"ssh.default_user":                 "NANOBOT_WEB_DEFAULT_SSH_USER",
	"nanobot.config_path":              "NANOBOT_WEB_NANOBOT_CONFIG_PATH",
	"nanobot.workspace_path":           "NANOBOT_WEB_NANOBOT_WORKSPACE_PATH",
}

// Loader handles configuration loading with Viper.
type Loader struct {
	viper *viper.Viper
	path  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register every key so env overrides apply even without a config file.
	setDefaults(v, DefaultConfig())
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	return &Loader{viper: v}
}

// Load reads the configuration from configPath, or from NANOBOT_WEB_CONFIG_FILE,
// or from ~/.nanoweb/config.json. A missing file is created with defaults and
// a freshly generated signing secret.
func (l *Loader) Load(configPath string) (*Config, error) {
	if strings.TrimSpace(configPath) == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	resolvedPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	l.viper.SetConfigFile(resolvedPath)
	if ext := strings.TrimPrefix(filepath.Ext(resolvedPath), "."); ext != "" {
		l.viper.SetConfigType(ext)
	}

	if err := l.viper.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		seed := DefaultConfig()
		seed.Auth.SecretKey = GenerateSecret()
		if err := SaveToFile(seed, resolvedPath); err != nil {
			return nil, fmt.Errorf("creating config file: %w", err)
		}
		if err := l.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading created config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	l.path = resolvedPath

	return cfg, nil
}

// Reload re-reads the file used by the last Load.
func (l *Loader) Reload() (*Config, error) {
	if l.path == "" {
		return nil, fmt.Errorf("config not loaded yet")
	}
	return l.Load(l.path)
}

// GetConfigPath returns the path of the loaded config file.
func (l *Loader) GetConfigPath() string {
	return l.path
}

// Save writes cfg to path. The format follows the extension (.json, .yaml, .yml).
// The file holds the signing secret, so it is written with mode 0600.
func (l *Loader) Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var generic map[string]interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("converting config: %w", err)
		}
		if data, err = yaml.Marshal(generic); err != nil {
			return fmt.Errorf("marshaling yaml: %w", err)
		}
	case ".json", "":
	default:
		return fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	if err := fileutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveToFile is a convenience function to save config without creating a Loader.
func SaveToFile(cfg *Config, path string) error {
	return NewLoader().Save(path, cfg)
}

// GetConfigHome returns the default config directory.
func GetConfigHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".nanoweb"), nil
}

func resolveConfigPath(configPath string) (string, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		home, err := GetConfigHome()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, "config.json")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return abs, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]interface{}{
		"server.host":            cfg.Server.Host,
		"server.port":            cfg.Server.Port,
		"server.cors_origins":    cfg.Server.CORSOrigins,
		"server.metrics_enabled": cfg.Server.MetricsEnabled,

		"auth.secret_key":                  cfg.Auth.SecretKey,
		"auth.algorithm":                   cfg.Auth.Algorithm,
		"auth.access_token_expire_minutes": cfg.Auth.AccessTokenExpireMinutes,

		"ssh.default_host":            cfg.SSH.DefaultHost,
		"ssh.default_port":            cfg.SSH.DefaultPort,
		"ssh.default_user":            cfg.SSH.DefaultUser,
		"ssh.known_hosts_file":        cfg.SSH.KnownHostsFile,
		"ssh.dial_timeout_seconds":    cfg.SSH.DialTimeoutSeconds,
		"ssh.command_timeout_seconds": cfg.SSH.CommandTimeoutSeconds,

		"nanobot.config_path":    cfg.Nanobot.ConfigPath,
		"nanobot.workspace_path": cfg.Nanobot.WorkspacePath,
		"nanobot.cron_path":      cfg.Nanobot.CronPath,
		"nanobot.log_file":       cfg.Nanobot.LogFile,
		"nanobot.service_name":   cfg.Nanobot.ServiceName,

		"state.backend":          cfg.State.Backend,
		"state.file_path":        cfg.State.FilePath,
		"state.redis_addr":       cfg.State.RedisAddr,
		"state.redis_password":   cfg.State.RedisPassword,
		"state.redis_db":         cfg.State.RedisDB,
		"state.redis_prefix":     cfg.State.RedisPrefix,
		"state.compact_schedule": cfg.State.CompactSchedule,

		"logger.level":       cfg.Logger.Level,
		"logger.output_path": cfg.Logger.OutputPath,
		"logger.max_size":    cfg.Logger.MaxSize,
		"logger.max_backups": cfg.Logger.MaxBackups,
		"logger.max_age":     cfg.Logger.MaxAge,
		"logger.compress":    cfg.Logger.Compress,
		"logger.development": cfg.Logger.Development,

		"client.server_url": cfg.Client.ServerURL,
		"client.token_file": cfg.Client.TokenFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
