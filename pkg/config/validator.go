package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateServer(&cfg.Server)
	v.validateAuth(&cfg.Auth)
	v.validateSSH(&cfg.SSH)
	v.validateNanobot(&cfg.Nanobot)
	v.validateState(&cfg.State)
	v.validateLogger(&cfg.Logger)
	v.validateClient(&cfg.Client)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", "port must be between 1 and 65535")
	}
}

func (v *Validator) validateAuth(cfg *AuthConfig) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		v.addError("auth.secret_key", "secret_key is required")
	}
	switch strings.ToUpper(strings.TrimSpace(cfg.Algorithm)) {
	case "HS256", "HS384", "HS512":
	default:
		v.addError("auth.algorithm", "algorithm must be one of: HS256, HS384, HS512")
	}
	if cfg.AccessTokenExpireMinutes < 1 {
		v.addError("auth.access_token_expire_minutes", "access_token_expire_minutes must be at least 1")
	}
}

func (v *Validator) validateSSH(cfg *SSHConfig) {
	if cfg.DefaultPort < 1 || cfg.DefaultPort > 65535 {
		v.addError("ssh.default_port", "default_port must be between 1 and 65535")
	}
	if cfg.DialTimeoutSeconds < 1 {
		v.addError("ssh.dial_timeout_seconds", "dial_timeout_seconds must be at least 1")
	}
	if cfg.CommandTimeoutSeconds < 1 {
		v.addError("ssh.command_timeout_seconds", "command_timeout_seconds must be at least 1")
	}
}

func (v *Validator) validateNanobot(cfg *NanobotConfig) {
	required := map[string]string{
		"nanobot.config_path":    cfg.ConfigPath,
		"nanobot.workspace_path": cfg.WorkspacePath,
		"nanobot.cron_path":      cfg.CronPath,
		"nanobot.log_file":       cfg.LogFile,
		"nanobot.service_name":   cfg.ServiceName,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			v.addError(field, "value is required")
		}
	}
	// Paths are interpolated into remote shell commands.
	for field, value := range map[string]string{
		"nanobot.config_path":    cfg.ConfigPath,
		"nanobot.workspace_path": cfg.WorkspacePath,
		"nanobot.cron_path":      cfg.CronPath,
		"nanobot.log_file":       cfg.LogFile,
	} {
		if strings.ContainsAny(value, "'\"`$;&|\n") {
			v.addError(field, "path must not contain shell metacharacters")
		}
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	switch cfg.Backend {
	case "file":
		if strings.TrimSpace(cfg.FilePath) == "" {
			v.addError("state.file_path", "file_path is required when backend is file")
		}
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			v.addError("state.redis_addr", "redis_addr is required when backend is redis")
		}
	default:
		v.addError("state.backend", "backend must be one of: file, redis")
	}
	if spec := strings.TrimSpace(cfg.CompactSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			v.addError("state.compact_schedule", fmt.Sprintf("invalid cron spec: %v", err))
		}
	}
}

func (v *Validator) validateLogger(cfg *LoggerConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		v.addError("logger.level", "level must be one of: debug, info, warn, error, fatal")
	}
}

func (v *Validator) validateClient(cfg *ClientConfig) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		v.addError("client.server_url", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.addError("client.server_url", "server_url must use http or https")
	}
	if u.Host == "" {
		v.addError("client.server_url", "server_url must include a host")
	}
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.Validate(cfg)
}
