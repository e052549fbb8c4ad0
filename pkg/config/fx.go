package config

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"nanoweb/pkg/logger"
)

// Path is the config file chosen on the command line (empty for default lookup).
type Path string

// Module provides configuration for fx dependency injection.
var Module = fx.Module("config",
	fx.Provide(ProvideLoader),
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLoggerConfig),
	fx.Provide(ProvideWatcher),
)

// ProvideLoader provides a configuration loader.
func ProvideLoader() *Loader {
	return NewLoader()
}

// ProvideConfig loads and validates configuration.
func ProvideConfig(loader *Loader, path Path) (*Config, error) {
	cfg, err := loader.Load(string(path))
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvideLoggerConfig derives the logger settings from the loaded config.
func ProvideLoggerConfig(cfg *Config) *logger.Config {
	return cfg.LoggerSettings().ToLoggerConfig()
}

// ProvideWatcher provides a configuration watcher that keeps the log level in sync.
func ProvideWatcher(loader *Loader, cfg *Config, lc fx.Lifecycle, log *logger.Logger) *Watcher {
	watcher := NewWatcher(loader, cfg, log)

	watcher.AddHandler(func(newCfg *Config) error {
		level := newCfg.LoggerSettings().ToLoggerConfig().Level
		if err := log.SetLevel(level); err != nil {
			return err
		}
		log.Info("Configuration reloaded",
			zap.String("log_level", string(level)),
			zap.String("nanobot_config", newCfg.NanobotPaths().ConfigPath),
		)
		return nil
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting configuration watcher", zap.String("file", loader.GetConfigPath()))
			return watcher.Start()
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			return nil
		},
	})

	return watcher
}
