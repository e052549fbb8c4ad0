package state

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"nanoweb/pkg/config"
	"nanoweb/pkg/logger"
)

// Module is the fx module for state management.
var Module = fx.Module("state",
	fx.Provide(NewKVStore),
)

// NewKVStore creates the configured KV store for fx.
func NewKVStore(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) (KV, error) {
	stateConfig := &Config{
		Backend:       BackendType(cfg.State.Backend),
		FilePath:      cfg.State.FilePath,
		RedisAddr:     cfg.State.RedisAddr,
		RedisPassword: cfg.State.RedisPassword,
		RedisDB:       cfg.State.RedisDB,
		RedisPrefix:   cfg.State.RedisPrefix,
	}

	store, err := NewKV(context.Background(), log, stateConfig)
	if err != nil {
		return nil, err
	}

	// Redis expires keys itself; only the file backend needs compaction.
	var compactor *Compactor
	if fs, ok := store.(*FileStore); ok && cfg.State.CompactSchedule != "" {
		compactor, err = NewCompactor(log, fs, cfg.State.CompactSchedule)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("State store initialized", zap.String("backend", string(stateConfig.Backend)))
			if compactor != nil {
				return compactor.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if compactor != nil {
				if err := compactor.Stop(ctx); err != nil {
					log.Warn("Stopping state compaction", zap.Error(err))
				}
			}
			return store.Close()
		},
	})

	return store, nil
}
