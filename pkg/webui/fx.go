package webui

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"nanoweb/pkg/config"
	"nanoweb/pkg/logger"
)

// Module provides the gateway server for fx dependency injection.
var Module = fx.Module("webui",
	fx.Provide(NewServer),
	fx.Invoke(registerLifecycle),
)

// registerLifecycle starts the gateway. Taking the watcher keeps hot
// reload active for as long as the server runs.
func registerLifecycle(lc fx.Lifecycle, s *Server, cfg *config.Config, _ *config.Watcher, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting nanoweb gateway",
				zap.String("addr", s.Addr()),
				zap.Bool("metrics", cfg.Server.MetricsEnabled),
			)
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Stop(shutdownCtx)
		},
	})
}
