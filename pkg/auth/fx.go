package auth

import (
	"go.uber.org/fx"

	"nanoweb/pkg/config"
	"nanoweb/pkg/state"
)

// Module provides the token manager.
var Module = fx.Module("auth",
	fx.Provide(ProvideManager),
)

// ProvideManager builds a Manager from the auth section and the state store.
func ProvideManager(cfg *config.Config, kv state.KV) (*Manager, error) {
	return NewManager(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.TokenTTL(), kv)
}
