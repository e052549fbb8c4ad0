package metrics

import "go.uber.org/fx"

// Module provides the gateway metrics.
var Module = fx.Module("metrics",
	fx.Provide(New),
)
