package watch

import "go.uber.org/fx"

var Module = fx.Module("watch.service",
	fx.Provide(NewService),
)
