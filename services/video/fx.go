package video

import "go.uber.org/fx"

var Module = fx.Module("video.service",
	fx.Provide(NewService),
)
