package changefeed

import (
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.changefeed",
	fx.Provide(NewHub),
	fx.Provide(NewRelay),
	fx.Provide(func(r *Relay) Publisher { return r }),
	fx.Invoke(registerRelay),
)

func registerRelay(lc fx.Lifecycle, r *Relay) {
	lc.Append(fx.Hook{
		OnStart: r.Start,
		OnStop:  r.Stop,
	})
}
