package dispatch

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("dispatch",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewRunner),
)

func NewRunner(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := d.Startup(startCtx); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())

			go d.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
