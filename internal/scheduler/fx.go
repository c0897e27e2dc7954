package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Register),
)

// Register ties the cron loop to the application lifecycle.
func Register(lc fx.Lifecycle, log *zap.Logger, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			scheduled, err := sched.Start()
			if err != nil {
				return err
			}
			if !scheduled {
				log.Info("scheduler has no jobs configured")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-sched.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}
