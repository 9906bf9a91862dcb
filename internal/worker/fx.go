package worker

import (
	"context"

	"go.uber.org/fx"
)

// Module runs the grading worker for the lifetime of the process.
var Module = fx.Module("worker",
	fx.Provide(New),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
