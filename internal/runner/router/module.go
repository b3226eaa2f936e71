package router

import (
	"context"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	healthstate "trade_core/internal/modules/health/service"
	"trade_core/internal/runner"
	"trade_core/internal/runner/sessions"
	pgstore "trade_core/internal/store/pg"
	"trade_core/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			runner.NewJobQueue,
			runner.NewEntitlements,
			NewRouter,

			func(cfg *config.Config) Config {
				return Config{
					DrainInterval:       cfg.DrainInterval,
					HealthCheckInterval: cfg.HealthCheckInterval,
					RestartCap:          cfg.RestartCap,
					GroupTimeout:        cfg.GroupTimeout,
					OrphanScanInterval:  cfg.OrphanScanInterval,
					BrokerCallTimeout:   cfg.BrokerCallTimeout,
					BrokerRetries:       cfg.BrokerRetries,
					SignalQueueMax:      cfg.SignalQueueMax,
				}
			},
			func(txm *db.PgTxManager) sessions.PositionStore {
				return pgstore.NewPositions(txm)
			},
			func(txm *db.PgTxManager) runner.EntitlementStore {
				return pgstore.NewEntitlements(txm)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Router, sigs chan models.Signal, state *healthstate.State) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go r.RunDrainLoop(ctx)
					go r.RunHealthLoop(ctx)
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case sig := <-sigs:
								state.TouchSignal(time.Now())
								r.OnSignal(sig)
							}
						}
					}()
					return nil
				},
				OnStop: func(_ context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
