package marketdata

import (
	"context"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/marketdata/service"

	"go.uber.org/fx"
)

// Module поднимает стрим закрытых свечей и сигнальный источник.
// Наружу отдаётся канал сигналов — его читает роутер оркестратора.
func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			service.NewStreamer,
			func(cfg *config.Config) chan models.Signal {
				return make(chan models.Signal, cfg.SignalQueueMax)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Streamer, cfg *config.Config, sigs chan models.Signal) {
			ctx, cancel := context.WithCancel(context.Background())
			ema := service.NewEMASource(cfg.DefaultEMAShort, cfg.DefaultEMALong)

			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					ticks := s.StreamCandles(ctx, cfg.WatchInstruments, cfg.DefaultTimeframe)
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case ct, ok := <-ticks:
								if !ok {
									return
								}
								if sig := ema.OnTick(ct); sig != nil {
									select {
									case sigs <- *sig:
									default:
										// потребитель отстал — сигнал устаревает мгновенно
									}
								}
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
