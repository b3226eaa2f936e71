package main

import (
	"context"
	"log"

	"trade_core/internal/modules/config"
	"trade_core/internal/modules/health"
	"trade_core/internal/modules/marketdata"
	"trade_core/internal/modules/okx_client"
	"trade_core/internal/modules/postgres"
	"trade_core/internal/notify"
	"trade_core/internal/runner/router"
	"trade_core/pkg/logger"
	"trade_core/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if err := logger.Init(cfg.Service.LogLevel); err != nil {
				return err
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
		postgres.Module(),
		okx_client.Module(),
		notify.Module(),
		marketdata.Module(),
		router.Module(),
		health.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}
