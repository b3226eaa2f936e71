package okx_client

import (
	"trade_core/internal/broker"
	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/okx_client/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(func(cfg *config.Config) broker.Factory {
			return func(creds models.BrokerCredentials) broker.Broker {
				return service.NewClient(creds, cfg.BrokerCallTimeout)
			}
		}),
	)
}
