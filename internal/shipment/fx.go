package shipment

import (
	"github.com/loopmarket/escrow/internal/shipment/adapters"
	"github.com/loopmarket/escrow/internal/shipment/adapters/easypost"
	"github.com/loopmarket/escrow/internal/shipment/adapters/shippo"
	"github.com/loopmarket/escrow/internal/shipment/repository"
	"github.com/loopmarket/escrow/internal/shipment/service"
	"go.uber.org/fx"
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		shippo.NewFactory(),
		easypost.NewFactory(),
	)
}

var Module = fx.Module("shipment",
	fx.Provide(
		newRegistry,
		repository.Provide,
		service.NewService,
	),
)
