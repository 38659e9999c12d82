package order

import (
	"github.com/loopmarket/escrow/internal/order/repository"
	"github.com/loopmarket/escrow/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
