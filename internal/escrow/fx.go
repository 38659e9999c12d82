package escrow

import (
	"github.com/loopmarket/escrow/internal/escrow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("escrow.service",
	fx.Provide(service.NewExecutor),
	fx.Provide(service.NewService),
)
