package processor

import (
	"github.com/loopmarket/escrow/internal/config"
	"go.uber.org/fx"
)

func NewFromConfig(cfg config.Config) Client {
	return NewStripe(StripeConfig{
		BaseURL:   cfg.Processor.BaseURL,
		SecretKey: cfg.Processor.SecretKey,
		Timeout:   cfg.Processor.Timeout,
	})
}

var Module = fx.Module("processor",
	fx.Provide(NewFromConfig),
)
