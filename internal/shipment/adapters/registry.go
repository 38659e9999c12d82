package adapters

import (
	"strings"

	"github.com/loopmarket/escrow/internal/shipment/domain"
)

// Factory builds an adapter for one carrier from its webhook config.
type Factory interface {
	Carrier() string
	NewAdapter(cfg domain.AdapterConfig) (domain.CarrierAdapter, error)
}

type Registry struct {
	factories map[string]Factory
}

func NewRegistry(factories ...Factory) *Registry {
	reg := &Registry{factories: make(map[string]Factory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		reg.factories[strings.ToLower(f.Carrier())] = f
	}
	return reg
}

func (r *Registry) CarrierExists(carrier string) bool {
	_, ok := r.factories[strings.ToLower(strings.TrimSpace(carrier))]
	return ok
}

func (r *Registry) NewAdapter(carrier string, cfg domain.AdapterConfig) (domain.CarrierAdapter, error) {
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(carrier))]
	if !ok {
		return nil, domain.ErrCarrierNotFound
	}
	return factory.NewAdapter(cfg)
}
