package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is the time source injected into every component that computes
// deadlines, so tests can drive the auto-release window deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
