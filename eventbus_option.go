package shopscale

import "github.com/ZanzyTHEbar/shopscale-genkit/internal/eventbus"

// WithEventBus sets the event bus component. A supplied bus is not closed by Close.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *ShopScale) {
		s.eventBus = bus
	}
}
