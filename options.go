package bookmark

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is used to override defaults when creating a new Session
type Option func(*Session)

// WithStore overrides the default bookmark storage
func WithStore(store Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithCounter overrides the default counter
func WithCounter(counter Counter) Option {
	return func(s *Session) {
		s.counter = counter
	}
}

// WithMetricRegistry registers the session's prometheus collectors with the
// given registry
func WithMetricRegistry(registry prometheus.Registerer) Option {
	return func(s *Session) {
		registry.MustRegister(
			counterMessagesDelivered,
			counterMessagesDiscarded,
			counterDiscardFailures,
		)
	}
}
