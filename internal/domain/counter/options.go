package counter

import (
	"log/slog"
	"time"
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJournal records room events after each successful operation.
func WithJournal(journal Journal) Option {
	return func(s *Service) { s.journal = journal }
}

// WithMirror copies every persisted document through the mirror.
func WithMirror(mirror Mirror) Option {
	return func(s *Service) { s.mirror = mirror }
}

// WithObserver reports operation outcomes.
func WithObserver(observer Observer) Option {
	return func(s *Service) { s.observer = observer }
}
