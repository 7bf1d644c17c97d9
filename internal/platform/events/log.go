package events

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log. It is the default for local development.
type LogPublisher struct {
	logger *zap.Logger
	closed atomic.Bool
}

// NewLogPublisher constructs a LogPublisher. A nil logger discards events.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

// Publish logs the event.
func (l *LogPublisher) Publish(_ context.Context, event Event) error {
	if l.closed.Load() {
		return ErrPublisherClosed
	}
	l.logger.Info("booking event",
		zap.String("eventId", event.ID),
		zap.String("eventType", event.Type),
		zap.String("bookingId", event.BookingID),
		zap.Time("occurredAt", event.OccurredAt),
		zap.Any("data", event.Data),
	)
	return nil
}

// Close marks the publisher closed.
func (l *LogPublisher) Close() error {
	l.closed.Store(true)
	return nil
}
