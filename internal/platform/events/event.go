package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Booking lifecycle event types.
const (
	TypeBookingCreated                = "booking.created"
	TypeBookingRescheduled            = "booking.rescheduled"
	TypeBookingCancelled              = "booking.cancelled"
	TypeBookingConfirmed              = "booking.confirmed"
	TypeBookingPaymentFailed          = "booking.payment_failed"
	TypeBookingPaymentReversed        = "booking.payment_reversed"
	TypeBookingReconciliationRequired = "booking.reconciliation_required"
)

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("events: publisher closed")

// Event is the envelope published for booking lifecycle changes. Data must not carry
// customer contact details.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	BookingID  string         `json:"bookingId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// New builds an event with a fresh ULID.
func New(eventType, bookingID string, at time.Time, data map[string]any) Event {
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:         ulid.Make().String(),
		Type:       strings.TrimSpace(eventType),
		BookingID:  strings.TrimSpace(bookingID),
		OccurredAt: at.UTC(),
		Data:       data,
	}
}

// Publisher delivers events to a downstream bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func attributes(event Event) map[string]string {
	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "bookingId", event.BookingID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
