package domain

import (
	"slices"
	"time"
)

// BookingStatus describes where a booking sits in its lifecycle.
type BookingStatus string

const (
	// BookingStatusPending is the initial state after the finalize step is submitted.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusConfirmed is reached only after payment has been observed (card) or
	// recorded by staff (e-transfer).
	BookingStatusConfirmed BookingStatus = "confirmed"
	// BookingStatusRescheduled marks a schedule change without a new payment.
	BookingStatusRescheduled BookingStatus = "rescheduled"
	// BookingStatusCancelled is terminal for customer actions. Records are retained.
	BookingStatusCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:     {BookingStatusConfirmed, BookingStatusRescheduled, BookingStatusCancelled},
	BookingStatusRescheduled: {BookingStatusRescheduled, BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:   {BookingStatusRescheduled, BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusCancelled:   {},
}

// Valid reports whether the status is a known lifecycle state.
func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// Terminal reports whether no further customer transitions are allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled
}

// PaymentState tracks card payment progress for a booking.
type PaymentState string

const (
	PaymentStateNone      PaymentState = "none"
	PaymentStateAwaiting  PaymentState = "awaiting"
	PaymentStateSucceeded PaymentState = "succeeded"
	PaymentStateFailed    PaymentState = "failed"
	PaymentStateRefunded  PaymentState = "refunded"
)

// Customer holds contact details; Email doubles as the lookup credential.
type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Address is the service location.
type Address struct {
	Street     string `json:"street"`
	Unit       string `json:"unit,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
}

// BookingArea snapshots the coverage classification at booking time.
type BookingArea struct {
	FSA  string
	Tier string
}

// PaymentRecord captures the most recent payment activity on a booking.
type PaymentRecord struct {
	State PaymentState
	// IntentID is the processor intent whose success confirmed the booking.
	IntentID string
	// PendingIntentID is the latest intent handed to the customer and not yet settled.
	PendingIntentID   string
	AmountPaid        int64
	PaidAt            *time.Time
	DeferredReference string
}

// Booking is the durable aggregate for one customer appointment. ID is the customer-facing
// reference assigned by the store.
type Booking struct {
	ID            string
	Status        BookingStatus
	Customer      Customer
	Address       Address
	Area          BookingArea
	Service       ServiceSelection
	Pricing       Quote
	PaymentMethod PaymentMethod
	Schedule      *Schedule
	Payment       PaymentRecord
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// CanTransition reports whether the booking may move to the target status.
func (b Booking) CanTransition(to BookingStatus) bool {
	return slices.Contains(bookingTransitions[b.Status], to)
}

// FirstScheduling reports whether the booking has never had a service date.
func (b Booking) FirstScheduling() bool {
	return b.Schedule == nil || b.Schedule.Date.IsZero()
}

// Paid reports whether a card payment has been captured for the booking.
func (b Booking) Paid() bool {
	return b.Payment.State == PaymentStateSucceeded
}

// PaymentIntent is the processor handle returned to the browser for one payment attempt.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// ReconciliationStatus tracks manual follow-up of payment/booking mismatches.
type ReconciliationStatus string

const (
	ReconciliationStatusOpen     ReconciliationStatus = "open"
	ReconciliationStatusResolved ReconciliationStatus = "resolved"
)

// Reconciliation records a captured payment whose booking update did not persist.
type Reconciliation struct {
	ID              string
	BookingID       string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Schedule        *Schedule
	Reason          string
	Status          ReconciliationStatus
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	ResolvedBy      string
	Note            string
}
