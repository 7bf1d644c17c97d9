package domain

import (
	"errors"
	"fmt"
)

// SessionStep enumerates the stages of the booking flow.
type SessionStep string

const (
	SessionStepQuote        SessionStep = "quote"
	SessionStepFinalize     SessionStep = "finalize"
	SessionStepConfirmation SessionStep = "confirmation"
)

var (
	// ErrSessionIncomplete indicates the current step is missing inputs required to advance.
	ErrSessionIncomplete = errors.New("session: step incomplete")
	// ErrSessionAnchorsMismatch indicates anchors resolved for a different postal code.
	ErrSessionAnchorsMismatch = errors.New("session: anchors do not match postal code")
	// ErrSessionFinished indicates the flow has already reached confirmation.
	ErrSessionFinished = errors.New("session: already confirmed")
)

// BookingSession is the explicit, serialisable state of one customer's pass through the
// booking flow. It travels with each request instead of living in shared server state.
type BookingSession struct {
	Step          SessionStep      `json:"step"`
	PostalCode    string           `json:"postalCode"`
	Anchors       *Anchors         `json:"anchors,omitempty"`
	Selection     ServiceSelection `json:"selection"`
	Contact       Customer         `json:"contact"`
	Address       Address          `json:"address"`
	PaymentMethod PaymentMethod    `json:"paymentMethod,omitempty"`
	BookingID     string           `json:"bookingId,omitempty"`
}

// NewBookingSession starts a session at the quote step.
func NewBookingSession() BookingSession {
	return BookingSession{Step: SessionStepQuote}
}

// SetPostalCode stores the normalised postal code. A change discards anchors and returns the
// flow to the quote step; the return value reports whether the code changed.
func (s *BookingSession) SetPostalCode(raw string) bool {
	code := NormalizePostalCode(raw)
	if code == s.PostalCode {
		return false
	}
	s.PostalCode = code
	s.Anchors = nil
	if s.Step != SessionStepConfirmation {
		s.Step = SessionStepQuote
	}
	return true
}

// ApplyAnchors attaches anchors resolved for the session's current postal code.
func (s *BookingSession) ApplyAnchors(anchors Anchors) error {
	if !anchors.ValidFor(s.PostalCode) {
		return ErrSessionAnchorsMismatch
	}
	s.Anchors = &anchors
	return nil
}

// HasAnchors reports whether the session holds anchors for its postal code.
func (s BookingSession) HasAnchors() bool {
	return s.Anchors != nil && s.Anchors.ValidFor(s.PostalCode)
}

// Advance moves the session to the next step when the current step is complete.
func (s *BookingSession) Advance() error {
	switch s.Step {
	case "", SessionStepQuote:
		if !s.HasAnchors() {
			return fmt.Errorf("%w: postal code not resolved", ErrSessionIncomplete)
		}
		if missing := s.Selection.MissingFields(); len(missing) > 0 {
			return fmt.Errorf("%w: %v", ErrSessionIncomplete, missing)
		}
		s.Step = SessionStepFinalize
	case SessionStepFinalize:
		if s.BookingID == "" {
			return fmt.Errorf("%w: booking not submitted", ErrSessionIncomplete)
		}
		s.Step = SessionStepConfirmation
	case SessionStepConfirmation:
		return ErrSessionFinished
	default:
		return fmt.Errorf("%w: unknown step %q", ErrSessionIncomplete, s.Step)
	}
	return nil
}

// Reset clears the session back to an empty quote step.
func (s *BookingSession) Reset() {
	*s = NewBookingSession()
}

// MissingFields lists selection fields that are absent or out of range.
func (sel ServiceSelection) MissingFields() []string {
	var missing []string
	if !sel.PropertyType.Valid() {
		missing = append(missing, "propertyType")
	}
	if sel.Bedrooms < 1 {
		missing = append(missing, "bedrooms")
	}
	if sel.Bathrooms < 1 {
		missing = append(missing, "bathrooms")
	}
	if sel.CleaningType != "" && !sel.CleaningType.Valid() {
		missing = append(missing, "cleaningType")
	}
	if !sel.Frequency.Valid() {
		missing = append(missing, "frequency")
	}
	return missing
}
