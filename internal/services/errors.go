package services

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

// ErrReconciliationRequired matches any *ReconciliationError.
var ErrReconciliationRequired = errors.New("booking: payment captured but booking not updated")

// ValidationError carries field-level messages for rejected input. Err is the service
// sentinel the failure belongs to.
type ValidationError struct {
	Err    error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	base := "validation failed"
	if e.Err != nil {
		base = e.Err.Error()
	}
	if len(e.Fields) == 0 {
		return base
	}
	keys := slices.Sorted(maps.Keys(e.Fields))
	return fmt.Sprintf("%s: %s", base, strings.Join(keys, ", "))
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// fieldErrors collects validation messages keyed by field path.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err(base error) error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Err: base, Fields: maps.Clone(map[string]string(f))}
}

// ReconciliationError reports a payment the processor captured while the booking update did
// not persist. It must be surfaced for manual follow-up and never retried against the
// processor.
type ReconciliationError struct {
	BookingID        string
	IntentID         string
	ReconciliationID string
	Reason           string
	Err              error
}

func (e *ReconciliationError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s (booking %s, intent %s, reason %s)", ErrReconciliationRequired.Error(), e.BookingID, e.IntentID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReconciliationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrReconciliationRequired) match.
func (e *ReconciliationError) Is(target error) bool {
	return target == ErrReconciliationRequired
}

// PaymentError describes a declined payment. Message is safe to show to the payer.
type PaymentError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *PaymentError) Error() string {
	if e == nil {
		return ""
	}
	code := e.Code
	if e.DeclineCode != "" {
		code += "/" + e.DeclineCode
	}
	return fmt.Sprintf("%s: %s", ErrPaymentFailed.Error(), strings.Trim(code, "/"))
}

func (e *PaymentError) Unwrap() error {
	return ErrPaymentFailed
}

// classifyRepositoryError maps a persistence failure onto the given sentinels. Errors that do
// not implement repositories.RepositoryError are treated as unavailability.
func classifyRepositoryError(err error, notFound, conflict, unavailable error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return notFound
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		}
	}
	return fmt.Errorf("%w: %v", unavailable, err)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
