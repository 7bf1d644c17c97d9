package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const genericDeclineMessage = "Your payment could not be processed. Please try another card."

var (
	// ErrPaymentInvalidInput indicates a malformed payment request.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentFailed indicates the processor declined the payment. See *PaymentError.
	ErrPaymentFailed = errors.New("payment: failed")
	// ErrPaymentPending indicates the intent has not settled yet.
	ErrPaymentPending = errors.New("payment: pending")
	// ErrPaymentNotAllowed indicates the booking cannot take a card payment.
	ErrPaymentNotAllowed = errors.New("payment: not allowed for booking")
	// ErrPaymentMismatch indicates the intent belongs to a different booking.
	ErrPaymentMismatch = errors.New("payment: intent does not match booking")
	// ErrPaymentUnavailable indicates the processor or the store failed.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
	// ErrPaymentInvalidSignature indicates a webhook that failed verification.
	ErrPaymentInvalidSignature = errors.New("payment: invalid webhook signature")
)

// paymentGateway is the slice of payments.Manager the coordinator drives.
type paymentGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, intentID string) (payments.PaymentDetails, error)
	CancelIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CancelRequest) error
	ParseWebhook(paymentCtx payments.PaymentContext, payload []byte, signature string) (payments.WebhookEvent, error)
}

// PaymentServiceDeps wires the payment coordinator.
type PaymentServiceDeps struct {
	Bookings  repositories.BookingRepository
	Lifecycle BookingService
	Payments  paymentGateway
	Events    eventPublisher
	Observer  LifecycleObserver
	Currency  string
	Location  *time.Location
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	bookings  repositories.BookingRepository
	lifecycle BookingService
	payments  paymentGateway
	events    eventPublisher
	observer  LifecycleObserver
	currency  string
	location  *time.Location
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs the payment coordinator validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	switch {
	case deps.Bookings == nil:
		return nil, errors.New("payment service: booking repository is required")
	case deps.Lifecycle == nil:
		return nil, errors.New("payment service: booking service is required")
	case deps.Payments == nil:
		return nil, errors.New("payment service: payment manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "CAD"
	}

	return &paymentService{
		bookings:  deps.Bookings,
		lifecycle: deps.Lifecycle,
		payments:  deps.Payments,
		events:    deps.Events,
		observer:  observer,
		currency:  currency,
		location:  loc,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a new intent for the booking's frozen total and records it as the
// booking's pending intent. The requested slot travels in the intent metadata until payment
// succeeds.
func (s *paymentService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (domain.PaymentIntent, error) {
	cred := normaliseCredential(cmd.Credential)
	if cred.BookingID == "" || cred.Email == "" {
		return domain.PaymentIntent{}, ErrBookingNotFound
	}
	schedule, err := parseSchedule(cmd.Schedule, s.now(), s.location, ErrPaymentInvalidInput)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	booking, err := s.bookings.FindByIDAndEmail(ctx, cred.BookingID, cred.Email)
	if err != nil {
		return domain.PaymentIntent{}, classifyRepositoryError(err, ErrBookingNotFound, nil, ErrPaymentUnavailable)
	}
	switch {
	case booking.Status == domain.BookingStatusCancelled:
		return domain.PaymentIntent{}, ErrBookingCancelled
	case booking.PaymentMethod.Deferred():
		return domain.PaymentIntent{}, fmt.Errorf("%w: booking is paid by e-transfer", ErrPaymentNotAllowed)
	case booking.Paid():
		return domain.PaymentIntent{}, fmt.Errorf("%w: booking is already paid", ErrPaymentNotAllowed)
	case booking.Pricing.Total <= 0:
		return domain.PaymentIntent{}, fmt.Errorf("%w: booking has no payable total", ErrPaymentNotAllowed)
	}

	paymentCtx := s.paymentContext(booking)
	intent, err := s.payments.CreateIntent(ctx, paymentCtx, payments.IntentRequest{
		Amount:       booking.Pricing.Total,
		Currency:     paymentCtx.Currency,
		Description:  "Cleaning booking #" + booking.ID,
		ReceiptEmail: booking.Customer.Email,
		Metadata: map[string]string{
			payments.MetadataBookingID:   booking.ID,
			payments.MetadataServiceDate: schedule.DateString(),
			payments.MetadataServiceTime: schedule.TimeSlot,
		},
		IdempotencyKey: intentIdempotencyKey(booking, schedule, cmd.IdempotencyKey),
	})
	if err != nil {
		s.logger(ctx, "payment.intent_create_failed", map[string]any{
			"bookingID": booking.ID,
			"error":     err.Error(),
		})
		return domain.PaymentIntent{}, translateProcessorError(err)
	}

	var superseded string
	_, err = s.bookings.Mutate(ctx, booking.ID, func(b *domain.Booking) (bool, error) {
		superseded = ""
		if b.Status == domain.BookingStatusCancelled {
			return false, ErrBookingCancelled
		}
		if b.Paid() {
			return false, ErrPaymentNotAllowed
		}
		if prev := b.Payment.PendingIntentID; prev != "" && prev != intent.ID {
			superseded = prev
		}
		b.Payment.PendingIntentID = intent.ID
		b.Payment.State = domain.PaymentStateAwaiting
		b.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		s.abandonIntent(ctx, paymentCtx, booking.ID, intent.ID)
		if errors.Is(err, ErrPaymentNotAllowed) {
			return domain.PaymentIntent{}, ErrPaymentNotAllowed
		}
		return domain.PaymentIntent{}, s.storeError(err)
	}
	// One live intent per booking: the previous attempt must not be payable any more.
	if superseded != "" {
		s.abandonIntent(ctx, paymentCtx, booking.ID, superseded)
	}

	s.logger(ctx, "payment.intent_created", map[string]any{
		"bookingID":     booking.ID,
		"paymentIntent": intent.ID,
		"provider":      intent.Provider,
		"amount":        booking.Pricing.Total,
		"serviceDate":   schedule.DateString(),
	})
	return domain.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       booking.Pricing.Total,
		Currency:     strings.ToUpper(firstNonEmpty(intent.Currency, paymentCtx.Currency)),
	}, nil
}

// Confirm checks an intent the browser reports as finished. Only the processor's view is
// trusted; a succeeded intent is handed to the lifecycle manager.
func (s *paymentService) Confirm(ctx context.Context, cmd ConfirmCommand) (domain.Booking, error) {
	cred := normaliseCredential(cmd.Credential)
	if cred.BookingID == "" || cred.Email == "" {
		return domain.Booking{}, ErrBookingNotFound
	}
	intentID := strings.TrimSpace(cmd.IntentID)
	if intentID == "" {
		return domain.Booking{}, &ValidationError{Err: ErrPaymentInvalidInput, Fields: map[string]string{"paymentIntentId": "is required"}}
	}

	booking, err := s.bookings.FindByIDAndEmail(ctx, cred.BookingID, cred.Email)
	if err != nil {
		return domain.Booking{}, classifyRepositoryError(err, ErrBookingNotFound, nil, ErrPaymentUnavailable)
	}
	// Only the current attempt can be confirmed here. A replay of the intent that already
	// confirmed the booking stays idempotent.
	if intentID != booking.Payment.PendingIntentID && intentID != booking.Payment.IntentID {
		s.logger(ctx, "payment.intent_superseded", map[string]any{
			"bookingID":     booking.ID,
			"paymentIntent": intentID,
		})
		return domain.Booking{}, fmt.Errorf("%w: intent is not the booking's current payment attempt", ErrPaymentMismatch)
	}

	details, err := s.payments.LookupPayment(ctx, s.paymentContext(booking), intentID)
	if err != nil {
		s.logger(ctx, "payment.lookup_failed", map[string]any{
			"bookingID":     booking.ID,
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
		return domain.Booking{}, translateProcessorError(err)
	}
	if strings.TrimSpace(details.Metadata[payments.MetadataBookingID]) != booking.ID {
		s.logger(ctx, "payment.intent_mismatch", map[string]any{
			"bookingID":     booking.ID,
			"paymentIntent": intentID,
		})
		return domain.Booking{}, ErrPaymentMismatch
	}

	switch details.Status {
	case payments.StatusSucceeded:
		return s.lifecycle.FinalizeAfterPayment(ctx, finalizeCommand(booking.ID, details, s.location))
	case payments.StatusFailed, payments.StatusCanceled:
		s.recordFailure(ctx, booking.ID, details)
		return domain.Booking{}, declineError(details.Failure)
	case payments.StatusRefunded:
		return domain.Booking{}, fmt.Errorf("%w: payment was refunded", ErrPaymentFailed)
	default:
		return domain.Booking{}, ErrPaymentPending
	}
}

// HandleWebhook applies a verified processor notification. A nil return acknowledges the
// event; any other error asks the processor to redeliver it.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.payments.ParseWebhook(payments.PaymentContext{Currency: s.currency}, payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			s.logger(ctx, "payment.webhook_rejected", map[string]any{"error": err.Error()})
			return ErrPaymentInvalidSignature
		}
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	bookingID := strings.TrimSpace(event.Payment.Metadata[payments.MetadataBookingID])
	fields := map[string]any{
		"eventID":       event.ID,
		"eventType":     event.Type,
		"paymentIntent": event.Payment.IntentID,
		"bookingID":     bookingID,
	}
	if bookingID == "" && (event.Type == payments.EventPaymentSucceeded || event.Type == payments.EventPaymentFailed) {
		s.logger(ctx, "payment.webhook_unattributed", fields)
		return nil
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		if event.Payment.Status != payments.StatusSucceeded {
			s.logger(ctx, "payment.webhook_status_ignored", fields)
			return nil
		}
		_, err := s.lifecycle.FinalizeAfterPayment(ctx, finalizeCommand(bookingID, event.Payment, s.location))
		switch {
		case err == nil:
			s.logger(ctx, "payment.webhook_finalized", fields)
			return nil
		case errors.Is(err, ErrReconciliationRequired), errors.Is(err, ErrBookingPaymentReversed):
			// Already recorded for follow-up; redelivery would not change the outcome.
			return nil
		case errors.Is(err, ErrBookingInvalidInput):
			fields["error"] = err.Error()
			s.logger(ctx, "payment.webhook_invalid", fields)
			return nil
		default:
			return err
		}
	case payments.EventPaymentFailed:
		if _, err := s.bookings.FindByID(ctx, bookingID); err != nil {
			mapped := classifyRepositoryError(err, ErrBookingNotFound, nil, ErrPaymentUnavailable)
			if errors.Is(mapped, ErrBookingNotFound) {
				s.logger(ctx, "payment.webhook_unknown_booking", fields)
				return nil
			}
			return mapped
		}
		s.recordFailure(ctx, bookingID, event.Payment)
		return nil
	default:
		s.logger(ctx, "payment.webhook_ignored", fields)
		return nil
	}
}

// recordFailure marks the pending intent as failed. Failures never change the booking status.
func (s *paymentService) recordFailure(ctx context.Context, bookingID string, details payments.PaymentDetails) {
	changed := false
	updated, err := s.bookings.Mutate(ctx, bookingID, func(b *domain.Booking) (bool, error) {
		changed = false
		if b.Paid() || b.Status == domain.BookingStatusCancelled {
			return false, nil
		}
		if b.Payment.PendingIntentID != "" && b.Payment.PendingIntentID != details.IntentID {
			return false, nil
		}
		if b.Payment.State == domain.PaymentStateFailed {
			return false, nil
		}
		b.Payment.State = domain.PaymentStateFailed
		b.UpdatedAt = s.now()
		changed = true
		return true, nil
	})
	fields := map[string]any{
		"bookingID":     bookingID,
		"paymentIntent": details.IntentID,
	}
	if details.Failure != nil {
		fields["code"] = details.Failure.Code
		fields["declineCode"] = details.Failure.DeclineCode
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "payment.failure_record_failed", fields)
		return
	}
	if !changed {
		return
	}

	s.observer.PaymentOutcome("failed")
	s.logger(ctx, "payment.failed", fields)
	if s.events == nil {
		return
	}
	data := map[string]any{
		"paymentIntent": details.IntentID,
		"status":        string(updated.Status),
	}
	if details.Failure != nil && details.Failure.Code != "" {
		data["code"] = details.Failure.Code
	}
	if err := s.events.Publish(ctx, events.New(events.TypeBookingPaymentFailed, bookingID, s.now(), data)); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"bookingID": bookingID,
			"error":     err.Error(),
		})
	}
}

func (s *paymentService) abandonIntent(ctx context.Context, paymentCtx payments.PaymentContext, bookingID, intentID string) {
	err := s.payments.CancelIntent(ctx, paymentCtx, payments.CancelRequest{
		IntentID:       intentID,
		Reason:         "abandoned",
		IdempotencyKey: "cancel:" + intentID,
	})
	if err != nil {
		s.logger(ctx, "payment.intent_abandon_failed", map[string]any{
			"bookingID":     bookingID,
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) storeError(err error) error {
	for _, sentinel := range []error{ErrBookingNotFound, ErrBookingCancelled} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return classifyRepositoryError(err, ErrBookingNotFound, ErrBookingConflict, ErrPaymentUnavailable)
}

func (s *paymentService) paymentContext(b domain.Booking) payments.PaymentContext {
	return payments.PaymentContext{Currency: firstNonEmpty(b.Pricing.Currency, s.currency)}
}

// intentIdempotencyKey scopes the client key to the booking, amount and slot so a retried
// request reuses the intent while a changed slot opens a new one.
func intentIdempotencyKey(b domain.Booking, schedule domain.Schedule, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	base := strings.Join([]string{b.ID, key, strconv.FormatInt(b.Pricing.Total, 10), schedule.DateString(), schedule.TimeSlot}, "|")
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

func finalizeCommand(bookingID string, details payments.PaymentDetails, loc *time.Location) FinalizeCommand {
	amount := details.AmountReceived
	if amount <= 0 {
		amount = details.Amount
	}
	return FinalizeCommand{
		BookingID: bookingID,
		Payment: VerifiedPayment{
			IntentID: details.IntentID,
			Amount:   amount,
			Currency: details.Currency,
		},
		Schedule: scheduleFromMetadata(details.Metadata, loc),
	}
}

// scheduleFromMetadata returns nil when the intent carries no usable slot.
func scheduleFromMetadata(meta map[string]string, loc *time.Location) *domain.Schedule {
	date, err := domain.ParseServiceDate(meta[payments.MetadataServiceDate], loc)
	if err != nil {
		return nil
	}
	slot, ok := domain.NormalizeTimeSlot(meta[payments.MetadataServiceTime])
	if !ok {
		return nil
	}
	return &domain.Schedule{Date: date, TimeSlot: slot}
}

func declineError(failure *payments.Failure) *PaymentError {
	out := &PaymentError{Message: genericDeclineMessage}
	if failure == nil {
		return out
	}
	out.Code = failure.Code
	out.DeclineCode = failure.DeclineCode
	if failure.SafeToDisplay() {
		out.Message = failure.Message
	}
	return out
}

func translateProcessorError(err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
}
