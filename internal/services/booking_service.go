package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/observability"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/textutil"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const (
	minNameLength   = 2
	minStreetLength = 5

	reconciliationReasonStoreFailure   = "store_failure"
	reconciliationReasonAmountMismatch = "amount_mismatch"
	reconciliationReasonDuplicate      = "duplicate_payment"
	reconciliationReasonRefundFailed   = "refund_failed"
	reconciliationReasonInvalidState   = "invalid_state"
	reconciliationReasonNotFound       = "booking_not_found"
)

var phonePattern = regexp.MustCompile(`^\d{3}-\d{3}-\d{4}$`)

var (
	// ErrBookingInvalidInput is the base of every booking *ValidationError.
	ErrBookingInvalidInput = errors.New("booking: invalid input")
	// ErrBookingNotFound is returned for unknown references and for credential mismatches alike.
	ErrBookingNotFound = errors.New("booking: not found")
	// ErrBookingCancelled indicates the booking is cancelled and accepts no further changes.
	ErrBookingCancelled = errors.New("booking: cancelled")
	// ErrBookingInvalidState indicates the requested transition is not allowed from the current state.
	ErrBookingInvalidState = errors.New("booking: invalid state")
	// ErrBookingQuoteChanged indicates the server-side quote differs from the total the customer saw.
	ErrBookingQuoteChanged = errors.New("booking: quote changed")
	// ErrBookingConflict indicates a concurrent write prevented the update.
	ErrBookingConflict = errors.New("booking: conflict")
	// ErrBookingUnavailable indicates the store or a collaborator failed.
	ErrBookingUnavailable = errors.New("booking: unavailable")
	// ErrBookingPaymentReversed indicates a payment arrived for a cancelled booking and was refunded.
	ErrBookingPaymentReversed = errors.New("booking: payment reversed for cancelled booking")
)

// bookingPayments is the slice of payments.Manager the lifecycle needs for reversals.
type bookingPayments interface {
	CancelIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CancelRequest) error
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// BookingServiceDeps wires the lifecycle manager.
type BookingServiceDeps struct {
	Bookings        repositories.BookingRepository
	Reconciliations repositories.ReconciliationRepository
	Areas           AreaService
	Pricing         PricingEngine
	Payments        bookingPayments
	Events          eventPublisher
	Observer        LifecycleObserver
	Location        *time.Location
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type bookingService struct {
	bookings        repositories.BookingRepository
	reconciliations repositories.ReconciliationRepository
	areas           AreaService
	pricing         PricingEngine
	payments        bookingPayments
	events          eventPublisher
	observer        LifecycleObserver
	location        *time.Location
	now             func() time.Time
	logger          func(ctx context.Context, event string, fields map[string]any)
}

var _ BookingService = (*bookingService)(nil)

// NewBookingService constructs the lifecycle manager validating required dependencies.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	switch {
	case deps.Bookings == nil:
		return nil, errors.New("booking service: booking repository is required")
	case deps.Reconciliations == nil:
		return nil, errors.New("booking service: reconciliation repository is required")
	case deps.Areas == nil:
		return nil, errors.New("booking service: area service is required")
	case deps.Pricing == nil:
		return nil, errors.New("booking service: pricing engine is required")
	case deps.Payments == nil:
		return nil, errors.New("booking service: payment manager is required")
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

	return &bookingService{
		bookings:        deps.Bookings,
		reconciliations: deps.Reconciliations,
		areas:           deps.Areas,
		pricing:         deps.Pricing,
		payments:        deps.Payments,
		events:          deps.Events,
		observer:        observer,
		location:        loc,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Create validates the submission, re-resolves anchors, re-prices and stores a pending booking.
func (s *bookingService) Create(ctx context.Context, cmd CreateBookingCommand) (domain.Booking, error) {
	booking, err := s.validateCreate(cmd)
	if err != nil {
		return domain.Booking{}, err
	}

	anchors, err := s.areas.Resolve(ctx, booking.Address.PostalCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrAreaInvalidFormat):
			return domain.Booking{}, &ValidationError{Err: ErrBookingInvalidInput, Fields: map[string]string{"address.postalCode": "must be in A1A 1A1 form"}}
		case errors.Is(err, ErrAreaNotFound), errors.Is(err, ErrAreaUnserved):
			return domain.Booking{}, err
		default:
			return domain.Booking{}, fmt.Errorf("%w: %v", ErrBookingUnavailable, err)
		}
	}

	// Store the selection exactly as it is priced.
	selection, err := normaliseSelection(booking.Service)
	if err != nil {
		return domain.Booking{}, &ValidationError{Err: ErrBookingInvalidInput, Fields: map[string]string{"selection": err.Error()}}
	}
	booking.Service = selection

	quote, err := s.pricing.Quote(booking.Service, anchors)
	if err != nil {
		return domain.Booking{}, &ValidationError{Err: ErrBookingInvalidInput, Fields: map[string]string{"selection": err.Error()}}
	}
	if cmd.ExpectedTotal != nil && *cmd.ExpectedTotal != quote.Total {
		return domain.Booking{}, fmt.Errorf("%w: expected %d, computed %d", ErrBookingQuoteChanged, *cmd.ExpectedTotal, quote.Total)
	}

	now := s.now()
	booking.Status = domain.BookingStatusPending
	booking.Area = domain.BookingArea{FSA: anchors.FSA, Tier: anchors.Tier}
	booking.Address.City = firstNonEmpty(booking.Address.City, anchors.City)
	booking.Pricing = quote
	booking.Payment = domain.PaymentRecord{State: domain.PaymentStateNone}
	if booking.PaymentMethod.Deferred() {
		booking.Payment.State = domain.PaymentStateAwaiting
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now

	stored, err := s.bookings.Insert(ctx, booking)
	if err != nil {
		s.logger(ctx, "booking.create_failed", map[string]any{
			"email": observability.MaskEmail(booking.Customer.Email),
			"error": err.Error(),
		})
		return domain.Booking{}, classifyRepositoryError(err, nil, ErrBookingConflict, ErrBookingUnavailable)
	}

	s.observer.BookingTransition("", domain.BookingStatusPending)
	s.logger(ctx, "booking.created", map[string]any{
		"bookingID": stored.ID,
		"email":     observability.MaskEmail(stored.Customer.Email),
		"tier":      stored.Area.Tier,
		"total":     stored.Pricing.Total,
	})
	s.publish(ctx, events.TypeBookingCreated, stored, map[string]any{
		"tier":          stored.Area.Tier,
		"frequency":     string(stored.Service.Frequency),
		"paymentMethod": string(stored.PaymentMethod),
		"total":         stored.Pricing.Total,
		"currency":      stored.Pricing.Currency,
	})
	return stored, nil
}

// Lookup returns the booking only when both the reference and the email match.
func (s *bookingService) Lookup(ctx context.Context, email string, reference string) (domain.Booking, error) {
	cred := normaliseCredential(Credential{BookingID: reference, Email: email})
	fields := fieldErrors{}
	if cred.BookingID == "" {
		fields.add("reference", "is required")
	}
	if cred.Email == "" {
		fields.add("email", "is required")
	}
	if err := fields.err(ErrBookingInvalidInput); err != nil {
		return domain.Booking{}, err
	}

	booking, err := s.bookings.FindByIDAndEmail(ctx, cred.BookingID, cred.Email)
	if err != nil {
		return domain.Booking{}, classifyRepositoryError(err, ErrBookingNotFound, nil, ErrBookingUnavailable)
	}
	return booking, nil
}

// Reschedule moves a non-cancelled booking to a new future slot. The status becomes
// rescheduled; only a verified payment confirms a booking.
func (s *bookingService) Reschedule(ctx context.Context, cmd RescheduleCommand) (RescheduleResult, error) {
	cred, err := s.credential(cmd.Credential)
	if err != nil {
		return RescheduleResult{}, err
	}
	schedule, err := parseSchedule(cmd.Schedule, s.now(), s.location, ErrBookingInvalidInput)
	if err != nil {
		return RescheduleResult{}, err
	}

	var first bool
	var from domain.BookingStatus
	updated, err := s.bookings.Mutate(ctx, cred.BookingID, func(b *domain.Booking) (bool, error) {
		if !strings.EqualFold(b.Customer.Email, cred.Email) {
			return false, ErrBookingNotFound
		}
		if b.Status.Terminal() {
			return false, ErrBookingCancelled
		}
		if !b.CanTransition(domain.BookingStatusRescheduled) {
			return false, ErrBookingInvalidState
		}
		first = b.FirstScheduling()
		from = b.Status
		b.Schedule = &schedule
		b.Status = domain.BookingStatusRescheduled
		b.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		return RescheduleResult{}, s.mutationError(err)
	}

	s.observer.BookingTransition(from, updated.Status)
	s.logger(ctx, "booking.rescheduled", map[string]any{
		"bookingID":       updated.ID,
		"serviceDate":     schedule.DateString(),
		"serviceTime":     schedule.TimeSlot,
		"firstScheduling": first,
	})
	s.publish(ctx, events.TypeBookingRescheduled, updated, map[string]any{
		"serviceDate":     schedule.DateString(),
		"serviceTime":     schedule.TimeSlot,
		"firstScheduling": first,
	})
	return RescheduleResult{Booking: updated, FirstScheduling: first}, nil
}

// Cancel marks the booking cancelled. Cancelling twice succeeds both times. A pending payment
// intent is cancelled best-effort so it cannot be completed afterwards.
func (s *bookingService) Cancel(ctx context.Context, credential Credential) (domain.Booking, error) {
	cred, err := s.credential(credential)
	if err != nil {
		return domain.Booking{}, err
	}

	var from domain.BookingStatus
	var pendingIntent string
	changed := false
	updated, err := s.bookings.Mutate(ctx, cred.BookingID, func(b *domain.Booking) (bool, error) {
		// The store may run this more than once; only the last attempt counts.
		from, pendingIntent, changed = "", "", false
		if !strings.EqualFold(b.Customer.Email, cred.Email) {
			return false, ErrBookingNotFound
		}
		if b.Status == domain.BookingStatusCancelled {
			return false, nil
		}
		if !b.CanTransition(domain.BookingStatusCancelled) {
			return false, ErrBookingInvalidState
		}
		now := s.now()
		from = b.Status
		b.Status = domain.BookingStatusCancelled
		b.CancelledAt = &now
		b.UpdatedAt = now
		if !b.Paid() {
			pendingIntent = b.Payment.PendingIntentID
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return domain.Booking{}, s.mutationError(err)
	}
	if !changed {
		return updated, nil
	}

	if pendingIntent != "" {
		err := s.payments.CancelIntent(ctx, s.paymentContext(updated), payments.CancelRequest{
			IntentID:       pendingIntent,
			Reason:         "requested_by_customer",
			IdempotencyKey: "cancel:" + pendingIntent,
		})
		if err != nil {
			s.logger(ctx, "booking.cancel_intent_failed", map[string]any{
				"bookingID":     updated.ID,
				"paymentIntent": pendingIntent,
				"error":         err.Error(),
			})
		}
	}

	s.observer.BookingTransition(from, domain.BookingStatusCancelled)
	s.logger(ctx, "booking.cancelled", map[string]any{
		"bookingID": updated.ID,
		"paid":      updated.Paid(),
	})
	s.publish(ctx, events.TypeBookingCancelled, updated, map[string]any{
		"previousStatus": string(from),
		"paid":           updated.Paid(),
	})
	return updated, nil
}

// finalizeOutcome records what the finalize mutation decided without writing.
type finalizeOutcome struct {
	from        domain.BookingStatus
	alreadyDone bool
	cancelled   bool
	mismatch    string
	booking     domain.Booking
}

// FinalizeAfterPayment confirms a booking after a verified capture. The schedule, status and
// payment record are written in one store transaction. Replays for the same intent are
// no-ops. A capture against a cancelled booking is refunded. Any other failure after the
// capture produces a *ReconciliationError; the processor is never called again to retry.
func (s *bookingService) FinalizeAfterPayment(ctx context.Context, cmd FinalizeCommand) (domain.Booking, error) {
	bookingID := strings.TrimSpace(cmd.BookingID)
	intentID := strings.TrimSpace(cmd.Payment.IntentID)
	if bookingID == "" || intentID == "" || cmd.Payment.Amount <= 0 {
		return domain.Booking{}, fmt.Errorf("%w: booking id, intent id and captured amount are required", ErrBookingInvalidInput)
	}

	var outcome finalizeOutcome
	updated, err := s.bookings.Mutate(ctx, bookingID, func(b *domain.Booking) (bool, error) {
		outcome = finalizeOutcome{from: b.Status, booking: *b}
		switch {
		case b.Payment.State == domain.PaymentStateSucceeded && b.Payment.IntentID == intentID:
			outcome.alreadyDone = true
			return false, nil
		case b.Status == domain.BookingStatusCancelled:
			outcome.cancelled = true
			return false, nil
		case b.Payment.State == domain.PaymentStateSucceeded:
			outcome.mismatch = reconciliationReasonDuplicate
			return false, nil
		case cmd.Payment.Amount != b.Pricing.Total:
			outcome.mismatch = reconciliationReasonAmountMismatch
			return false, nil
		case !b.CanTransition(domain.BookingStatusConfirmed):
			return false, ErrBookingInvalidState
		}

		now := s.now()
		paidAt := now
		if cmd.Schedule != nil && !cmd.Schedule.IsZero() {
			schedule := *cmd.Schedule
			b.Schedule = &schedule
		}
		b.Status = domain.BookingStatusConfirmed
		b.Payment = domain.PaymentRecord{
			State:      domain.PaymentStateSucceeded,
			IntentID:   intentID,
			AmountPaid: cmd.Payment.Amount,
			PaidAt:     &paidAt,
		}
		b.UpdatedAt = now
		return true, nil
	})

	switch {
	case err != nil:
		reason := reconciliationReasonStoreFailure
		switch mapped := s.mutationError(err); {
		case errors.Is(mapped, ErrBookingInvalidState):
			reason = reconciliationReasonInvalidState
		case errors.Is(mapped, ErrBookingNotFound):
			reason = reconciliationReasonNotFound
		}
		return domain.Booking{}, s.requireReconciliation(ctx, bookingID, cmd, reason, err)
	case outcome.alreadyDone:
		return updated, nil
	case outcome.cancelled:
		return domain.Booking{}, s.reversePayment(ctx, updated, cmd)
	case outcome.mismatch != "":
		return domain.Booking{}, s.requireReconciliation(ctx, bookingID, cmd, outcome.mismatch, nil)
	}

	s.observer.BookingTransition(outcome.from, domain.BookingStatusConfirmed)
	s.observer.PaymentOutcome("succeeded")
	s.logger(ctx, "booking.confirmed", map[string]any{
		"bookingID":     updated.ID,
		"paymentIntent": intentID,
		"amount":        cmd.Payment.Amount,
	})
	data := map[string]any{
		"paymentIntent": intentID,
		"amount":        cmd.Payment.Amount,
	}
	if updated.Schedule != nil {
		data["serviceDate"] = updated.Schedule.DateString()
		data["serviceTime"] = updated.Schedule.TimeSlot
	}
	s.publish(ctx, events.TypeBookingConfirmed, updated, data)
	return updated, nil
}

// RecordDeferredPayment confirms an e-transfer booking once staff have received the funds.
func (s *bookingService) RecordDeferredPayment(ctx context.Context, cmd DeferredPaymentCommand) (domain.Booking, error) {
	bookingID := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd.BookingID), "#"))
	reference := textutil.SanitizePlainText(cmd.Reference, 120)
	fields := fieldErrors{}
	if bookingID == "" {
		fields.add("bookingId", "is required")
	}
	if reference == "" {
		fields.add("reference", "is required")
	}
	if err := fields.err(ErrBookingInvalidInput); err != nil {
		return domain.Booking{}, err
	}

	var from domain.BookingStatus
	changed := false
	updated, err := s.bookings.Mutate(ctx, bookingID, func(b *domain.Booking) (bool, error) {
		from, changed = "", false
		if b.Status.Terminal() {
			return false, ErrBookingCancelled
		}
		if !b.PaymentMethod.Deferred() || b.FirstScheduling() {
			return false, ErrBookingInvalidState
		}
		if b.Payment.State == domain.PaymentStateSucceeded {
			if b.Payment.DeferredReference == reference {
				return false, nil
			}
			return false, ErrBookingInvalidState
		}
		now := s.now()
		from = b.Status
		b.Status = domain.BookingStatusConfirmed
		b.Payment = domain.PaymentRecord{
			State:             domain.PaymentStateSucceeded,
			AmountPaid:        b.Pricing.Total,
			PaidAt:            &now,
			DeferredReference: reference,
		}
		b.UpdatedAt = now
		changed = true
		return true, nil
	})
	if err != nil {
		return domain.Booking{}, s.mutationError(err)
	}
	if !changed {
		return updated, nil
	}

	s.observer.BookingTransition(from, domain.BookingStatusConfirmed)
	s.observer.PaymentOutcome("deferred")
	s.logger(ctx, "booking.deferred_payment_recorded", map[string]any{
		"bookingID":  updated.ID,
		"recordedBy": observability.SanitizeIdentifier(firstNonEmpty(cmd.RecordedBy, actorFromContext(ctx))),
	})
	s.publish(ctx, events.TypeBookingConfirmed, updated, map[string]any{
		"paymentMethod": string(updated.PaymentMethod),
		"amount":        updated.Payment.AmountPaid,
	})
	return updated, nil
}

// reversePayment refunds a capture that raced a cancellation.
func (s *bookingService) reversePayment(ctx context.Context, booking domain.Booking, cmd FinalizeCommand) error {
	_, err := s.payments.Refund(ctx, s.paymentContext(booking), payments.RefundRequest{
		IntentID:       cmd.Payment.IntentID,
		Reason:         "requested_by_customer",
		IdempotencyKey: "reverse:" + cmd.Payment.IntentID,
		Metadata: map[string]string{
			payments.MetadataBookingID: booking.ID,
		},
	})
	if err != nil {
		return s.requireReconciliation(ctx, booking.ID, cmd, reconciliationReasonRefundFailed, err)
	}

	if _, markErr := s.bookings.Mutate(ctx, booking.ID, func(b *domain.Booking) (bool, error) {
		b.Payment.State = domain.PaymentStateRefunded
		b.Payment.IntentID = cmd.Payment.IntentID
		b.Payment.PendingIntentID = ""
		b.UpdatedAt = s.now()
		return true, nil
	}); markErr != nil {
		s.logger(ctx, "booking.refund_mark_failed", map[string]any{
			"bookingID": booking.ID,
			"error":     markErr.Error(),
		})
	}

	s.observer.PaymentOutcome("reversed")
	s.logger(ctx, "booking.payment_reversed", map[string]any{
		"bookingID":     booking.ID,
		"paymentIntent": cmd.Payment.IntentID,
		"amount":        cmd.Payment.Amount,
	})
	s.publish(ctx, events.TypeBookingPaymentReversed, booking, map[string]any{
		"paymentIntent": cmd.Payment.IntentID,
		"amount":        cmd.Payment.Amount,
	})
	return ErrBookingPaymentReversed
}

// requireReconciliation records a captured payment that could not be applied.
func (s *bookingService) requireReconciliation(ctx context.Context, bookingID string, cmd FinalizeCommand, reason string, cause error) error {
	item := domain.Reconciliation{
		ID:              ulid.Make().String(),
		BookingID:       bookingID,
		PaymentIntentID: cmd.Payment.IntentID,
		Amount:          cmd.Payment.Amount,
		Currency:        strings.ToUpper(cmd.Payment.Currency),
		Schedule:        cmd.Schedule,
		Reason:          reason,
		Status:          domain.ReconciliationStatusOpen,
		CreatedAt:       s.now(),
	}
	recErr := &ReconciliationError{
		BookingID: bookingID,
		IntentID:  cmd.Payment.IntentID,
		Reason:    reason,
		Err:       cause,
	}
	if err := s.reconciliations.Insert(ctx, item); err != nil {
		s.logger(ctx, "booking.reconciliation_record_failed", map[string]any{
			"bookingID":     bookingID,
			"paymentIntent": cmd.Payment.IntentID,
			"error":         err.Error(),
		})
	} else {
		recErr.ReconciliationID = item.ID
	}

	fields := map[string]any{
		"bookingID":        bookingID,
		"paymentIntent":    cmd.Payment.IntentID,
		"amount":           cmd.Payment.Amount,
		"reason":           reason,
		"reconciliationID": recErr.ReconciliationID,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	s.observer.ReconciliationRequired(reason)
	s.logger(ctx, "booking.reconciliation_required", fields)
	s.publish(ctx, events.TypeBookingReconciliationRequired, domain.Booking{ID: bookingID}, map[string]any{
		"paymentIntent":    cmd.Payment.IntentID,
		"amount":           cmd.Payment.Amount,
		"reason":           reason,
		"reconciliationId": recErr.ReconciliationID,
	})
	return recErr
}

func (s *bookingService) validateCreate(cmd CreateBookingCommand) (domain.Booking, error) {
	fields := fieldErrors{}

	customer := domain.Customer{
		FirstName: textutil.NormalizeName(cmd.Customer.FirstName),
		LastName:  textutil.NormalizeName(cmd.Customer.LastName),
		Email:     textutil.NormalizeEmail(cmd.Customer.Email),
		Phone:     strings.TrimSpace(cmd.Customer.Phone),
	}
	if textutil.RuneLength(customer.FirstName) < minNameLength {
		fields.add("customer.firstName", "must be at least 2 characters")
	}
	if textutil.RuneLength(customer.LastName) < minNameLength {
		fields.add("customer.lastName", "must be at least 2 characters")
	}
	if !validEmail(customer.Email) {
		fields.add("customer.email", "must be a valid email address")
	}
	if !phonePattern.MatchString(customer.Phone) {
		fields.add("customer.phone", "must be in ###-###-#### form")
	}

	address := domain.Address{
		Street:     textutil.SanitizePlainText(cmd.Address.Street, 200),
		Unit:       textutil.SanitizePlainText(cmd.Address.Unit, 40),
		City:       textutil.NormalizeName(cmd.Address.City),
		Province:   domain.NormalizeProvince(cmd.Address.Province),
		PostalCode: domain.NormalizePostalCode(cmd.Address.PostalCode),
	}
	if textutil.RuneLength(address.Street) < minStreetLength {
		fields.add("address.street", "must be at least 5 characters")
	}
	if address.Province != domain.ProvinceOntario {
		fields.add("address.province", "must be Ontario")
	}
	if !domain.ValidPostalCode(address.PostalCode) {
		fields.add("address.postalCode", "must be in A1A 1A1 form")
	}

	selection := cmd.Selection
	selection.PropertyType = domain.PropertyType(strings.ToLower(strings.TrimSpace(string(selection.PropertyType))))
	selection.CleaningType = domain.CleaningType(strings.ToLower(strings.TrimSpace(string(selection.CleaningType))))
	selection.Frequency = domain.Frequency(strings.ToLower(strings.TrimSpace(string(selection.Frequency))))
	for _, missing := range selection.MissingFields() {
		fields.add("selection."+missing, "is required")
	}
	if domain.UnitRequired(selection.PropertyType) && address.Unit == "" {
		fields.add("address.unit", "is required for "+string(selection.PropertyType))
	}
	selection.SpecialInstructions = textutil.SanitizePlainText(selection.SpecialInstructions, textutil.MaxInstructionsLength)

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.PaymentMethod))))
	if !method.Valid() {
		fields.add("paymentMethod", "must be credit_card or etransfer")
	}
	if cmd.ExpectedTotal != nil && *cmd.ExpectedTotal < 0 {
		fields.add("expectedTotal", "must not be negative")
	}

	if err := fields.err(ErrBookingInvalidInput); err != nil {
		return domain.Booking{}, err
	}
	return domain.Booking{
		Customer:      customer,
		Address:       address,
		Service:       selection,
		PaymentMethod: method,
	}, nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	parsed, err := mail.ParseAddress(email)
	return err == nil && strings.EqualFold(parsed.Address, email)
}

func (s *bookingService) credential(c Credential) (Credential, error) {
	cred := normaliseCredential(c)
	if cred.BookingID == "" || cred.Email == "" {
		return Credential{}, ErrBookingNotFound
	}
	return cred, nil
}

// mutationError maps errors returned from Mutate. Service sentinels raised inside the
// mutation are checked before repository classification because stores wrap them.
func (s *bookingService) mutationError(err error) error {
	for _, sentinel := range []error{ErrBookingNotFound, ErrBookingCancelled, ErrBookingInvalidState} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return classifyRepositoryError(err, ErrBookingNotFound, ErrBookingConflict, ErrBookingUnavailable)
}

func (s *bookingService) paymentContext(b domain.Booking) payments.PaymentContext {
	return payments.PaymentContext{Currency: b.Pricing.Currency}
}

func (s *bookingService) publish(ctx context.Context, eventType string, booking domain.Booking, data map[string]any) {
	if s.events == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["status"] = string(booking.Status)
	if err := s.events.Publish(ctx, events.New(eventType, booking.ID, s.now(), data)); err != nil {
		s.logger(ctx, "booking.event_publish_failed", map[string]any{
			"bookingID": booking.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}
