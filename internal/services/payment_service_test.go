package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
)

func newPaymentFixture(t *testing.T) (*bookingFixture, PaymentService) {
	t.Helper()
	f := newBookingFixture(t)
	f.payments.intent = payments.Intent{ID: "pi_new", Provider: "stripe", ClientSecret: "pi_new_secret"}
	f.payments.details = map[string]payments.PaymentDetails{}
	svc, err := NewPaymentService(PaymentServiceDeps{
		Bookings:  f.repo,
		Lifecycle: f.svc,
		Payments:  f.payments,
		Events:    f.events,
		Observer:  f.observer,
		Clock:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return f, svc
}

func succeededDetails(booking domain.Booking, intentID string) payments.PaymentDetails {
	return payments.PaymentDetails{
		Provider:       "stripe",
		IntentID:       intentID,
		Status:         payments.StatusSucceeded,
		Amount:         booking.Pricing.Total,
		AmountReceived: booking.Pricing.Total,
		Currency:       "cad",
		Metadata: map[string]string{
			payments.MetadataBookingID:   booking.ID,
			payments.MetadataServiceDate: "2025-06-03",
			payments.MetadataServiceTime: "11:30 AM",
		},
	}
}

func (f *bookingFixture) seedPendingIntent(t *testing.T, bookingID, intentID string) {
	t.Helper()
	if _, err := f.repo.Mutate(context.Background(), bookingID, func(b *domain.Booking) (bool, error) {
		b.Payment.PendingIntentID = intentID
		b.Payment.State = domain.PaymentStateAwaiting
		return true, nil
	}); err != nil {
		t.Fatalf("seed pending intent: %v", err)
	}
}

func TestPaymentCreateIntentUsesFrozenTotal(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)

	intent, err := svc.CreateIntent(context.Background(), CreateIntentCommand{
		Credential:     Credential{BookingID: "#" + booking.ID, Email: "JANE.DOE@example.com"},
		Schedule:       tomorrow(),
		IdempotencyKey: "req-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ID != "pi_new" || intent.ClientSecret != "pi_new_secret" || intent.Amount != booking.Pricing.Total || intent.Currency != "CAD" {
		t.Fatalf("unexpected intent %+v", intent)
	}

	req := f.payments.created[0]
	if req.Amount != booking.Pricing.Total || req.Currency != "CAD" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Metadata[payments.MetadataBookingID] != booking.ID || req.Metadata[payments.MetadataServiceDate] != "2025-06-02" || req.Metadata[payments.MetadataServiceTime] != "09:00 AM" {
		t.Fatalf("unexpected metadata %v", req.Metadata)
	}
	if len(req.IdempotencyKey) != 64 || req.IdempotencyKey == "req-1" {
		t.Fatalf("expected derived idempotency key, got %q", req.IdempotencyKey)
	}

	stored := f.repo.get(booking.ID)
	if stored.Payment.PendingIntentID != "pi_new" || stored.Payment.State != domain.PaymentStateAwaiting {
		t.Fatalf("expected pending intent recorded, got %+v", stored.Payment)
	}
	if stored.Schedule != nil {
		t.Fatalf("schedule must wait for payment success")
	}
}

func TestPaymentCreateIntentIdempotencyKeyTracksSlot(t *testing.T) {
	booking := domain.Booking{ID: "100000", Pricing: domain.Quote{Total: 15848}}
	a := domain.Schedule{TimeSlot: "09:00 AM"}
	b := domain.Schedule{TimeSlot: "10:00 AM"}

	if intentIdempotencyKey(booking, a, "k") != intentIdempotencyKey(booking, a, "k") {
		t.Fatalf("expected stable key")
	}
	if intentIdempotencyKey(booking, a, "k") == intentIdempotencyKey(booking, b, "k") {
		t.Fatalf("expected slot to change key")
	}
	if intentIdempotencyKey(booking, a, " ") != "" {
		t.Fatalf("expected no key without a client key")
	}
}

func TestPaymentCreateIntentRejections(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()

	transfer := f.create(t, func(c *CreateBookingCommand) { c.PaymentMethod = domain.PaymentMethodETransfer })
	_, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: Credential{BookingID: transfer.ID, Email: transfer.Customer.Email}, Schedule: tomorrow()})
	if !errors.Is(err, ErrPaymentNotAllowed) {
		t.Fatalf("expected ErrPaymentNotAllowed, got %v", err)
	}

	card := f.create(t, nil)
	cred := Credential{BookingID: card.ID, Email: card.Customer.Email}
	var vErr *ValidationError
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: cred, Schedule: ScheduleInput{Date: "2025-05-01", Time: "09:00 AM"}}); !errors.As(err, &vErr) || !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected validation error for past date, got %v", err)
	}
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: Credential{BookingID: card.ID, Email: "other@example.com"}, Schedule: tomorrow()}); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, cred); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: cred, Schedule: tomorrow()}); !errors.Is(err, ErrBookingCancelled) {
		t.Fatalf("expected ErrBookingCancelled, got %v", err)
	}
	if len(f.payments.created) != 0 {
		t.Fatalf("no intent should be created, got %d", len(f.payments.created))
	}
}

func TestPaymentCreateIntentProcessorAndStoreFailures(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	cmd := CreateIntentCommand{Credential: Credential{BookingID: booking.ID, Email: booking.Customer.Email}, Schedule: tomorrow()}

	f.payments.createErr = payments.ErrProviderUnavailable
	if _, err := svc.CreateIntent(context.Background(), cmd); !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("expected ErrPaymentUnavailable, got %v", err)
	}

	f.payments.createErr = nil
	f.repo.mutateErr = stubRepoError{unavailable: true}
	if _, err := svc.CreateIntent(context.Background(), cmd); !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("expected ErrPaymentUnavailable, got %v", err)
	}
	if len(f.payments.cancelled) != 1 || f.payments.cancelled[0].IntentID != "pi_new" || f.payments.cancelled[0].Reason != "abandoned" {
		t.Fatalf("expected orphaned intent to be cancelled, got %+v", f.payments.cancelled)
	}
}

func TestPaymentConfirmFinalizesWithMetadataSchedule(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	f.seedPendingIntent(t, booking.ID, "pi_ok")
	f.payments.details["pi_ok"] = succeededDetails(booking, "pi_ok")

	confirmed, err := svc.Confirm(context.Background(), ConfirmCommand{
		Credential: Credential{BookingID: booking.ID, Email: booking.Customer.Email},
		IntentID:   "pi_ok",
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != domain.BookingStatusConfirmed || confirmed.Payment.IntentID != "pi_ok" {
		t.Fatalf("unexpected booking %+v", confirmed)
	}
	if confirmed.Schedule == nil || confirmed.Schedule.DateString() != "2025-06-03" || confirmed.Schedule.TimeSlot != "11:30 AM" {
		t.Fatalf("expected metadata schedule, got %+v", confirmed.Schedule)
	}

	again, err := svc.Confirm(context.Background(), ConfirmCommand{
		Credential: Credential{BookingID: booking.ID, Email: booking.Customer.Email},
		IntentID:   "pi_ok",
	})
	if err != nil || again.UpdatedAt != confirmed.UpdatedAt {
		t.Fatalf("expected idempotent confirm, got %v", err)
	}
}

func TestPaymentConfirmRejectsForeignIntent(t *testing.T) {
	f, svc := newPaymentFixture(t)
	mine := f.create(t, nil)
	other := f.create(t, nil)
	f.payments.details["pi_other"] = succeededDetails(other, "pi_other")

	_, err := svc.Confirm(context.Background(), ConfirmCommand{
		Credential: Credential{BookingID: mine.ID, Email: mine.Customer.Email},
		IntentID:   "pi_other",
	})
	if !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	if f.repo.get(mine.ID).Status != domain.BookingStatusPending || f.repo.get(other.ID).Status != domain.BookingStatusPending {
		t.Fatalf("no booking may be confirmed")
	}
}

func TestPaymentConfirmDeclineMessages(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	f.seedPendingIntent(t, booking.ID, "pi_declined")
	cred := Credential{BookingID: booking.ID, Email: booking.Customer.Email}

	declined := succeededDetails(booking, "pi_declined")
	declined.Status = payments.StatusFailed
	declined.Failure = &payments.Failure{Code: "card_declined", DeclineCode: "insufficient_funds", Message: "Your card has insufficient funds."}
	f.payments.details["pi_declined"] = declined

	_, err := svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_declined"})
	var payErr *PaymentError
	if !errors.As(err, &payErr) || !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected PaymentError, got %v", err)
	}
	if payErr.Message != "Your card has insufficient funds." {
		t.Fatalf("expected processor message, got %q", payErr.Message)
	}
	stored := f.repo.get(booking.ID)
	if stored.Payment.State != domain.PaymentStateFailed || stored.Status != domain.BookingStatusPending {
		t.Fatalf("unexpected stored booking %+v", stored)
	}
	if !slices.Contains(f.events.types(), events.TypeBookingPaymentFailed) || !slices.Equal(f.observer.outcomes, []string{"failed"}) {
		t.Fatalf("expected failure signals, events=%v outcomes=%v", f.events.types(), f.observer.outcomes)
	}

	stolen := declined
	stolen.Failure = &payments.Failure{Code: "card_declined", DeclineCode: "stolen_card", Message: "Your card was reported stolen."}
	f.payments.details["pi_declined"] = stolen
	_, err = svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_declined"})
	if !errors.As(err, &payErr) || payErr.Message != genericDeclineMessage {
		t.Fatalf("expected generic message, got %v", err)
	}
}

func TestPaymentConfirmPendingAndUnknownIntent(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	cred := Credential{BookingID: booking.ID, Email: booking.Customer.Email}

	pending := succeededDetails(booking, "pi_wait")
	pending.Status = payments.StatusPending
	f.payments.details["pi_wait"] = pending
	f.seedPendingIntent(t, booking.ID, "pi_wait")
	if _, err := svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_wait"}); !errors.Is(err, ErrPaymentPending) {
		t.Fatalf("expected ErrPaymentPending, got %v", err)
	}
	f.payments.lookupErr = payments.ErrProviderUnavailable
	if _, err := svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_wait"}); !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("expected ErrPaymentUnavailable, got %v", err)
	}

	f.payments.lookupErr = nil
	f.seedPendingIntent(t, booking.ID, "pi_missing")
	if _, err := svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_missing"}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentUnavailable, got %v", err)
	}
}

func TestPaymentWebhookFinalizesAndAcknowledgesReconciliation(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	f.payments.webhook = payments.WebhookEvent{ID: "evt_1", Type: payments.EventPaymentSucceeded, Payment: succeededDetails(booking, "pi_hook")}

	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if got := f.repo.get(booking.ID); got.Status != domain.BookingStatusConfirmed {
		t.Fatalf("expected confirmed booking, got %s", got.Status)
	}

	other := f.create(t, nil)
	short := succeededDetails(other, "pi_short")
	short.AmountReceived = other.Pricing.Total - 1
	f.payments.webhook = payments.WebhookEvent{ID: "evt_2", Type: payments.EventPaymentSucceeded, Payment: short}
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("reconciliation outcome should be acknowledged, got %v", err)
	}
	if len(f.reconciliations.items) != 1 {
		t.Fatalf("expected a reconciliation item, got %d", len(f.reconciliations.items))
	}
}

func TestPaymentWebhookErrors(t *testing.T) {
	f, svc := newPaymentFixture(t)

	f.payments.webhookErr = payments.ErrInvalidSignature
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "bad"); !errors.Is(err, ErrPaymentInvalidSignature) {
		t.Fatalf("expected ErrPaymentInvalidSignature, got %v", err)
	}

	f.payments.webhookErr = nil
	f.payments.webhook = payments.WebhookEvent{ID: "evt_x", Type: "charge.refunded"}
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("unhandled events should be acknowledged, got %v", err)
	}

	booking := f.create(t, nil)
	f.repo.mutateErr = errors.New("boom")
	f.payments.webhook = payments.WebhookEvent{ID: "evt_y", Type: payments.EventPaymentSucceeded, Payment: succeededDetails(booking, "pi_y")}
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("store failures become reconciliation items and are acknowledged, got %v", err)
	}

	f.repo.mutateErr = nil
	failed := succeededDetails(booking, "pi_y")
	failed.Status = payments.StatusFailed
	f.payments.webhook = payments.WebhookEvent{ID: "evt_z", Type: payments.EventPaymentFailed, Payment: failed}
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleWebhook failed event: %v", err)
	}
	if f.repo.get(booking.ID).Payment.State != domain.PaymentStateFailed {
		t.Fatalf("expected failed payment state")
	}
}

func TestPaymentCreateIntentCancelsSupersededIntent(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	cred := Credential{BookingID: booking.ID, Email: booking.Customer.Email}
	ctx := context.Background()

	f.payments.intent = payments.Intent{ID: "pi_first", Provider: "stripe", ClientSecret: "pi_first_secret"}
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: cred, Schedule: tomorrow(), IdempotencyKey: "req-1"}); err != nil {
		t.Fatalf("first CreateIntent: %v", err)
	}
	if len(f.payments.cancelled) != 0 {
		t.Fatalf("first attempt must not cancel anything, got %+v", f.payments.cancelled)
	}

	f.payments.intent = payments.Intent{ID: "pi_second", Provider: "stripe", ClientSecret: "pi_second_secret"}
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: cred, Schedule: tomorrow(), IdempotencyKey: "req-2"}); err != nil {
		t.Fatalf("second CreateIntent: %v", err)
	}
	if len(f.payments.cancelled) != 1 || f.payments.cancelled[0].IntentID != "pi_first" {
		t.Fatalf("expected pi_first to be cancelled, got %+v", f.payments.cancelled)
	}
	if got := f.repo.get(booking.ID).Payment.PendingIntentID; got != "pi_second" {
		t.Fatalf("pending intent = %q, want pi_second", got)
	}

	// A replayed request returns the same intent and leaves it live.
	if _, err := svc.CreateIntent(ctx, CreateIntentCommand{Credential: cred, Schedule: tomorrow(), IdempotencyKey: "req-2"}); err != nil {
		t.Fatalf("replayed CreateIntent: %v", err)
	}
	if len(f.payments.cancelled) != 1 {
		t.Fatalf("replay must not cancel the live intent, got %+v", f.payments.cancelled)
	}
}

func TestPaymentConfirmRejectsSupersededIntent(t *testing.T) {
	f, svc := newPaymentFixture(t)
	booking := f.create(t, nil)
	f.seedPendingIntent(t, booking.ID, "pi_second")
	f.payments.details["pi_first"] = succeededDetails(booking, "pi_first")
	f.payments.details["pi_second"] = succeededDetails(booking, "pi_second")
	cred := Credential{BookingID: booking.ID, Email: booking.Customer.Email}

	if _, err := svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_first"}); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	if stored := f.repo.get(booking.ID); stored.Status != domain.BookingStatusPending || stored.Payment.PendingIntentID != "pi_second" {
		t.Fatalf("superseded intent must not change the booking, got %+v", stored)
	}

	confirmed, err := svc.Confirm(context.Background(), ConfirmCommand{Credential: cred, IntentID: "pi_second"})
	if err != nil {
		t.Fatalf("Confirm current intent: %v", err)
	}
	if confirmed.Payment.IntentID != "pi_second" {
		t.Fatalf("confirmed with %q", confirmed.Payment.IntentID)
	}
}
