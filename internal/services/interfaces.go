package services

import (
	"context"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/storage"
)

// AreaService resolves postal codes into coverage anchors and maintains the coverage table.
type AreaService interface {
	Resolve(ctx context.Context, postalCode string) (domain.Anchors, error)
	List(ctx context.Context) ([]domain.ServiceArea, error)
	Upsert(ctx context.Context, cmd UpsertAreaCommand) (domain.ServiceArea, error)
}

// PricingEngine prices a selection for resolved anchors. Implementations are pure.
type PricingEngine interface {
	Quote(selection domain.ServiceSelection, anchors domain.Anchors) (domain.Quote, error)
}

// BookingService owns every write to a booking.
type BookingService interface {
	Create(ctx context.Context, cmd CreateBookingCommand) (domain.Booking, error)
	Lookup(ctx context.Context, email string, reference string) (domain.Booking, error)
	Reschedule(ctx context.Context, cmd RescheduleCommand) (RescheduleResult, error)
	Cancel(ctx context.Context, credential Credential) (domain.Booking, error)
	FinalizeAfterPayment(ctx context.Context, cmd FinalizeCommand) (domain.Booking, error)
	RecordDeferredPayment(ctx context.Context, cmd DeferredPaymentCommand) (domain.Booking, error)
}

// PaymentService opens payment intents and turns processor outcomes into lifecycle changes.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (domain.PaymentIntent, error)
	Confirm(ctx context.Context, cmd ConfirmCommand) (domain.Booking, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// SessionService validates and advances an explicit booking session.
type SessionService interface {
	Advance(ctx context.Context, cmd AdvanceSessionCommand) (SessionResult, error)
}

// ReconciliationService lets staff work through captured payments whose booking update failed.
type ReconciliationService interface {
	ListOpen(ctx context.Context, filter ReconciliationFilter) (ReconciliationPage, error)
	Resolve(ctx context.Context, cmd ResolveReconciliationCommand) (domain.Reconciliation, error)
	Export(ctx context.Context) (ReconciliationExport, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// LifecycleObserver receives counters-worthy signals. Implementations must be cheap and must
// not block.
type LifecycleObserver interface {
	BookingTransition(from, to domain.BookingStatus)
	PaymentOutcome(outcome string)
	ReconciliationRequired(reason string)
}

type noopObserver struct{}

func (noopObserver) BookingTransition(domain.BookingStatus, domain.BookingStatus) {}
func (noopObserver) PaymentOutcome(string)                                        {}
func (noopObserver) ReconciliationRequired(string)                                {}

// eventPublisher is the subset of events.Publisher services need.
type eventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Credential identifies a booking on behalf of its customer. Both fields must match.
type Credential struct {
	BookingID string
	Email     string
}

// ScheduleInput is a requested service date and arrival window as entered by the customer.
type ScheduleInput struct {
	Date string
	Time string
}

// UpsertAreaCommand creates or replaces a coverage row.
type UpsertAreaCommand struct {
	FSA       string
	Tier      string
	TravelFee int64
	Active    bool
}

// CreateBookingCommand carries the finalize-step submission. Anchors are always resolved
// server-side from Address.PostalCode.
type CreateBookingCommand struct {
	Customer      domain.Customer
	Address       domain.Address
	Selection     domain.ServiceSelection
	PaymentMethod domain.PaymentMethod
	// ExpectedTotal is the total the customer saw; a mismatch rejects the booking.
	ExpectedTotal *int64
}

// RescheduleCommand moves a booking to a new slot.
type RescheduleCommand struct {
	Credential Credential
	Schedule   ScheduleInput
}

// RescheduleResult reports the updated booking. FirstScheduling is true when the booking had
// no service date before this call.
type RescheduleResult struct {
	Booking         domain.Booking
	FirstScheduling bool
}

// VerifiedPayment is a processor-confirmed, captured payment.
type VerifiedPayment struct {
	IntentID string
	Amount   int64
	Currency string
}

// FinalizeCommand confirms a booking after its payment was verified with the processor.
// A nil Schedule keeps the stored one.
type FinalizeCommand struct {
	BookingID string
	Payment   VerifiedPayment
	Schedule  *domain.Schedule
}

// DeferredPaymentCommand records an e-transfer received by staff.
type DeferredPaymentCommand struct {
	BookingID  string
	Reference  string
	RecordedBy string
}

// CreateIntentCommand opens a payment intent for a booking's frozen total.
type CreateIntentCommand struct {
	Credential     Credential
	Schedule       ScheduleInput
	IdempotencyKey string
}

// ConfirmCommand asks the coordinator to check an intent the browser finished.
type ConfirmCommand struct {
	Credential Credential
	IntentID   string
}

// AdvanceSessionCommand applies customer input to a session and optionally moves it forward.
type AdvanceSessionCommand struct {
	Session       domain.BookingSession
	PostalCode    *string
	Selection     *domain.ServiceSelection
	Contact       *domain.Customer
	Address       *domain.Address
	PaymentMethod *domain.PaymentMethod
	BookingID     string
	Advance       bool
	Reset         bool
}

// SessionResult is the updated session with a quote when one can be computed. The flags
// tell the flow which optional inputs to offer for the selected frequency.
type SessionResult struct {
	Session             domain.BookingSession
	Quote               *domain.Quote
	UnitRequired        bool
	DiscountCodeVisible bool
	ExtrasOffered       bool
}

// ReconciliationFilter pages through open reconciliation items.
type ReconciliationFilter struct {
	PageSize  int
	PageToken string
}

// ReconciliationPage is one page of open items.
type ReconciliationPage struct {
	Items         []domain.Reconciliation
	NextPageToken string
}

// ResolveReconciliationCommand closes an item.
type ResolveReconciliationCommand struct {
	ID         string
	ResolvedBy string
	Note       string
}

// ReconciliationExport describes an uploaded report.
type ReconciliationExport struct {
	Object     storage.Object
	Count      int
	ExportedAt time.Time
}
