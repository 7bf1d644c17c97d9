package services

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type memoryBookingRepository struct {
	mu        sync.Mutex
	next      int64
	items     map[string]domain.Booking
	insertErr error
	mutateErr error
	mutations int
	// contention, when set, makes the next Mutate behave like a contended transaction: the first
	// attempt is discarded, contention edits the stored booking, and fn runs again on the result.
	contention func(*domain.Booking)
}

func newMemoryBookingRepository() *memoryBookingRepository {
	return &memoryBookingRepository{next: 100000, items: map[string]domain.Booking{}}
}

func (m *memoryBookingRepository) Insert(_ context.Context, booking domain.Booking) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return domain.Booking{}, m.insertErr
	}
	booking.ID = strconv.FormatInt(m.next, 10)
	m.next++
	m.items[booking.ID] = booking
	return booking, nil
}

func (m *memoryBookingRepository) FindByID(_ context.Context, id string) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.items[id]
	if !ok {
		return domain.Booking{}, stubRepoError{notFound: true}
	}
	return booking, nil
}

func (m *memoryBookingRepository) FindByIDAndEmail(_ context.Context, id, email string) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.items[id]
	if !ok || booking.Customer.Email != email {
		return domain.Booking{}, stubRepoError{notFound: true}
	}
	return booking, nil
}

func (m *memoryBookingRepository) Mutate(_ context.Context, id string, fn repositories.BookingMutation) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutateErr != nil {
		return domain.Booking{}, m.mutateErr
	}
	booking, ok := m.items[id]
	if !ok {
		return domain.Booking{}, stubRepoError{notFound: true}
	}
	if m.contention != nil {
		attempt := booking
		if _, err := fn(&attempt); err != nil {
			return domain.Booking{}, err
		}
		m.contention(&booking)
		m.items[id] = booking
		m.contention = nil
	}
	changed, err := fn(&booking)
	if err != nil {
		return domain.Booking{}, err
	}
	if changed {
		m.mutations++
		m.items[id] = booking
	}
	return booking, nil
}

func (m *memoryBookingRepository) get(id string) domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

type memoryReconciliationRepository struct {
	items     []domain.Reconciliation
	insertErr error
	listErr   error
	queries   []repositories.ReconciliationQuery
}

func (m *memoryReconciliationRepository) Insert(_ context.Context, item domain.Reconciliation) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.items = append(m.items, item)
	return nil
}

func (m *memoryReconciliationRepository) ListOpen(_ context.Context, query repositories.ReconciliationQuery) ([]domain.Reconciliation, error) {
	m.queries = append(m.queries, query)
	if m.listErr != nil {
		return nil, m.listErr
	}
	open := make([]domain.Reconciliation, 0, len(m.items))
	for _, item := range m.items {
		if item.Status != domain.ReconciliationStatusOpen {
			continue
		}
		if !query.AfterCreatedAt.IsZero() {
			if item.CreatedAt.Before(query.AfterCreatedAt) || (item.CreatedAt.Equal(query.AfterCreatedAt) && item.ID <= query.AfterID) {
				continue
			}
		}
		open = append(open, item)
	}
	slices.SortFunc(open, func(a, b domain.Reconciliation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if query.Limit > 0 && len(open) > query.Limit {
		open = open[:query.Limit]
	}
	return open, nil
}

func (m *memoryReconciliationRepository) Resolve(_ context.Context, id, resolvedBy, note string, at time.Time) (domain.Reconciliation, error) {
	for i, item := range m.items {
		if item.ID != id {
			continue
		}
		if item.Status == domain.ReconciliationStatusResolved {
			return domain.Reconciliation{}, stubRepoError{conflict: true}
		}
		item.Status = domain.ReconciliationStatusResolved
		item.ResolvedBy = resolvedBy
		item.Note = note
		item.ResolvedAt = &at
		m.items[i] = item
		return item, nil
	}
	return domain.Reconciliation{}, stubRepoError{notFound: true}
}

type stubAreaService struct {
	anchors map[string]domain.Anchors
	err     error
	calls   int
}

func (s *stubAreaService) Resolve(_ context.Context, postalCode string) (domain.Anchors, error) {
	s.calls++
	if s.err != nil {
		return domain.Anchors{}, s.err
	}
	if !domain.ValidPostalCode(postalCode) {
		return domain.Anchors{}, ErrAreaInvalidFormat
	}
	anchors, ok := s.anchors[postalCode]
	if !ok {
		return domain.Anchors{}, ErrAreaUnserved
	}
	return anchors, nil
}

func (s *stubAreaService) List(context.Context) ([]domain.ServiceArea, error) { return nil, nil }

func (s *stubAreaService) Upsert(context.Context, UpsertAreaCommand) (domain.ServiceArea, error) {
	return domain.ServiceArea{}, errors.New("not implemented")
}

type stubPaymentManager struct {
	intent     payments.Intent
	createErr  error
	created    []payments.IntentRequest
	details    map[string]payments.PaymentDetails
	lookupErr  error
	webhook    payments.WebhookEvent
	webhookErr error
	cancelled  []payments.CancelRequest
	cancelErr  error
	refunds    []payments.RefundRequest
	refundErr  error
}

func (s *stubPaymentManager) CreateIntent(_ context.Context, _ payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
	s.created = append(s.created, req)
	if s.createErr != nil {
		return payments.Intent{}, s.createErr
	}
	intent := s.intent
	intent.Amount = req.Amount
	intent.Currency = req.Currency
	return intent, nil
}

func (s *stubPaymentManager) LookupPayment(_ context.Context, _ payments.PaymentContext, intentID string) (payments.PaymentDetails, error) {
	if s.lookupErr != nil {
		return payments.PaymentDetails{}, s.lookupErr
	}
	details, ok := s.details[intentID]
	if !ok {
		return payments.PaymentDetails{}, payments.ErrInvalidRequest
	}
	return details, nil
}

func (s *stubPaymentManager) ParseWebhook(payments.PaymentContext, []byte, string) (payments.WebhookEvent, error) {
	return s.webhook, s.webhookErr
}

func (s *stubPaymentManager) CancelIntent(_ context.Context, _ payments.PaymentContext, req payments.CancelRequest) error {
	s.cancelled = append(s.cancelled, req)
	return s.cancelErr
}

func (s *stubPaymentManager) Refund(_ context.Context, _ payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	s.refunds = append(s.refunds, req)
	if s.refundErr != nil {
		return payments.PaymentDetails{}, s.refundErr
	}
	return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusRefunded}, nil
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) types() []string {
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type recordingObserver struct {
	transitions     []string
	outcomes        []string
	reconciliations []string
}

func (r *recordingObserver) BookingTransition(from, to domain.BookingStatus) {
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

func (r *recordingObserver) PaymentOutcome(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) ReconciliationRequired(reason string) {
	r.reconciliations = append(r.reconciliations, reason)
}
