package firestore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	pfirestore "github.com/prasathkrishna17/Botique-maid/internal/platform/firestore"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const bookingsCollection = "bookings"

type bookingDocument struct {
	Status        string            `firestore:"status"`
	Customer      customerDocument  `firestore:"customer"`
	Address       addressDocument   `firestore:"address"`
	Area          areaDocument      `firestore:"area"`
	Service       serviceDocument   `firestore:"service"`
	Pricing       pricingDocument   `firestore:"pricing"`
	PaymentMethod string            `firestore:"paymentMethod"`
	Schedule      *scheduleDocument `firestore:"schedule,omitempty"`
	Payment       paymentDocument   `firestore:"payment"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
	CancelledAt   *time.Time        `firestore:"cancelledAt,omitempty"`
}

type customerDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Phone     string `firestore:"phone"`
}

type addressDocument struct {
	Street     string `firestore:"street"`
	Unit       string `firestore:"unit,omitempty"`
	City       string `firestore:"city,omitempty"`
	Province   string `firestore:"province"`
	PostalCode string `firestore:"postalCode"`
}

type areaDocument struct {
	FSA  string `firestore:"fsa"`
	Tier string `firestore:"tier"`
}

type serviceDocument struct {
	PropertyType        string   `firestore:"propertyType"`
	Bedrooms            int      `firestore:"bedrooms"`
	Bathrooms           int      `firestore:"bathrooms"`
	CleaningType        string   `firestore:"cleaningType"`
	Frequency           string   `firestore:"frequency"`
	AddOns              []string `firestore:"addOns,omitempty"`
	SpecialInstructions string   `firestore:"specialInstructions,omitempty"`
}

type pricingDocument struct {
	Currency       string `firestore:"currency"`
	Subtotal       int64  `firestore:"subtotal"`
	DiscountAmount int64  `firestore:"discountAmount"`
	HST            int64  `firestore:"hst"`
	Total          int64  `firestore:"total"`
	TravelFee      int64  `firestore:"travelFee"`
}

type scheduleDocument struct {
	Date     string `firestore:"date"`
	TimeSlot string `firestore:"timeSlot"`
}

type paymentDocument struct {
	State             string     `firestore:"state"`
	IntentID          string     `firestore:"intentId,omitempty"`
	PendingIntentID   string     `firestore:"pendingIntentId,omitempty"`
	AmountPaid        int64      `firestore:"amountPaid"`
	PaidAt            *time.Time `firestore:"paidAt,omitempty"`
	DeferredReference string     `firestore:"deferredReference,omitempty"`
}

// BookingRepository stores bookings keyed by their sequential reference.
type BookingRepository struct {
	provider *pfirestore.Provider
	bookings *pfirestore.Collection[bookingDocument]
	counters *pfirestore.Collection[counterDocument]
	start    int64
	now      func() time.Time
}

// BookingRepositoryOption customises the booking repository.
type BookingRepositoryOption func(*BookingRepository)

// WithReferenceStart sets the first reference issued when the counter does not exist yet.
func WithReferenceStart(start int64) BookingRepositoryOption {
	return func(r *BookingRepository) {
		if start > 0 {
			r.start = start
		}
	}
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a Firestore-backed booking repository.
func NewBookingRepository(provider *pfirestore.Provider, opts ...BookingRepositoryOption) (*BookingRepository, error) {
	if provider == nil {
		return nil, errors.New("booking repository requires firestore provider")
	}
	repo := &BookingRepository{
		provider: provider,
		bookings: pfirestore.NewCollection[bookingDocument](provider, bookingsCollection),
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection),
		start:    firstBookingReference,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Insert reserves the next reference and creates the booking in one transaction.
func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	counterRef, err := r.counters.Doc(ctx, bookingCounterID)
	if err != nil {
		return domain.Booking{}, err
	}
	bookings, err := r.bookings.Ref(ctx)
	if err != nil {
		return domain.Booking{}, err
	}

	doc := encodeBooking(booking)
	var id string
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		next, err := nextCounterValue(tx, counterRef, r.start, r.now().UTC())
		if err != nil {
			return err
		}
		id = strconv.FormatInt(next, 10)
		return tx.Create(bookings.Doc(id), doc)
	})
	if err != nil {
		return domain.Booking{}, pfirestore.WrapError("bookings.insert", err)
	}
	booking.ID = id
	return booking, nil
}

func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	doc, err := r.bookings.Get(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return domain.Booking{}, err
	}
	return decodeBooking(doc.ID, doc.Data), nil
}

// FindByIDAndEmail reports not found when the email on file differs.
func (r *BookingRepository) FindByIDAndEmail(ctx context.Context, bookingID string, email string) (domain.Booking, error) {
	booking, err := r.FindByID(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !strings.EqualFold(booking.Customer.Email, strings.TrimSpace(email)) {
		return domain.Booking{}, pfirestore.NotFoundError("bookings.find")
	}
	return booking, nil
}

// Mutate applies fn to the stored booking inside a transaction. Errors returned by fn are
// passed through so callers can match their own sentinels.
func (r *BookingRepository) Mutate(ctx context.Context, bookingID string, fn repositories.BookingMutation) (domain.Booking, error) {
	if fn == nil {
		return domain.Booking{}, errors.New("bookings.mutate: mutation is required")
	}
	ref, err := r.bookings.Doc(ctx, strings.TrimSpace(bookingID))
	if err != nil {
		return domain.Booking{}, err
	}

	var result domain.Booking
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.bookings.Decode(snap)
		if err != nil {
			return err
		}
		booking := decodeBooking(doc.ID, doc.Data)
		changed, err := fn(&booking)
		if err != nil {
			return err
		}
		result = booking
		if !changed {
			return nil
		}
		return tx.Set(ref, encodeBooking(booking))
	})
	if err != nil {
		return domain.Booking{}, pfirestore.WrapError("bookings.mutate", err)
	}
	return result, nil
}

func encodeBooking(b domain.Booking) bookingDocument {
	doc := bookingDocument{
		Status: string(b.Status),
		Customer: customerDocument{
			FirstName: b.Customer.FirstName,
			LastName:  b.Customer.LastName,
			Email:     b.Customer.Email,
			Phone:     b.Customer.Phone,
		},
		Address: addressDocument{
			Street:     b.Address.Street,
			Unit:       b.Address.Unit,
			City:       b.Address.City,
			Province:   b.Address.Province,
			PostalCode: b.Address.PostalCode,
		},
		Area: areaDocument{FSA: b.Area.FSA, Tier: b.Area.Tier},
		Service: serviceDocument{
			PropertyType:        string(b.Service.PropertyType),
			Bedrooms:            b.Service.Bedrooms,
			Bathrooms:           b.Service.Bathrooms,
			CleaningType:        string(b.Service.CleaningType),
			Frequency:           string(b.Service.Frequency),
			SpecialInstructions: b.Service.SpecialInstructions,
		},
		Pricing: pricingDocument{
			Currency:       b.Pricing.Currency,
			Subtotal:       b.Pricing.Subtotal,
			DiscountAmount: b.Pricing.DiscountAmount,
			HST:            b.Pricing.HST,
			Total:          b.Pricing.Total,
			TravelFee:      b.Pricing.TravelFee,
		},
		PaymentMethod: string(b.PaymentMethod),
		Payment: paymentDocument{
			State:             string(b.Payment.State),
			IntentID:          b.Payment.IntentID,
			PendingIntentID:   b.Payment.PendingIntentID,
			AmountPaid:        b.Payment.AmountPaid,
			PaidAt:            utcPtr(b.Payment.PaidAt),
			DeferredReference: b.Payment.DeferredReference,
		},
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
		CancelledAt: utcPtr(b.CancelledAt),
	}
	for _, addOn := range b.Service.AddOns {
		doc.Service.AddOns = append(doc.Service.AddOns, string(addOn))
	}
	doc.Schedule = encodeSchedule(b.Schedule)
	return doc
}

func decodeBooking(id string, doc bookingDocument) domain.Booking {
	b := domain.Booking{
		ID:     id,
		Status: domain.BookingStatus(doc.Status),
		Customer: domain.Customer{
			FirstName: doc.Customer.FirstName,
			LastName:  doc.Customer.LastName,
			Email:     doc.Customer.Email,
			Phone:     doc.Customer.Phone,
		},
		Address: domain.Address{
			Street:     doc.Address.Street,
			Unit:       doc.Address.Unit,
			City:       doc.Address.City,
			Province:   doc.Address.Province,
			PostalCode: doc.Address.PostalCode,
		},
		Area: domain.BookingArea{FSA: doc.Area.FSA, Tier: doc.Area.Tier},
		Service: domain.ServiceSelection{
			PropertyType:        domain.PropertyType(doc.Service.PropertyType),
			Bedrooms:            doc.Service.Bedrooms,
			Bathrooms:           doc.Service.Bathrooms,
			CleaningType:        domain.CleaningType(doc.Service.CleaningType),
			Frequency:           domain.Frequency(doc.Service.Frequency),
			SpecialInstructions: doc.Service.SpecialInstructions,
		},
		Pricing: domain.Quote{
			Currency:       doc.Pricing.Currency,
			Subtotal:       doc.Pricing.Subtotal,
			DiscountAmount: doc.Pricing.DiscountAmount,
			HST:            doc.Pricing.HST,
			Total:          doc.Pricing.Total,
			TravelFee:      doc.Pricing.TravelFee,
		},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Schedule:      decodeSchedule(doc.Schedule),
		Payment: domain.PaymentRecord{
			State:             domain.PaymentState(doc.Payment.State),
			IntentID:          doc.Payment.IntentID,
			PendingIntentID:   doc.Payment.PendingIntentID,
			AmountPaid:        doc.Payment.AmountPaid,
			PaidAt:            utcPtr(doc.Payment.PaidAt),
			DeferredReference: doc.Payment.DeferredReference,
		},
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
		CancelledAt: utcPtr(doc.CancelledAt),
	}
	for _, addOn := range doc.Service.AddOns {
		b.Service.AddOns = append(b.Service.AddOns, domain.AddOn(addOn))
	}
	return b
}

func encodeSchedule(s *domain.Schedule) *scheduleDocument {
	if s == nil || s.IsZero() {
		return nil
	}
	return &scheduleDocument{Date: s.DateString(), TimeSlot: s.TimeSlot}
}

// decodeSchedule drops a stored schedule whose date no longer parses.
func decodeSchedule(doc *scheduleDocument) *domain.Schedule {
	if doc == nil {
		return nil
	}
	date, err := time.Parse(domain.DateLayout, doc.Date)
	if err != nil {
		return nil
	}
	return &domain.Schedule{Date: date, TimeSlot: doc.TimeSlot}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
