package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	ppostgres "github.com/prasathkrishna17/Botique-maid/internal/platform/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const bookingColumns = `id, status, first_name, last_name, email, phone, street, unit, city, province,
	postal_code, fsa, tier, property_type, bedrooms, bathrooms, cleaning_type, frequency, add_ons,
	special_instructions, currency, subtotal_cents, discount_cents, hst_cents, total_cents,
	travel_fee_cents, payment_method, service_date, service_time, payment_state, payment_intent_id,
	pending_intent_id, amount_paid_cents, paid_at, deferred_reference, created_at, updated_at,
	cancelled_at`

const insertBookingSQL = `INSERT INTO bookings (
	status, first_name, last_name, email, phone, street, unit, city, province, postal_code, fsa, tier,
	property_type, bedrooms, bathrooms, cleaning_type, frequency, add_ons, special_instructions,
	currency, subtotal_cents, discount_cents, hst_cents, total_cents, travel_fee_cents, payment_method,
	service_date, service_time, payment_state, payment_intent_id, pending_intent_id, amount_paid_cents,
	paid_at, deferred_reference, created_at, updated_at, cancelled_at
) VALUES (
	:status, :first_name, :last_name, :email, :phone, :street, :unit, :city, :province, :postal_code,
	:fsa, :tier, :property_type, :bedrooms, :bathrooms, :cleaning_type, :frequency, :add_ons,
	:special_instructions, :currency, :subtotal_cents, :discount_cents, :hst_cents, :total_cents,
	:travel_fee_cents, :payment_method, :service_date, :service_time, :payment_state,
	:payment_intent_id, :pending_intent_id, :amount_paid_cents, :paid_at, :deferred_reference,
	:created_at, :updated_at, :cancelled_at
) RETURNING id`

// Mutable columns only; customer, address and pricing are frozen at creation.
const updateBookingSQL = `UPDATE bookings SET
	status = :status,
	service_date = :service_date,
	service_time = :service_time,
	payment_state = :payment_state,
	payment_intent_id = :payment_intent_id,
	pending_intent_id = :pending_intent_id,
	amount_paid_cents = :amount_paid_cents,
	paid_at = :paid_at,
	deferred_reference = :deferred_reference,
	updated_at = :updated_at,
	cancelled_at = :cancelled_at
WHERE id = :id`

type bookingRow struct {
	ID                  int64          `db:"id"`
	Status              string         `db:"status"`
	FirstName           string         `db:"first_name"`
	LastName            string         `db:"last_name"`
	Email               string         `db:"email"`
	Phone               string         `db:"phone"`
	Street              string         `db:"street"`
	Unit                string         `db:"unit"`
	City                string         `db:"city"`
	Province            string         `db:"province"`
	PostalCode          string         `db:"postal_code"`
	FSA                 string         `db:"fsa"`
	Tier                string         `db:"tier"`
	PropertyType        string         `db:"property_type"`
	Bedrooms            int            `db:"bedrooms"`
	Bathrooms           int            `db:"bathrooms"`
	CleaningType        string         `db:"cleaning_type"`
	Frequency           string         `db:"frequency"`
	AddOns              pq.StringArray `db:"add_ons"`
	SpecialInstructions string         `db:"special_instructions"`
	Currency            string         `db:"currency"`
	SubtotalCents       int64          `db:"subtotal_cents"`
	DiscountCents       int64          `db:"discount_cents"`
	HSTCents            int64          `db:"hst_cents"`
	TotalCents          int64          `db:"total_cents"`
	TravelFeeCents      int64          `db:"travel_fee_cents"`
	PaymentMethod       string         `db:"payment_method"`
	ServiceDate         sql.NullTime   `db:"service_date"`
	ServiceTime         sql.NullString `db:"service_time"`
	PaymentState        string         `db:"payment_state"`
	PaymentIntentID     string         `db:"payment_intent_id"`
	PendingIntentID     string         `db:"pending_intent_id"`
	AmountPaidCents     int64          `db:"amount_paid_cents"`
	PaidAt              sql.NullTime   `db:"paid_at"`
	DeferredReference   string         `db:"deferred_reference"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	CancelledAt         sql.NullTime   `db:"cancelled_at"`
}

// BookingRepository stores bookings in Postgres; references come from the identity column.
type BookingRepository struct {
	db *sqlx.DB
}

var _ repositories.BookingRepository = (*BookingRepository)(nil)

// NewBookingRepository constructs a SQL booking repository.
func NewBookingRepository(db *sqlx.DB) (*BookingRepository, error) {
	if db == nil {
		return nil, errors.New("booking repository requires postgres db")
	}
	return &BookingRepository{db: db}, nil
}

func (r *BookingRepository) Insert(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	rows, err := r.db.NamedQueryContext(ctx, insertBookingSQL, toBookingRow(booking))
	if err != nil {
		return domain.Booking{}, ppostgres.WrapError("bookings.insert", err)
	}
	defer rows.Close()

	var id int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Booking{}, ppostgres.WrapError("bookings.insert", err)
		}
		return domain.Booking{}, ppostgres.WrapError("bookings.insert", errors.New("insert returned no id"))
	}
	if err := rows.Scan(&id); err != nil {
		return domain.Booking{}, ppostgres.WrapError("bookings.insert", err)
	}
	booking.ID = strconv.FormatInt(id, 10)
	return booking, nil
}

func (r *BookingRepository) FindByID(ctx context.Context, bookingID string) (domain.Booking, error) {
	id, ok := parseBookingID(bookingID)
	if !ok {
		return domain.Booking{}, ppostgres.NotFoundError("bookings.find")
	}
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		return domain.Booking{}, ppostgres.WrapError("bookings.find", err)
	}
	return row.toDomain(), nil
}

// FindByIDAndEmail matches the email case-insensitively in the query so a mismatch is
// indistinguishable from an unknown id.
func (r *BookingRepository) FindByIDAndEmail(ctx context.Context, bookingID string, email string) (domain.Booking, error) {
	id, ok := parseBookingID(bookingID)
	if !ok {
		return domain.Booking{}, ppostgres.NotFoundError("bookings.find")
	}
	var row bookingRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND lower(email) = lower($2)`,
		id, strings.TrimSpace(email))
	if err != nil {
		return domain.Booking{}, ppostgres.WrapError("bookings.find", err)
	}
	return row.toDomain(), nil
}

// Mutate locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (r *BookingRepository) Mutate(ctx context.Context, bookingID string, fn repositories.BookingMutation) (domain.Booking, error) {
	if fn == nil {
		return domain.Booking{}, errors.New("bookings.mutate: mutation is required")
	}
	id, ok := parseBookingID(bookingID)
	if !ok {
		return domain.Booking{}, ppostgres.NotFoundError("bookings.mutate")
	}

	var result domain.Booking
	err := ppostgres.InTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var row bookingRow
		if err := tx.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id); err != nil {
			return ppostgres.WrapError("bookings.lock", err)
		}
		booking := row.toDomain()
		changed, err := fn(&booking)
		if err != nil {
			return err
		}
		result = booking
		if !changed {
			return nil
		}
		update := toBookingRow(booking)
		update.ID = id
		if _, err := tx.NamedExecContext(ctx, updateBookingSQL, update); err != nil {
			return ppostgres.WrapError("bookings.update", err)
		}
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return result, nil
}

func parseBookingID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func toBookingRow(b domain.Booking) bookingRow {
	row := bookingRow{
		Status:              string(b.Status),
		FirstName:           b.Customer.FirstName,
		LastName:            b.Customer.LastName,
		Email:               b.Customer.Email,
		Phone:               b.Customer.Phone,
		Street:              b.Address.Street,
		Unit:                b.Address.Unit,
		City:                b.Address.City,
		Province:            b.Address.Province,
		PostalCode:          b.Address.PostalCode,
		FSA:                 b.Area.FSA,
		Tier:                b.Area.Tier,
		PropertyType:        string(b.Service.PropertyType),
		Bedrooms:            b.Service.Bedrooms,
		Bathrooms:           b.Service.Bathrooms,
		CleaningType:        string(b.Service.CleaningType),
		Frequency:           string(b.Service.Frequency),
		AddOns:              pq.StringArray{},
		SpecialInstructions: b.Service.SpecialInstructions,
		Currency:            b.Pricing.Currency,
		SubtotalCents:       b.Pricing.Subtotal,
		DiscountCents:       b.Pricing.DiscountAmount,
		HSTCents:            b.Pricing.HST,
		TotalCents:          b.Pricing.Total,
		TravelFeeCents:      b.Pricing.TravelFee,
		PaymentMethod:       string(b.PaymentMethod),
		PaymentState:        string(b.Payment.State),
		PaymentIntentID:     b.Payment.IntentID,
		PendingIntentID:     b.Payment.PendingIntentID,
		AmountPaidCents:     b.Payment.AmountPaid,
		PaidAt:              nullTime(b.Payment.PaidAt),
		DeferredReference:   b.Payment.DeferredReference,
		CreatedAt:           b.CreatedAt.UTC(),
		UpdatedAt:           b.UpdatedAt.UTC(),
		CancelledAt:         nullTime(b.CancelledAt),
	}
	if row.PaymentState == "" {
		row.PaymentState = string(domain.PaymentStateNone)
	}
	for _, addOn := range b.Service.AddOns {
		row.AddOns = append(row.AddOns, string(addOn))
	}
	row.ServiceDate, row.ServiceTime = scheduleColumns(b.Schedule)
	return row
}

func (row bookingRow) toDomain() domain.Booking {
	b := domain.Booking{
		ID:     strconv.FormatInt(row.ID, 10),
		Status: domain.BookingStatus(row.Status),
		Customer: domain.Customer{
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Email:     row.Email,
			Phone:     row.Phone,
		},
		Address: domain.Address{
			Street:     row.Street,
			Unit:       row.Unit,
			City:       row.City,
			Province:   row.Province,
			PostalCode: row.PostalCode,
		},
		Area: domain.BookingArea{FSA: strings.TrimSpace(row.FSA), Tier: row.Tier},
		Service: domain.ServiceSelection{
			PropertyType:        domain.PropertyType(row.PropertyType),
			Bedrooms:            row.Bedrooms,
			Bathrooms:           row.Bathrooms,
			CleaningType:        domain.CleaningType(row.CleaningType),
			Frequency:           domain.Frequency(row.Frequency),
			SpecialInstructions: row.SpecialInstructions,
		},
		Pricing: domain.Quote{
			Currency:       row.Currency,
			Subtotal:       row.SubtotalCents,
			DiscountAmount: row.DiscountCents,
			HST:            row.HSTCents,
			Total:          row.TotalCents,
			TravelFee:      row.TravelFeeCents,
		},
		PaymentMethod: domain.PaymentMethod(row.PaymentMethod),
		Schedule:      scheduleFromColumns(row.ServiceDate, row.ServiceTime),
		Payment: domain.PaymentRecord{
			State:             domain.PaymentState(row.PaymentState),
			IntentID:          row.PaymentIntentID,
			PendingIntentID:   row.PendingIntentID,
			AmountPaid:        row.AmountPaidCents,
			PaidAt:            timePtr(row.PaidAt),
			DeferredReference: row.DeferredReference,
		},
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		CancelledAt: timePtr(row.CancelledAt),
	}
	for _, addOn := range row.AddOns {
		b.Service.AddOns = append(b.Service.AddOns, domain.AddOn(addOn))
	}
	return b
}

func scheduleColumns(s *domain.Schedule) (sql.NullTime, sql.NullString) {
	if s == nil || s.IsZero() {
		return sql.NullTime{}, sql.NullString{}
	}
	date := s.Date
	return sql.NullTime{Time: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), Valid: true},
		sql.NullString{String: s.TimeSlot, Valid: s.TimeSlot != ""}
}

func scheduleFromColumns(date sql.NullTime, slot sql.NullString) *domain.Schedule {
	if !date.Valid {
		return nil
	}
	d := date.Time
	return &domain.Schedule{
		Date:     time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
		TimeSlot: slot.String,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
