package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

func newBookingRouter(h *BookingHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func sampleBooking() domain.Booking {
	created := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	return domain.Booking{
		ID:     "100042",
		Status: domain.BookingStatusPending,
		Customer: domain.Customer{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Phone:     "416-555-0101",
		},
		Address: domain.Address{
			Street:     "123 King St W",
			Unit:       "1203",
			City:       "Toronto",
			Province:   domain.ProvinceOntario,
			PostalCode: "M5V 2H1",
		},
		Area: domain.BookingArea{FSA: "M5V", Tier: "core"},
		Service: domain.ServiceSelection{
			PropertyType: domain.PropertyTypeCondo,
			Bedrooms:     2,
			Bathrooms:    1,
			CleaningType: domain.CleaningTypeRegular,
			Frequency:    domain.FrequencyOneTime,
		},
		Pricing:       domain.Quote{Currency: "cad", Subtotal: 16500, HST: 2340, Total: 20340, TravelFee: 1500},
		PaymentMethod: domain.PaymentMethodCreditCard,
		Payment:       domain.PaymentRecord{State: domain.PaymentStateNone},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestBookingHandlersCreate(t *testing.T) {
	var captured services.CreateBookingCommand
	bookings := &stubBookingService{
		createFn: func(_ context.Context, cmd services.CreateBookingCommand) (domain.Booking, error) {
			captured = cmd
			return sampleBooking(), nil
		},
	}
	router := newBookingRouter(NewBookingHandlers(bookings, nil))

	payload := `{
		"customer": {"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"416-555-0101"},
		"address": {"street":"123 King St W","unit":"1203","province":"ON","postalCode":"M5V 2H1"},
		"selection": {"propertyType":"condo","bedrooms":2,"bathrooms":1},
		"paymentMethod": "Credit_Card",
		"expectedTotal": 20340
	}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(payload)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PaymentMethod != domain.PaymentMethodCreditCard {
		t.Fatalf("expected credit_card, got %q", captured.PaymentMethod)
	}
	if captured.ExpectedTotal == nil || *captured.ExpectedTotal != 20340 {
		t.Fatalf("expected total forwarded, got %v", captured.ExpectedTotal)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/bookings/100042" {
		t.Fatalf("unexpected location %q", loc)
	}

	var body bookingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reference != "#100042" || body.Status != "pending" {
		t.Fatalf("unexpected booking %+v", body)
	}
	if body.Pricing.Total != 20340 {
		t.Fatalf("unexpected pricing %+v", body.Pricing)
	}
	if strings.Contains(rr.Body.String(), "travel") {
		t.Fatalf("travel fee leaked: %s", rr.Body.String())
	}
}

func TestBookingHandlersCreateErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Err: services.ErrBookingInvalidInput, Fields: map[string]string{"customer.phone": "must match ###-###-####"}}, http.StatusBadRequest, "validation"},
		{"quote changed", services.ErrBookingQuoteChanged, http.StatusConflict, "quote_changed"},
		{"unserved", services.ErrAreaUnserved, http.StatusNotFound, "area_unserved"},
		{"unavailable", services.ErrBookingUnavailable, http.StatusServiceUnavailable, "external"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bookings := &stubBookingService{
				createFn: func(context.Context, services.CreateBookingCommand) (domain.Booking, error) {
					return domain.Booking{}, tc.err
				},
			}
			router := newBookingRouter(NewBookingHandlers(bookings, nil))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{"paymentMethod":"etransfer"}`)))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := decodeErrorCode(t, rr); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestBookingHandlersCreateAppliesIdempotencyMiddleware(t *testing.T) {
	seen := 0
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen++
			next.ServeHTTP(w, r)
		})
	}
	router := newBookingRouter(NewBookingHandlers(&stubBookingService{}, &stubPaymentService{}, WithIdempotencyMiddlewares(mw)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{}`)))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/lookup", strings.NewReader(`{}`)))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/payment-intents", strings.NewReader(`{}`)))

	if seen != 2 {
		t.Fatalf("expected middleware on create and payment-intents only, saw %d", seen)
	}
}

func TestBookingHandlersLookup(t *testing.T) {
	var gotEmail, gotRef string
	bookings := &stubBookingService{
		lookupFn: func(_ context.Context, email, reference string) (domain.Booking, error) {
			gotEmail, gotRef = email, reference
			if reference != "#100042" {
				return domain.Booking{}, services.ErrBookingNotFound
			}
			return sampleBooking(), nil
		},
	}
	limited := false
	limiter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited = true
			next.ServeHTTP(w, r)
		})
	}
	router := newBookingRouter(NewBookingHandlers(bookings, nil, WithLookupMiddlewares(limiter)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/lookup", strings.NewReader(`{"email":"ADA@example.com","reference":"#100042"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !limited {
		t.Fatalf("expected lookup middleware to run")
	}
	if gotEmail != "ADA@example.com" || gotRef != "#100042" {
		t.Fatalf("unexpected credential %q %q", gotEmail, gotRef)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/lookup", strings.NewReader(`{"email":"ada@example.com","reference":"999"}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestBookingHandlersReschedule(t *testing.T) {
	var captured services.RescheduleCommand
	bookings := &stubBookingService{
		rescheduleFn: func(_ context.Context, cmd services.RescheduleCommand) (services.RescheduleResult, error) {
			captured = cmd
			b := sampleBooking()
			b.Status = domain.BookingStatusRescheduled
			b.Schedule = &domain.Schedule{Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), TimeSlot: "09:00 AM"}
			return services.RescheduleResult{Booking: b, FirstScheduling: true}, nil
		},
	}
	router := newBookingRouter(NewBookingHandlers(bookings, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/reschedule",
		strings.NewReader(`{"email":"ada@example.com","date":"2024-06-03","time":"09:00 AM"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Credential.BookingID != "100042" || captured.Schedule.Date != "2024-06-03" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var body rescheduleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.FirstScheduling || body.Booking.Status != "rescheduled" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Booking.Schedule == nil || body.Booking.Schedule.Date != "2024-06-03" || body.Booking.Schedule.Time != "09:00 AM" {
		t.Fatalf("unexpected schedule %+v", body.Booking.Schedule)
	}
}

func TestBookingHandlersRescheduleCancelled(t *testing.T) {
	bookings := &stubBookingService{
		rescheduleFn: func(context.Context, services.RescheduleCommand) (services.RescheduleResult, error) {
			return services.RescheduleResult{}, services.ErrBookingCancelled
		},
	}
	router := newBookingRouter(NewBookingHandlers(bookings, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/reschedule",
		strings.NewReader(`{"email":"ada@example.com","date":"2024-06-03","time":"09:00 AM"}`)))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}
}

func TestBookingHandlersCancel(t *testing.T) {
	var captured services.Credential
	bookings := &stubBookingService{
		cancelFn: func(_ context.Context, cred services.Credential) (domain.Booking, error) {
			captured = cred
			b := sampleBooking()
			b.Status = domain.BookingStatusCancelled
			cancelled := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
			b.CancelledAt = &cancelled
			return b, nil
		},
	}
	router := newBookingRouter(NewBookingHandlers(bookings, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/cancel", strings.NewReader(`{"email":"ada@example.com"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.BookingID != "100042" || captured.Email != "ada@example.com" {
		t.Fatalf("unexpected credential %+v", captured)
	}
	var body bookingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "cancelled" || body.CancelledAt != "2024-05-02T00:00:00Z" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestBookingHandlersCreatePaymentIntent(t *testing.T) {
	var captured services.CreateIntentCommand
	payments := &stubPaymentService{
		createIntentFn: func(_ context.Context, cmd services.CreateIntentCommand) (domain.PaymentIntent, error) {
			captured = cmd
			return domain.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret", Amount: 20340, Currency: "cad"}, nil
		},
	}
	router := newBookingRouter(NewBookingHandlers(nil, payments))

	req := httptest.NewRequest(http.MethodPost, "/bookings/100042/payment-intents",
		strings.NewReader(`{"email":"ada@example.com","date":"2024-06-03","time":"10:00 AM"}`))
	req.Header.Set("Idempotency-Key", "key-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.IdempotencyKey != "key-1" || captured.Schedule.Time != "10:00 AM" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var body paymentIntentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ClientSecret != "pi_123_secret" || body.Amount != 20340 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestBookingHandlersCreatePaymentIntentNotAllowed(t *testing.T) {
	payments := &stubPaymentService{
		createIntentFn: func(context.Context, services.CreateIntentCommand) (domain.PaymentIntent, error) {
			return domain.PaymentIntent{}, services.ErrPaymentNotAllowed
		},
	}
	router := newBookingRouter(NewBookingHandlers(nil, payments))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/payment-intents", strings.NewReader(`{"email":"ada@example.com"}`)))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestBookingHandlersConfirmPayment(t *testing.T) {
	paidAt := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	payments := &stubPaymentService{
		confirmFn: func(_ context.Context, cmd services.ConfirmCommand) (domain.Booking, error) {
			if cmd.IntentID != "pi_123" || cmd.Credential.BookingID != "100042" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			b := sampleBooking()
			b.Status = domain.BookingStatusConfirmed
			b.Payment = domain.PaymentRecord{State: domain.PaymentStateSucceeded, IntentID: "pi_123", AmountPaid: 20340, PaidAt: &paidAt}
			return b, nil
		},
	}
	router := newBookingRouter(NewBookingHandlers(nil, payments))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/payments/confirm",
		strings.NewReader(`{"email":"ada@example.com","paymentIntentId":" pi_123 "}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body bookingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "confirmed" || body.Payment.State != "succeeded" || body.Payment.AmountPaid != 20340 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestBookingHandlersConfirmPaymentFailures(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "declined",
			err:     &services.PaymentError{Code: "card_declined", DeclineCode: "insufficient_funds", Message: "Your card has insufficient funds."},
			status:  http.StatusPaymentRequired,
			code:    "payment_failed",
			message: "Your card has insufficient funds.",
		},
		{
			name:    "reconciliation",
			err:     &services.ReconciliationError{BookingID: "100042", IntentID: "pi_123", Reason: "store_failure", Err: services.ErrBookingUnavailable},
			status:  http.StatusInternalServerError,
			code:    "reconciliation_required",
			message: "your payment was received but the booking could not be updated; our team will follow up",
		},
		{
			name:   "pending",
			err:    services.ErrPaymentPending,
			status: http.StatusConflict,
			code:   "payment_pending",
		},
		{
			name:    "processor rejected request",
			err:     fmt.Errorf("%w: %v", services.ErrPaymentInvalidInput, errors.New("No such payment_intent: 'pi_123'; request-id: req_8Hx2")),
			status:  http.StatusBadRequest,
			code:    "validation",
			message: "payment request is invalid",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := &stubPaymentService{
				confirmFn: func(context.Context, services.ConfirmCommand) (domain.Booking, error) {
					return domain.Booking{}, tc.err
				},
			}
			router := newBookingRouter(NewBookingHandlers(nil, payments))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/bookings/100042/payments/confirm",
				strings.NewReader(`{"email":"ada@example.com","paymentIntentId":"pi_123"}`)))

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
			if tc.message != "" && body["message"] != tc.message {
				t.Fatalf("expected message %q, got %v", tc.message, body["message"])
			}
		})
	}
}
