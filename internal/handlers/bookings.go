package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const defaultIdempotencyHeader = "Idempotency-Key"

// BookingHandlers exposes the customer booking lifecycle. Customers authenticate each call
// with the booking reference and the email it was created with.
type BookingHandlers struct {
	bookings          services.BookingService
	payments          services.PaymentService
	lookupMiddleware  []func(http.Handler) http.Handler
	idempotencyMW     []func(http.Handler) http.Handler
	idempotencyHeader string
}

// BookingOption customises BookingHandlers.
type BookingOption func(*BookingHandlers)

// WithLookupMiddlewares wraps the lookup endpoint, typically with a per-IP rate limiter.
func WithLookupMiddlewares(mw ...func(http.Handler) http.Handler) BookingOption {
	return func(h *BookingHandlers) {
		h.lookupMiddleware = append(h.lookupMiddleware, mw...)
	}
}

// WithIdempotencyMiddlewares wraps create-booking and create-intent.
func WithIdempotencyMiddlewares(mw ...func(http.Handler) http.Handler) BookingOption {
	return func(h *BookingHandlers) {
		h.idempotencyMW = append(h.idempotencyMW, mw...)
	}
}

// WithIdempotencyHeader sets the header forwarded to the payment processor as idempotency key.
func WithIdempotencyHeader(name string) BookingOption {
	return func(h *BookingHandlers) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			h.idempotencyHeader = trimmed
		}
	}
}

// NewBookingHandlers constructs booking handlers.
func NewBookingHandlers(bookings services.BookingService, payments services.PaymentService, opts ...BookingOption) *BookingHandlers {
	h := &BookingHandlers{
		bookings:          bookings,
		payments:          payments,
		idempotencyHeader: defaultIdempotencyHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers booking endpoints.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	idempotent := r.With(nonNil(h.idempotencyMW)...)
	idempotent.Post("/bookings", h.createBooking)
	r.With(nonNil(h.lookupMiddleware)...).Post("/bookings/lookup", h.lookupBooking)

	r.Route("/bookings/{bookingID}", func(rt chi.Router) {
		rt.Post("/reschedule", h.rescheduleBooking)
		rt.Post("/cancel", h.cancelBooking)
		rt.With(nonNil(h.idempotencyMW)...).Post("/payment-intents", h.createPaymentIntent)
		rt.Post("/payments/confirm", h.confirmPayment)
	})
}

type createBookingRequest struct {
	Customer      domain.Customer  `json:"customer"`
	Address       domain.Address   `json:"address"`
	Selection     selectionPayload `json:"selection"`
	PaymentMethod string           `json:"paymentMethod"`
	ExpectedTotal *int64           `json:"expectedTotal"`
}

type lookupBookingRequest struct {
	Email     string `json:"email"`
	Reference string `json:"reference"`
}

type credentialRequest struct {
	Email string `json:"email"`
}

type scheduleRequest struct {
	Email string `json:"email"`
	Date  string `json:"date"`
	Time  string `json:"time"`
}

type confirmPaymentRequest struct {
	Email           string `json:"email"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type scheduleResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type paymentResponse struct {
	State      string `json:"state"`
	AmountPaid int64  `json:"amountPaid"`
	PaidAt     string `json:"paidAt,omitempty"`
}

type bookingResponse struct {
	ID            string            `json:"id"`
	Reference     string            `json:"reference"`
	Status        string            `json:"status"`
	Customer      domain.Customer   `json:"customer"`
	Address       domain.Address    `json:"address"`
	Tier          string            `json:"tier"`
	Service       selectionPayload  `json:"service"`
	Pricing       quoteResponse     `json:"pricing"`
	PaymentMethod string            `json:"paymentMethod"`
	Schedule      *scheduleResponse `json:"schedule,omitempty"`
	Payment       paymentResponse   `json:"payment"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
	CancelledAt   string            `json:"cancelledAt,omitempty"`
}

type rescheduleResponse struct {
	Booking         bookingResponse `json:"booking"`
	FirstScheduling bool            `json:"firstScheduling"`
}

type paymentIntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func (h *BookingHandlers) createBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	booking, err := h.bookings.Create(ctx, services.CreateBookingCommand{
		Customer:      req.Customer,
		Address:       req.Address,
		Selection:     req.Selection.toDomain(),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ExpectedTotal: req.ExpectedTotal,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/bookings/"+booking.ID)
	httpx.WriteJSON(w, http.StatusCreated, buildBookingResponse(booking))
}

func (h *BookingHandlers) lookupBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req lookupBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	booking, err := h.bookings.Lookup(ctx, req.Email, req.Reference)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildBookingResponse(booking))
}

func (h *BookingHandlers) rescheduleBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	result, err := h.bookings.Reschedule(ctx, services.RescheduleCommand{
		Credential: services.Credential{BookingID: bookingIDParam(r), Email: req.Email},
		Schedule:   services.ScheduleInput{Date: req.Date, Time: req.Time},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rescheduleResponse{
		Booking:         buildBookingResponse(result.Booking),
		FirstScheduling: result.FirstScheduling,
	})
}

func (h *BookingHandlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req credentialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	booking, err := h.bookings.Cancel(ctx, services.Credential{BookingID: bookingIDParam(r), Email: req.Email})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildBookingResponse(booking))
}

func (h *BookingHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	intent, err := h.payments.CreateIntent(ctx, services.CreateIntentCommand{
		Credential:     services.Credential{BookingID: bookingIDParam(r), Email: req.Email},
		Schedule:       services.ScheduleInput{Date: req.Date, Time: req.Time},
		IdempotencyKey: strings.TrimSpace(r.Header.Get(h.idempotencyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentIntentResponse{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	})
}

func (h *BookingHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req confirmPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	booking, err := h.payments.Confirm(ctx, services.ConfirmCommand{
		Credential: services.Credential{BookingID: bookingIDParam(r), Email: req.Email},
		IntentID:   strings.TrimSpace(req.PaymentIntentID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildBookingResponse(booking))
}

func bookingIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "bookingID"))
}

func buildBookingResponse(b domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:            b.ID,
		Reference:     "#" + b.ID,
		Status:        string(b.Status),
		Customer:      b.Customer,
		Address:       b.Address,
		Tier:          b.Area.Tier,
		Service:       selectionFromDomain(b.Service),
		Pricing:       buildQuoteResponse(b.Pricing),
		PaymentMethod: string(b.PaymentMethod),
		Payment: paymentResponse{
			State:      string(b.Payment.State),
			AmountPaid: b.Payment.AmountPaid,
			PaidAt:     formatTimePtr(b.Payment.PaidAt),
		},
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
		CancelledAt: formatTimePtr(b.CancelledAt),
	}
	if b.Schedule != nil && !b.Schedule.IsZero() {
		resp.Schedule = &scheduleResponse{Date: b.Schedule.DateString(), Time: b.Schedule.TimeSlot}
	}
	return resp
}

func selectionFromDomain(s domain.ServiceSelection) selectionPayload {
	payload := selectionPayload{
		PropertyType:        string(s.PropertyType),
		Bedrooms:            s.Bedrooms,
		Bathrooms:           s.Bathrooms,
		CleaningType:        string(s.CleaningType),
		Frequency:           string(s.Frequency),
		SpecialInstructions: s.SpecialInstructions,
	}
	for _, addOn := range s.AddOns {
		payload.AddOns = append(payload.AddOns, string(addOn))
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func nonNil(mw []func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mw))
	for _, m := range mw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
