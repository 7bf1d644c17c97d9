package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/auth"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/pagination"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const maxReconciliationPageSize = 100

// StaffHandlers exposes back-office endpoints. Callers must be mounted behind the staff
// authenticator.
type StaffHandlers struct {
	reconciliations services.ReconciliationService
	areas           services.AreaService
	bookings        services.BookingService
}

// NewStaffHandlers constructs staff handlers.
func NewStaffHandlers(reconciliations services.ReconciliationService, areas services.AreaService, bookings services.BookingService) *StaffHandlers {
	return &StaffHandlers{
		reconciliations: reconciliations,
		areas:           areas,
		bookings:        bookings,
	}
}

// Routes registers staff endpoints.
func (h *StaffHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reconciliations", h.listReconciliations)
	r.Post("/reconciliations/{reconciliationID}/resolve", h.resolveReconciliation)
	r.Get("/service-areas", h.listServiceAreas)
	r.Put("/service-areas/{fsa}", h.upsertServiceArea)
	r.Post("/bookings/{bookingID}/deferred-payment", h.recordDeferredPayment)
}

type reconciliationResponse struct {
	ID              string            `json:"id"`
	BookingID       string            `json:"bookingId"`
	PaymentIntentID string            `json:"paymentIntentId"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Schedule        *scheduleResponse `json:"schedule,omitempty"`
	Reason          string            `json:"reason"`
	Status          string            `json:"status"`
	CreatedAt       string            `json:"createdAt"`
	ResolvedAt      string            `json:"resolvedAt,omitempty"`
	ResolvedBy      string            `json:"resolvedBy,omitempty"`
	Note            string            `json:"note,omitempty"`
}

type reconciliationListResponse struct {
	Items         []reconciliationResponse `json:"items"`
	NextPageToken string                   `json:"nextPageToken,omitempty"`
}

type resolveReconciliationRequest struct {
	Note string `json:"note"`
}

// serviceAreaResponse is staff-only and therefore carries the travel fee.
type serviceAreaResponse struct {
	FSA       string `json:"fsa"`
	Tier      string `json:"tier"`
	TravelFee int64  `json:"travelFee"`
	Active    bool   `json:"active"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type upsertServiceAreaRequest struct {
	Tier      string `json:"tier"`
	TravelFee int64  `json:"travelFee"`
	Active    *bool  `json:"active"`
}

type deferredPaymentRequest struct {
	Reference string `json:"reference"`
}

func (h *StaffHandlers) listReconciliations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "reconciliation service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{MaxPageSize: maxReconciliationPageSize})
	if err != nil {
		field := "pageSize"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			field = "pageToken"
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation", err.Error(), http.StatusBadRequest).WithFields(map[string]string{field: "is invalid"}))
		return
	}

	page, err := h.reconciliations.ListOpen(ctx, services.ReconciliationFilter{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := reconciliationListResponse{
		Items:         make([]reconciliationResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, item := range page.Items {
		payload.Items = append(payload.Items, buildReconciliationResponse(item))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *StaffHandlers) resolveReconciliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "reconciliation service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req resolveReconciliationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		writeDecodeError(ctx, w, err)
		return
	}

	item, err := h.reconciliations.Resolve(ctx, services.ResolveReconciliationCommand{
		ID:         strings.TrimSpace(chi.URLParam(r, "reconciliationID")),
		ResolvedBy: staffActor(r),
		Note:       req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildReconciliationResponse(item))
}

func (h *StaffHandlers) listServiceAreas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.areas == nil {
		httpx.WriteError(ctx, w, httpx.NewError("area_unavailable", "area service unavailable", http.StatusServiceUnavailable))
		return
	}

	areas, err := h.areas.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]serviceAreaResponse, 0, len(areas))
	for _, area := range areas {
		items = append(items, buildServiceAreaResponse(area))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *StaffHandlers) upsertServiceArea(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.areas == nil {
		httpx.WriteError(ctx, w, httpx.NewError("area_unavailable", "area service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertServiceAreaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	area, err := h.areas.Upsert(ctx, services.UpsertAreaCommand{
		FSA:       chi.URLParam(r, "fsa"),
		Tier:      req.Tier,
		TravelFee: req.TravelFee,
		Active:    active,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildServiceAreaResponse(area))
}

func (h *StaffHandlers) recordDeferredPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req deferredPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	booking, err := h.bookings.RecordDeferredPayment(ctx, services.DeferredPaymentCommand{
		BookingID:  bookingIDParam(r),
		Reference:  req.Reference,
		RecordedBy: staffActor(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildBookingResponse(booking))
}

func staffActor(r *http.Request) string {
	identity, ok := auth.StaffIdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return identity.Actor()
}

func buildReconciliationResponse(item domain.Reconciliation) reconciliationResponse {
	resp := reconciliationResponse{
		ID:              item.ID,
		BookingID:       item.BookingID,
		PaymentIntentID: item.PaymentIntentID,
		Amount:          item.Amount,
		Currency:        item.Currency,
		Reason:          item.Reason,
		Status:          string(item.Status),
		CreatedAt:       formatTime(item.CreatedAt),
		ResolvedAt:      formatTimePtr(item.ResolvedAt),
		ResolvedBy:      item.ResolvedBy,
		Note:            item.Note,
	}
	if item.Schedule != nil && !item.Schedule.IsZero() {
		resp.Schedule = &scheduleResponse{Date: item.Schedule.DateString(), Time: item.Schedule.TimeSlot}
	}
	return resp
}

func buildServiceAreaResponse(area domain.ServiceArea) serviceAreaResponse {
	resp := serviceAreaResponse{
		FSA:       area.FSA,
		Tier:      area.Tier,
		TravelFee: area.TravelFeeInternal,
		Active:    area.Active,
	}
	if !area.UpdatedAt.IsZero() {
		resp.UpdatedAt = area.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
