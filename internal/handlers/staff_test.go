package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/auth"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/storage"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

func staffRequest(method, target string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := auth.WithStaffIdentity(req.Context(), &auth.StaffIdentity{UID: "uid-1", Email: "ops@boutiquemaid.ca", Roles: []string{auth.RoleStaff}})
	return req.WithContext(ctx)
}

func newStaffRouter(h *StaffHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestStaffHandlersListReconciliations(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var captured services.ReconciliationFilter
	svc := &stubReconciliationService{
		listFn: func(_ context.Context, filter services.ReconciliationFilter) (services.ReconciliationPage, error) {
			captured = filter
			return services.ReconciliationPage{
				Items: []domain.Reconciliation{{
					ID:              "01HX",
					BookingID:       "100042",
					PaymentIntentID: "pi_123",
					Amount:          20340,
					Currency:        "cad",
					Schedule:        &domain.Schedule{Date: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), TimeSlot: "09:00 AM"},
					Reason:          "store_failure",
					Status:          domain.ReconciliationStatusOpen,
					CreatedAt:       created,
				}},
				NextPageToken: "next",
			}, nil
		},
	}
	router := newStaffRouter(NewStaffHandlers(svc, nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodGet, "/reconciliations?pageSize=10", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.PageSize)
	}
	var body reconciliationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.NextPageToken != "next" {
		t.Fatalf("unexpected body %+v", body)
	}
	item := body.Items[0]
	if item.BookingID != "100042" || item.Schedule == nil || item.Schedule.Date != "2024-06-03" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestStaffHandlersListReconciliationsRejectsBadToken(t *testing.T) {
	router := newStaffRouter(NewStaffHandlers(&stubReconciliationService{}, nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodGet, "/reconciliations?pageToken=not-a-token", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStaffHandlersResolveReconciliation(t *testing.T) {
	var captured services.ResolveReconciliationCommand
	svc := &stubReconciliationService{
		resolveFn: func(_ context.Context, cmd services.ResolveReconciliationCommand) (domain.Reconciliation, error) {
			captured = cmd
			resolved := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
			return domain.Reconciliation{ID: cmd.ID, Status: domain.ReconciliationStatusResolved, ResolvedBy: cmd.ResolvedBy, ResolvedAt: &resolved, Note: cmd.Note}, nil
		},
	}
	router := newStaffRouter(NewStaffHandlers(svc, nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodPost, "/reconciliations/01HX/resolve", `{"note":"refunded manually"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ID != "01HX" || captured.ResolvedBy != "ops@boutiquemaid.ca" || captured.Note != "refunded manually" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestStaffHandlersResolveReconciliationConflict(t *testing.T) {
	svc := &stubReconciliationService{
		resolveFn: func(context.Context, services.ResolveReconciliationCommand) (domain.Reconciliation, error) {
			return domain.Reconciliation{}, fmt.Errorf("%w: already closed", services.ErrReconciliationConflict)
		},
	}
	router := newStaffRouter(NewStaffHandlers(svc, nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodPost, "/reconciliations/01HX/resolve", ""))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestStaffHandlersServiceAreas(t *testing.T) {
	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var captured services.UpsertAreaCommand
	areas := &stubAreaService{
		listFn: func(context.Context) ([]domain.ServiceArea, error) {
			return []domain.ServiceArea{{FSA: "M5V", Tier: "core", TravelFeeInternal: 0, Active: true, UpdatedAt: updated}}, nil
		},
		upsertFn: func(_ context.Context, cmd services.UpsertAreaCommand) (domain.ServiceArea, error) {
			captured = cmd
			return domain.ServiceArea{FSA: "L4C", Tier: cmd.Tier, TravelFeeInternal: cmd.TravelFee, Active: cmd.Active, UpdatedAt: updated}, nil
		},
	}
	router := newStaffRouter(NewStaffHandlers(nil, areas, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodGet, "/service-areas", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list struct {
		Items []serviceAreaResponse `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].FSA != "M5V" {
		t.Fatalf("unexpected list %+v", list)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodPut, "/service-areas/l4c", `{"tier":"extended","travelFee":2500}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.FSA != "l4c" || captured.TravelFee != 2500 || !captured.Active {
		t.Fatalf("unexpected command %+v", captured)
	}
	var area serviceAreaResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &area); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if area.TravelFee != 2500 || area.Tier != "extended" {
		t.Fatalf("unexpected area %+v", area)
	}
}

func TestStaffHandlersRecordDeferredPayment(t *testing.T) {
	var captured services.DeferredPaymentCommand
	bookings := &stubBookingService{
		deferredFn: func(_ context.Context, cmd services.DeferredPaymentCommand) (domain.Booking, error) {
			captured = cmd
			b := sampleBooking()
			b.PaymentMethod = domain.PaymentMethodETransfer
			b.Status = domain.BookingStatusConfirmed
			return b, nil
		},
	}
	router := newStaffRouter(NewStaffHandlers(nil, nil, bookings))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodPost, "/bookings/100042/deferred-payment", `{"reference":"ETR-9981"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BookingID != "100042" || captured.Reference != "ETR-9981" || captured.RecordedBy != "ops@boutiquemaid.ca" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestStaffHandlersRecordDeferredPaymentInvalidState(t *testing.T) {
	bookings := &stubBookingService{
		deferredFn: func(context.Context, services.DeferredPaymentCommand) (domain.Booking, error) {
			return domain.Booking{}, fmt.Errorf("%w: booking is paid by card", services.ErrBookingInvalidState)
		},
	}
	router := newStaffRouter(NewStaffHandlers(nil, nil, bookings))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, staffRequest(http.MethodPost, "/bookings/100042/deferred-payment", `{"reference":"ETR-1"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestInternalHandlersExportReconciliations(t *testing.T) {
	exported := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	svc := &stubReconciliationService{
		exportFn: func(context.Context) (services.ReconciliationExport, error) {
			return services.ReconciliationExport{
				Object:     storage.Object{Bucket: "reports", Name: "reconciliations/2024/05/02/report.csv", Size: 120},
				Count:      3,
				ExportedAt: exported,
			}, nil
		},
	}
	r := chi.NewRouter()
	NewInternalHandlers(svc).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/reports/reconciliations", bytes.NewReader(nil))
	req = req.WithContext(auth.WithServiceIdentity(req.Context(), &auth.ServiceIdentity{Email: "scheduler@project.iam.gserviceaccount.com"}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body exportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.URI != "gs://reports/reconciliations/2024/05/02/report.csv" || body.Count != 3 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Caller != "scheduler@project.iam.gserviceaccount.com" {
		t.Fatalf("unexpected caller %q", body.Caller)
	}
}

func TestInternalHandlersExportDisabled(t *testing.T) {
	svc := &stubReconciliationService{
		exportFn: func(context.Context) (services.ReconciliationExport, error) {
			return services.ReconciliationExport{}, services.ErrReconciliationExportDisabled
		},
	}
	r := chi.NewRouter()
	NewInternalHandlers(svc).Routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/reconciliations", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
