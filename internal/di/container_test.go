package di

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/config"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

type stubRegistry struct {
	health repositories.HealthRepository
	closed bool
}

func (r *stubRegistry) Close(context.Context) error {
	r.closed = true
	return nil
}

func (r *stubRegistry) Bookings() repositories.BookingRepository { return stubBookings{} }

func (r *stubRegistry) ServiceAreas() repositories.ServiceAreaRepository { return stubAreas{} }

func (r *stubRegistry) Reconciliations() repositories.ReconciliationRepository {
	return stubReconciliations{}
}

func (r *stubRegistry) Health() repositories.HealthRepository { return r.health }

type stubBookings struct{}

func (stubBookings) Insert(_ context.Context, b domain.Booking) (domain.Booking, error) {
	return b, nil
}

func (stubBookings) FindByID(context.Context, string) (domain.Booking, error) {
	return domain.Booking{}, nil
}

func (stubBookings) FindByIDAndEmail(context.Context, string, string) (domain.Booking, error) {
	return domain.Booking{}, nil
}

func (stubBookings) Mutate(context.Context, string, repositories.BookingMutation) (domain.Booking, error) {
	return domain.Booking{}, nil
}

type stubAreas struct{}

func (stubAreas) FindByFSA(context.Context, string) (domain.ServiceArea, error) {
	return domain.ServiceArea{}, nil
}

func (stubAreas) List(context.Context) ([]domain.ServiceArea, error) { return nil, nil }

func (stubAreas) Upsert(context.Context, domain.ServiceArea) error { return nil }

type stubReconciliations struct{}

func (stubReconciliations) Insert(context.Context, domain.Reconciliation) error { return nil }

func (stubReconciliations) ListOpen(context.Context, repositories.ReconciliationQuery) ([]domain.Reconciliation, error) {
	return nil, nil
}

func (stubReconciliations) Resolve(context.Context, string, string, string, time.Time) (domain.Reconciliation, error) {
	return domain.Reconciliation{}, nil
}

type stubHealth struct{}

func (stubHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: "ok"}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(context.Context, string) (services.GeocodeResult, error) {
	return services.GeocodeResult{}, nil
}

type stubProvider struct{}

func (stubProvider) CreateIntent(context.Context, payments.IntentRequest) (payments.Intent, error) {
	return payments.Intent{}, nil
}

func (stubProvider) LookupPayment(context.Context, string) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

func (stubProvider) CancelIntent(context.Context, payments.CancelRequest) error { return nil }

func (stubProvider) Refund(context.Context, payments.RefundRequest) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

func (stubProvider) ParseWebhook([]byte, string) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, nil
}

func testDependencies(t *testing.T) Dependencies {
	t.Helper()
	mgr, err := payments.NewManager(map[string]payments.Provider{"stripe": stubProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return Dependencies{Geocoder: stubGeocoder{}, Payments: mgr}
}

func testConfig() config.Config {
	return config.Config{
		Payments: config.PaymentsConfig{Currency: "cad"},
		Business: config.BusinessConfig{TimeZone: "America/Toronto"},
	}
}

func TestNewContainerBuildsServices(t *testing.T) {
	reg := &stubRegistry{health: stubHealth{}}
	container, err := NewContainer(context.Background(), testConfig(), reg, testDependencies(t))
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	svc := container.Services
	if svc.Areas == nil || svc.Pricing == nil || svc.Sessions == nil || svc.Bookings == nil ||
		svc.Payments == nil || svc.Reconciliations == nil || svc.System == nil {
		t.Fatalf("expected every service to be wired, got %+v", svc)
	}

	if _, err := svc.Reconciliations.Export(context.Background()); !errors.Is(err, services.ErrReconciliationExportDisabled) {
		t.Fatalf("expected export disabled without a report writer, got %v", err)
	}

	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !reg.closed {
		t.Fatalf("expected registry to be closed")
	}
}

func TestNewContainerWithoutHealthSkipsSystemService(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig(), &stubRegistry{}, testDependencies(t))
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	if container.Services.System != nil {
		t.Fatalf("expected system service to be nil")
	}
}

func TestNewContainerValidatesInputs(t *testing.T) {
	if _, err := NewContainer(context.Background(), testConfig(), nil, testDependencies(t)); err == nil {
		t.Fatalf("expected error for missing registry")
	}

	deps := testDependencies(t)
	deps.Payments = nil
	if _, err := NewContainer(context.Background(), testConfig(), &stubRegistry{}, deps); err == nil {
		t.Fatalf("expected error for missing payments manager")
	}

	deps = testDependencies(t)
	deps.Geocoder = nil
	if _, err := NewContainer(context.Background(), testConfig(), &stubRegistry{}, deps); err == nil {
		t.Fatalf("expected error for missing geocoder")
	}
}

func TestOptionalChecksFollowIdempotencyBackend(t *testing.T) {
	cfg := testConfig()
	if got := optionalChecks(cfg); len(got) != 2 || got[1] != "redis" {
		t.Fatalf("expected redis to be optional, got %v", got)
	}
	cfg.Idempotency.Backend = config.IdempotencyBackendRedis
	if got := optionalChecks(cfg); len(got) != 1 || got[0] != "secretManager" {
		t.Fatalf("expected redis to be required, got %v", got)
	}
}
