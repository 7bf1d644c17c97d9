package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/config"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/observability"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/storage"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const healthReportTTL = 5 * time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Areas           services.AreaService
	Pricing         services.PricingEngine
	Sessions        services.SessionService
	Bookings        services.BookingService
	Payments        services.PaymentService
	Reconciliations services.ReconciliationService
	System          services.SystemService
}

// EventPublisher receives booking lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ReportWriter stores exported reconciliation reports.
type ReportWriter interface {
	Put(ctx context.Context, object string, body io.Reader, attrs storage.ObjectAttrs) (storage.Object, error)
}

// Dependencies carries the external collaborators that are built outside the container.
// Events, Observer, Reports and RateCard are optional.
type Dependencies struct {
	Geocoder services.Geocoder
	Payments *payments.Manager
	Events   EventPublisher
	Observer services.LifecycleObserver
	Reports  ReportWriter
	RateCard *domain.RateCard
	Build    services.BuildInfo
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore or
// Postgres registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Dependencies) (Services, error) {
	var svc Services

	if deps.Payments == nil {
		return svc, errors.New("payments manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Business.Location()

	areas, err := services.NewAreaService(services.AreaServiceDeps{
		Areas:    reg.ServiceAreas(),
		Geocoder: deps.Geocoder,
		Clock:    clock,
		Logger:   observability.EventLogger(logger.Named("areas")),
	})
	if err != nil {
		return svc, fmt.Errorf("build area service: %w", err)
	}
	svc.Areas = areas

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		RateCard: deps.RateCard,
		Logger:   observability.EventLogger(logger.Named("pricing")),
	})
	if err != nil {
		return svc, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	sessions, err := services.NewSessionService(services.SessionServiceDeps{
		Areas:   areas,
		Pricing: pricing,
		Logger:  observability.EventLogger(logger.Named("sessions")),
	})
	if err != nil {
		return svc, fmt.Errorf("build session service: %w", err)
	}
	svc.Sessions = sessions

	bookings, err := services.NewBookingService(services.BookingServiceDeps{
		Bookings:        reg.Bookings(),
		Reconciliations: reg.Reconciliations(),
		Areas:           areas,
		Pricing:         pricing,
		Payments:        deps.Payments,
		Events:          deps.Events,
		Observer:        deps.Observer,
		Location:        location,
		Clock:           clock,
		Logger:          observability.EventLogger(logger.Named("bookings")),
	})
	if err != nil {
		return svc, fmt.Errorf("build booking service: %w", err)
	}
	svc.Bookings = bookings

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Bookings:  reg.Bookings(),
		Lifecycle: bookings,
		Payments:  deps.Payments,
		Events:    deps.Events,
		Observer:  deps.Observer,
		Currency:  cfg.Payments.Currency,
		Location:  location,
		Clock:     clock,
		Logger:    observability.EventLogger(logger.Named("payments")),
	})
	if err != nil {
		return svc, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	reconciliations, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Reconciliations: reg.Reconciliations(),
		Reports:         deps.Reports,
		Clock:           clock,
		Logger:          observability.EventLogger(logger.Named("reconciliations")),
	})
	if err != nil {
		return svc, fmt.Errorf("build reconciliation service: %w", err)
	}
	svc.Reconciliations = reconciliations

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Optional:         optionalChecks(cfg),
			CacheTTL:         healthReportTTL,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return svc, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}

// optionalChecks lists probes that only degrade readiness. Secrets are resolved once at startup and
// redis only backs the geocode cache unless it also stores idempotency keys.
func optionalChecks(cfg config.Config) []string {
	optional := []string{"secretManager"}
	if cfg.Idempotency.Backend != config.IdempotencyBackendRedis {
		optional = append(optional, "redis")
	}
	return optional
}
