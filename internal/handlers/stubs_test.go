package handlers

import (
	"context"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

type stubAreaService struct {
	resolveFn func(ctx context.Context, postalCode string) (domain.Anchors, error)
	listFn    func(ctx context.Context) ([]domain.ServiceArea, error)
	upsertFn  func(ctx context.Context, cmd services.UpsertAreaCommand) (domain.ServiceArea, error)
}

func (s *stubAreaService) Resolve(ctx context.Context, postalCode string) (domain.Anchors, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, postalCode)
	}
	return domain.Anchors{}, nil
}

func (s *stubAreaService) List(ctx context.Context) ([]domain.ServiceArea, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubAreaService) Upsert(ctx context.Context, cmd services.UpsertAreaCommand) (domain.ServiceArea, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return domain.ServiceArea{}, nil
}

type stubPricingEngine struct {
	quoteFn func(selection domain.ServiceSelection, anchors domain.Anchors) (domain.Quote, error)
}

func (s *stubPricingEngine) Quote(selection domain.ServiceSelection, anchors domain.Anchors) (domain.Quote, error) {
	if s.quoteFn != nil {
		return s.quoteFn(selection, anchors)
	}
	return domain.Quote{}, nil
}

type stubSessionService struct {
	advanceFn func(ctx context.Context, cmd services.AdvanceSessionCommand) (services.SessionResult, error)
}

func (s *stubSessionService) Advance(ctx context.Context, cmd services.AdvanceSessionCommand) (services.SessionResult, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return services.SessionResult{Session: cmd.Session}, nil
}

type stubBookingService struct {
	createFn     func(ctx context.Context, cmd services.CreateBookingCommand) (domain.Booking, error)
	lookupFn     func(ctx context.Context, email, reference string) (domain.Booking, error)
	rescheduleFn func(ctx context.Context, cmd services.RescheduleCommand) (services.RescheduleResult, error)
	cancelFn     func(ctx context.Context, cred services.Credential) (domain.Booking, error)
	finalizeFn   func(ctx context.Context, cmd services.FinalizeCommand) (domain.Booking, error)
	deferredFn   func(ctx context.Context, cmd services.DeferredPaymentCommand) (domain.Booking, error)
}

func (s *stubBookingService) Create(ctx context.Context, cmd services.CreateBookingCommand) (domain.Booking, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Booking{}, nil
}

func (s *stubBookingService) Lookup(ctx context.Context, email, reference string) (domain.Booking, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, email, reference)
	}
	return domain.Booking{}, nil
}

func (s *stubBookingService) Reschedule(ctx context.Context, cmd services.RescheduleCommand) (services.RescheduleResult, error) {
	if s.rescheduleFn != nil {
		return s.rescheduleFn(ctx, cmd)
	}
	return services.RescheduleResult{}, nil
}

func (s *stubBookingService) Cancel(ctx context.Context, cred services.Credential) (domain.Booking, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cred)
	}
	return domain.Booking{}, nil
}

func (s *stubBookingService) FinalizeAfterPayment(ctx context.Context, cmd services.FinalizeCommand) (domain.Booking, error) {
	if s.finalizeFn != nil {
		return s.finalizeFn(ctx, cmd)
	}
	return domain.Booking{}, nil
}

func (s *stubBookingService) RecordDeferredPayment(ctx context.Context, cmd services.DeferredPaymentCommand) (domain.Booking, error) {
	if s.deferredFn != nil {
		return s.deferredFn(ctx, cmd)
	}
	return domain.Booking{}, nil
}

type stubPaymentService struct {
	createIntentFn func(ctx context.Context, cmd services.CreateIntentCommand) (domain.PaymentIntent, error)
	confirmFn      func(ctx context.Context, cmd services.ConfirmCommand) (domain.Booking, error)
	webhookFn      func(ctx context.Context, payload []byte, signature string) error
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, cmd services.CreateIntentCommand) (domain.PaymentIntent, error) {
	if s.createIntentFn != nil {
		return s.createIntentFn(ctx, cmd)
	}
	return domain.PaymentIntent{}, nil
}

func (s *stubPaymentService) Confirm(ctx context.Context, cmd services.ConfirmCommand) (domain.Booking, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return domain.Booking{}, nil
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, payload, signature)
	}
	return nil
}

type stubReconciliationService struct {
	listFn    func(ctx context.Context, filter services.ReconciliationFilter) (services.ReconciliationPage, error)
	resolveFn func(ctx context.Context, cmd services.ResolveReconciliationCommand) (domain.Reconciliation, error)
	exportFn  func(ctx context.Context) (services.ReconciliationExport, error)
}

func (s *stubReconciliationService) ListOpen(ctx context.Context, filter services.ReconciliationFilter) (services.ReconciliationPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.ReconciliationPage{}, nil
}

func (s *stubReconciliationService) Resolve(ctx context.Context, cmd services.ResolveReconciliationCommand) (domain.Reconciliation, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, cmd)
	}
	return domain.Reconciliation{}, nil
}

func (s *stubReconciliationService) Export(ctx context.Context) (services.ReconciliationExport, error) {
	if s.exportFn != nil {
		return s.exportFn(ctx)
	}
	return services.ReconciliationExport{}, nil
}

var (
	_ services.AreaService           = (*stubAreaService)(nil)
	_ services.PricingEngine         = (*stubPricingEngine)(nil)
	_ services.SessionService        = (*stubSessionService)(nil)
	_ services.BookingService        = (*stubBookingService)(nil)
	_ services.PaymentService        = (*stubPaymentService)(nil)
	_ services.ReconciliationService = (*stubReconciliationService)(nil)
)
