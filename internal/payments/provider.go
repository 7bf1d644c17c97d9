package payments

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the intent is awaiting customer action or PSP processing.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the funds as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the last attempt was declined; the intent may be retried.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the intent was cancelled and can no longer be paid.
	StatusCanceled Status = "canceled"
	// StatusRefunded indicates the captured amount has been returned in full.
	StatusRefunded Status = "refunded"
)

// Webhook event kinds understood by the booking flow.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Metadata keys attached to every intent.
const (
	MetadataBookingID   = "booking_id"
	MetadataServiceDate = "service_date"
	MetadataServiceTime = "service_time"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrProviderUnavailable wraps transport, rate-limit and server-side PSP failures.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
	// ErrInvalidRequest wraps PSP rejections of a malformed or unknown request.
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
)

// IntentRequest captures the payload required to open a payment intent.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the PSP handle returned to the browser.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
}

// Failure describes why the last payment attempt was declined.
type Failure struct {
	Code        string
	DeclineCode string
	Message     string
}

// sensitiveDeclineCodes must never be echoed to the payer.
var sensitiveDeclineCodes = []string{
	"fraudulent", "lost_card", "stolen_card", "pickup_card", "restricted_card",
	"merchant_blacklist", "security_violation", "do_not_honor", "do_not_try_again",
}

// SafeToDisplay reports whether the PSP message may be shown to the customer as-is.
func (f *Failure) SafeToDisplay() bool {
	if f == nil || strings.TrimSpace(f.Message) == "" {
		return false
	}
	return !slices.Contains(sensitiveDeclineCodes, strings.ToLower(f.DeclineCode))
}

// PaymentDetails normalises PSP specific fields.
type PaymentDetails struct {
	Provider       string
	IntentID       string
	Status         Status
	Amount         int64
	AmountReceived int64
	Currency       string
	Metadata       map[string]string
	Failure        *Failure
}

// CancelRequest abandons an unpaid intent.
type CancelRequest struct {
	IntentID       string
	Reason         string
	IdempotencyKey string
}

// RefundRequest defines a PSP refund attempt. A nil Amount refunds in full.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// WebhookEvent is a verified PSP notification about an intent.
type WebhookEvent struct {
	ID      string
	Type    string
	Payment PaymentDetails
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupPayment(ctx context.Context, intentID string) (PaymentDetails, error)
	CancelIntent(ctx context.Context, req CancelRequest) error
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if key, ok := m.currencyRoutes[currency]; ok {
			key = strings.TrimSpace(strings.ToLower(key))
			if p, ok := m.providers[key]; ok {
				return key, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, paymentCtx PaymentContext, req IntentRequest) (Intent, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, intentID string) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, intentID)
}

// CancelIntent delegates to the resolved provider.
func (m *Manager) CancelIntent(ctx context.Context, paymentCtx PaymentContext, req CancelRequest) error {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return err
	}
	return provider.CancelIntent(ctx, req)
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Refund(ctx, req)
}

// ParseWebhook verifies a webhook with the resolved provider.
func (m *Manager) ParseWebhook(paymentCtx PaymentContext, payload []byte, signature string) (WebhookEvent, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return WebhookEvent{}, err
	}
	return provider.ParseWebhook(payload, signature)
}
