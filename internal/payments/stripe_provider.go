package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/textutil"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	AccountID     string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider implements Provider using Stripe PaymentIntents.
type StripeProvider struct {
	api           stripeClients
	account       string
	webhookSecret string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{intents: sc.PaymentIntents, refunds: sc.Refunds}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		account:       strings.TrimSpace(cfg.AccountID),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a PaymentIntent with automatic payment methods enabled.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	for k, v := range textutil.NormalizeStringMap(req.Metadata) {
		params.AddMetadata(k, v)
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, classifyStripeError("create payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return Intent{
		ID:           intent.ID,
		Provider:     "stripe",
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Status:       stripeStatus(intent),
	}, nil
}

// LookupPayment retrieves a PaymentIntent with its latest charge.
func (p *StripeProvider) LookupPayment(ctx context.Context, intentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return PaymentDetails{}, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(intentID, params)
	if err != nil {
		return PaymentDetails{}, classifyStripeError("lookup payment intent", err)
	}
	return stripePaymentDetails(intent), nil
}

// CancelIntent cancels an unpaid PaymentIntent. Intents that already reached a final state
// are left alone.
func (p *StripeProvider) CancelIntent(ctx context.Context, req CancelRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if reason := mapStripeCancellationReason(req.Reason); reason != "" {
		params.CancellationReason = stripe.String(reason)
	}
	intent, err := p.api.intents.Cancel(req.IntentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			return nil
		}
		return classifyStripeError("cancel payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.cancelled", map[string]any{
		"paymentIntent": intent.ID,
	})
	return nil
}

// Refund creates a refund for the provided PaymentIntent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range textutil.NormalizeStringMap(req.Metadata) {
		params.AddMetadata(k, v)
	}
	if _, err := p.api.refunds.New(params); err != nil {
		return PaymentDetails{}, classifyStripeError("refund payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.IntentID,
	})
	return p.LookupPayment(ctx, req.IntentID)
}

// ParseWebhook verifies the Stripe-Signature header and decodes payment intent events.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil || p.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %v", ErrInvalidRequest, err)
	}
	out.Payment = stripePaymentDetails(&intent)
	return out, nil
}

func stripeStatus(intent *stripe.PaymentIntent) Status {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return StatusFailed
		}
	}
	return StatusPending
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}
	status := stripeStatus(intent)
	if charge := intent.LatestCharge; charge != nil && charge.Amount > 0 && charge.AmountRefunded >= charge.Amount {
		status = StatusRefunded
	}

	details := PaymentDetails{
		Provider:       "stripe",
		IntentID:       intent.ID,
		Status:         status,
		Amount:         intent.Amount,
		AmountReceived: intent.AmountReceived,
		Currency:       strings.ToUpper(string(intent.Currency)),
		Metadata:       intent.Metadata,
	}
	if lastErr := intent.LastPaymentError; lastErr != nil {
		details.Failure = &Failure{
			Code:        string(lastErr.Code),
			DeclineCode: string(lastErr.DeclineCode),
			Message:     lastErr.Msg,
		}
	}
	return details
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500 || stripeErr.Type == stripe.ErrorTypeAPI:
			return fmt.Errorf("stripe: %s: %w: %v", op, ErrProviderUnavailable, err)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest || stripeErr.Type == stripe.ErrorTypeIdempotency:
			return fmt.Errorf("stripe: %s: %w: %v", op, ErrInvalidRequest, err)
		}
		return fmt.Errorf("stripe: %s: %w", op, err)
	}
	return fmt.Errorf("stripe: %s: %w: %v", op, ErrProviderUnavailable, err)
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func mapStripeCancellationReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "abandoned", "duplicate", "fraudulent", "requested_by_customer":
		return strings.ToLower(strings.TrimSpace(reason))
	default:
		return ""
	}
}
