package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

const (
	maxWebhookBodyBytes    = 256 << 10
	stripeSignatureHeader  = "Stripe-Signature"
	errWebhookTooLargeCode = "payload_too_large"
)

var errWebhookBodyTooLarge = errors.New("webhook body too large")

// WebhookHandlers receives payment processor callbacks.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

// stripe acknowledges with 2xx once the event is handled or deliberately ignored. Failures
// worth redelivering answer 5xx so Stripe retries.
func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := readWebhookBody(r)
	if err != nil {
		if errors.Is(err, errWebhookBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError(errWebhookTooLargeCode, "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	if err := h.payments.HandleWebhook(ctx, payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"received":   true,
		"receivedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func readWebhookBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, io.ErrUnexpectedEOF
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxWebhookBodyBytes {
		return nil, errWebhookBodyTooLarge
	}
	return body, nil
}
