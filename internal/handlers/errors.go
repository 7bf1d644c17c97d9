package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

type errorMapping struct {
	target  error
	code    string
	status  int
	message string
}

// serviceErrorMappings is evaluated in order; the first match wins. An empty message echoes
// the error text.
var serviceErrorMappings = []errorMapping{
	{services.ErrReconciliationRequired, "reconciliation_required", http.StatusInternalServerError,
		"your payment was received but the booking could not be updated; our team will follow up"},

	{services.ErrAreaInvalidFormat, "invalid_format", http.StatusBadRequest, "postal code must be in A1A 1A1 form"},
	{services.ErrAreaUnserved, "area_unserved", http.StatusNotFound, "we do not serve this postal code yet"},
	{services.ErrAreaNotFound, "not_found", http.StatusNotFound, "postal code not found"},
	{services.ErrAreaInvalidInput, "validation", http.StatusBadRequest, ""},
	{services.ErrAreaUnavailable, "external", http.StatusServiceUnavailable, "address lookup is temporarily unavailable"},

	{services.ErrPricingInvalidSelection, "validation", http.StatusBadRequest, ""},
	{services.ErrPricingAnchorsRequired, "validation", http.StatusBadRequest, "postal code must be resolved before pricing"},

	{services.ErrSessionInvalidInput, "validation", http.StatusBadRequest, ""},
	{services.ErrSessionFinished, "invalid_transition", http.StatusConflict, "booking session already confirmed"},

	{services.ErrBookingInvalidInput, "validation", http.StatusBadRequest, ""},
	{services.ErrBookingNotFound, "not_found", http.StatusNotFound, "booking not found"},
	{services.ErrBookingQuoteChanged, "quote_changed", http.StatusConflict, "the price changed; review the updated quote"},
	{services.ErrBookingPaymentReversed, "booking_cancelled", http.StatusConflict, "the booking was cancelled and the payment has been refunded"},
	{services.ErrBookingCancelled, "invalid_transition", http.StatusConflict, "booking is cancelled"},
	{services.ErrBookingInvalidState, "invalid_transition", http.StatusConflict, ""},
	{services.ErrBookingConflict, "conflict", http.StatusConflict, "booking was modified concurrently; retry"},
	{services.ErrBookingUnavailable, "external", http.StatusServiceUnavailable, "booking store is temporarily unavailable"},

	{services.ErrPaymentInvalidInput, "validation", http.StatusBadRequest, "payment request is invalid"},
	{services.ErrPaymentInvalidSignature, "invalid_signature", http.StatusBadRequest, "webhook signature verification failed"},
	{services.ErrPaymentMismatch, "conflict", http.StatusConflict, "payment does not belong to this booking"},
	{services.ErrPaymentNotAllowed, "invalid_transition", http.StatusConflict, ""},
	{services.ErrPaymentPending, "payment_pending", http.StatusConflict, "payment has not completed yet"},
	{services.ErrPaymentFailed, "payment_failed", http.StatusPaymentRequired, "payment was declined"},
	{services.ErrPaymentUnavailable, "external", http.StatusServiceUnavailable, "payment processor is temporarily unavailable"},

	{services.ErrReconciliationInvalidInput, "validation", http.StatusBadRequest, ""},
	{services.ErrReconciliationNotFound, "not_found", http.StatusNotFound, "reconciliation item not found"},
	{services.ErrReconciliationConflict, "conflict", http.StatusConflict, "reconciliation item already resolved"},
	{services.ErrReconciliationExportDisabled, "export_disabled", http.StatusServiceUnavailable, "report export is not configured"},
	{services.ErrReconciliationUnavailable, "external", http.StatusServiceUnavailable, "reconciliation store is temporarily unavailable"},
}

// writeServiceError maps a service failure onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	httpx.WriteError(ctx, w, toHTTPError(err))
}

func toHTTPError(err error) httpx.Error {
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		out := httpx.NewError(m.code, message, m.status)

		var validation *services.ValidationError
		if errors.As(err, &validation) {
			out = out.WithFields(validation.Fields)
		}
		var reconciliation *services.ReconciliationError
		if errors.As(err, &reconciliation) {
			out = out.WithDetails(map[string]any{"booking_id": reconciliation.BookingID})
		}
		var payment *services.PaymentError
		if errors.As(err, &payment) && payment.Message != "" {
			out.Message = payment.Message
			if payment.DeclineCode != "" {
				out = out.WithDetails(map[string]any{"decline_code": payment.DeclineCode})
			}
		}
		return out
	}
	return httpx.NewError("internal", "failed to process request", http.StatusInternalServerError)
}

func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a valid JSON object", http.StatusBadRequest))
}
