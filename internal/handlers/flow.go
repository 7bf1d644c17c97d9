package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

// FlowHandlers serves the anonymous quote flow: postal code resolution, quotes and session
// advancement.
type FlowHandlers struct {
	areas    services.AreaService
	pricing  services.PricingEngine
	sessions services.SessionService
}

// NewFlowHandlers constructs the quote flow handlers.
func NewFlowHandlers(areas services.AreaService, pricing services.PricingEngine, sessions services.SessionService) *FlowHandlers {
	return &FlowHandlers{
		areas:    areas,
		pricing:  pricing,
		sessions: sessions,
	}
}

// Routes registers the quote flow endpoints.
func (h *FlowHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/areas/resolve", h.resolveArea)
	r.Post("/quotes", h.computeQuote)
	r.Post("/sessions/advance", h.advanceSession)
}

type resolveAreaRequest struct {
	PostalCode string `json:"postalCode"`
}

type anchorsResponse struct {
	PostalCode string `json:"postalCode"`
	FSA        string `json:"fsa"`
	City       string `json:"city"`
	Province   string `json:"province"`
	Tier       string `json:"tier"`
}

type selectionPayload struct {
	PropertyType        string   `json:"propertyType"`
	Bedrooms            int      `json:"bedrooms"`
	Bathrooms           int      `json:"bathrooms"`
	CleaningType        string   `json:"cleaningType"`
	Frequency           string   `json:"frequency"`
	AddOns              []string `json:"addOns"`
	SpecialInstructions string   `json:"specialInstructions"`
}

type quoteRequest struct {
	PostalCode string           `json:"postalCode"`
	Selection  selectionPayload `json:"selection"`
}

type quoteResponse struct {
	Currency               string `json:"currency"`
	SubtotalBeforeDiscount int64  `json:"subtotalBeforeDiscount"`
	DiscountAmount         int64  `json:"discountAmount"`
	Subtotal               int64  `json:"subtotal"`
	HST                    int64  `json:"hst"`
	Total                  int64  `json:"total"`
}

type quoteEnvelope struct {
	Anchors             anchorsResponse `json:"anchors"`
	Quote               quoteResponse   `json:"quote"`
	UnitRequired        bool            `json:"unitRequired"`
	DiscountCodeVisible bool            `json:"discountCodeVisible"`
	ExtrasOffered       bool            `json:"extrasOffered"`
}

type advanceSessionRequest struct {
	Session       *domain.BookingSession `json:"session"`
	PostalCode    *string                `json:"postalCode"`
	Selection     *selectionPayload      `json:"selection"`
	Contact       *domain.Customer       `json:"contact"`
	Address       *domain.Address        `json:"address"`
	PaymentMethod *string                `json:"paymentMethod"`
	BookingID     string                 `json:"bookingId"`
	Advance       bool                   `json:"advance"`
	Reset         bool                   `json:"reset"`
}

type sessionResponse struct {
	Session             domain.BookingSession `json:"session"`
	Quote               *quoteResponse        `json:"quote,omitempty"`
	UnitRequired        bool                  `json:"unitRequired"`
	DiscountCodeVisible bool                  `json:"discountCodeVisible"`
	ExtrasOffered       bool                  `json:"extrasOffered"`
	TimeSlots           []string              `json:"timeSlots"`
}

func (h *FlowHandlers) resolveArea(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.areas == nil {
		httpx.WriteError(ctx, w, httpx.NewError("area_unavailable", "area service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req resolveAreaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	anchors, err := h.areas.Resolve(ctx, domain.NormalizePostalCode(req.PostalCode))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildAnchorsResponse(anchors))
}

func (h *FlowHandlers) computeQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.areas == nil || h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	anchors, err := h.areas.Resolve(ctx, domain.NormalizePostalCode(req.PostalCode))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	selection := req.Selection.toDomain()
	quote, err := h.pricing.Quote(selection, anchors)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, quoteEnvelope{
		Anchors:             buildAnchorsResponse(anchors),
		Quote:               buildQuoteResponse(quote),
		UnitRequired:        domain.UnitRequired(selection.PropertyType),
		DiscountCodeVisible: domain.DiscountCodeVisible(selection.Frequency),
		ExtrasOffered:       domain.ExtrasOffered(selection.Frequency),
	})
}

func (h *FlowHandlers) advanceSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req advanceSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	cmd := services.AdvanceSessionCommand{
		Session:    domain.NewBookingSession(),
		PostalCode: req.PostalCode,
		Contact:    req.Contact,
		Address:    req.Address,
		BookingID:  req.BookingID,
		Advance:    req.Advance,
		Reset:      req.Reset,
	}
	if req.Session != nil {
		cmd.Session = *req.Session
	}
	if req.Selection != nil {
		selection := req.Selection.toDomain()
		cmd.Selection = &selection
	}
	if req.PaymentMethod != nil {
		method := domain.PaymentMethod(strings.TrimSpace(*req.PaymentMethod))
		cmd.PaymentMethod = &method
	}

	result, err := h.sessions.Advance(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := sessionResponse{
		Session:             result.Session,
		UnitRequired:        result.UnitRequired,
		DiscountCodeVisible: result.DiscountCodeVisible,
		ExtrasOffered:       result.ExtrasOffered,
		TimeSlots:           domain.TimeSlots(),
	}
	if result.Quote != nil {
		quote := buildQuoteResponse(*result.Quote)
		payload.Quote = &quote
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (p selectionPayload) toDomain() domain.ServiceSelection {
	selection := domain.ServiceSelection{
		PropertyType:        domain.PropertyType(strings.ToLower(strings.TrimSpace(p.PropertyType))),
		Bedrooms:            p.Bedrooms,
		Bathrooms:           p.Bathrooms,
		CleaningType:        domain.CleaningType(strings.ToLower(strings.TrimSpace(p.CleaningType))),
		Frequency:           domain.Frequency(strings.ToLower(strings.TrimSpace(p.Frequency))),
		SpecialInstructions: p.SpecialInstructions,
	}
	for _, addOn := range p.AddOns {
		if trimmed := strings.ToLower(strings.TrimSpace(addOn)); trimmed != "" {
			selection.AddOns = append(selection.AddOns, domain.AddOn(trimmed))
		}
	}
	return selection
}

func buildAnchorsResponse(anchors domain.Anchors) anchorsResponse {
	return anchorsResponse{
		PostalCode: anchors.PostalCode,
		FSA:        anchors.FSA,
		City:       anchors.City,
		Province:   anchors.Province,
		Tier:       anchors.Tier,
	}
}

// buildQuoteResponse omits the travel fee; it is folded into the total only.
func buildQuoteResponse(quote domain.Quote) quoteResponse {
	return quoteResponse{
		Currency:               quote.Currency,
		SubtotalBeforeDiscount: quote.SubtotalBeforeDiscount(),
		DiscountAmount:         quote.DiscountAmount,
		Subtotal:               quote.Subtotal,
		HST:                    quote.HST,
		Total:                  quote.Total,
	}
}
