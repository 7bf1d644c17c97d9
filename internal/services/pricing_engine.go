package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
)

const (
	minRooms = 1
	maxRooms = 10
)

var (
	// ErrPricingInvalidSelection signals room counts out of range or unknown enum values.
	ErrPricingInvalidSelection = errors.New("pricing: invalid selection")
	// ErrPricingAnchorsRequired signals a quote requested without resolved anchors.
	ErrPricingAnchorsRequired = errors.New("pricing: resolved anchors required")
)

// PricingEngineDeps configures the pricing engine. A nil RateCard uses the published card.
type PricingEngineDeps struct {
	RateCard *domain.RateCard
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	card   domain.RateCard
	logger func(ctx context.Context, event string, fields map[string]any)
}

var _ PricingEngine = (*pricingEngine)(nil)

// NewPricingEngine validates the rate card and returns a PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	card := domain.DefaultRateCard()
	if deps.RateCard != nil {
		card = *deps.RateCard
	}
	if _, ok := card.PropertyBase[card.FallbackProperty]; !ok {
		return nil, errors.New("pricing engine: fallback property must have a base price")
	}
	if card.TaxRate < 0 {
		return nil, errors.New("pricing engine: tax rate must not be negative")
	}
	if strings.TrimSpace(card.Currency) == "" {
		card.Currency = "CAD"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{card: card, logger: logger}, nil
}

// Quote prices the selection. Discount and tax are each rounded half-up to the cent.
func (e *pricingEngine) Quote(selection domain.ServiceSelection, anchors domain.Anchors) (domain.Quote, error) {
	if strings.TrimSpace(anchors.PostalCode) == "" || strings.TrimSpace(anchors.Tier) == "" {
		return domain.Quote{}, ErrPricingAnchorsRequired
	}
	if anchors.TravelFeeInternal < 0 {
		return domain.Quote{}, fmt.Errorf("%w: negative travel fee", ErrPricingAnchorsRequired)
	}
	selection, err := normaliseSelection(selection)
	if err != nil {
		return domain.Quote{}, err
	}

	base, ok := e.card.PropertyBase[selection.PropertyType]
	if !ok {
		// Unknown or missing property types are priced as the fallback property.
		base = e.card.PropertyBase[e.card.FallbackProperty]
		e.logger(context.Background(), "pricing.property_fallback", map[string]any{
			"propertyType": string(selection.PropertyType),
			"fallback":     string(e.card.FallbackProperty),
		})
	}

	rooms := int64(selection.Bedrooms)*e.card.PerBedroom + int64(selection.Bathrooms)*e.card.PerBathroom
	service := e.card.CleaningFees[selection.CleaningType]
	for _, addOn := range selection.AddOns {
		service += e.card.AddOnFees[addOn]
	}

	beforeDiscount := base + rooms + service
	var discount int64
	if selection.Frequency.Recurring() {
		discount = domain.ApplyRate(beforeDiscount, e.card.Discounts[selection.Frequency])
	}
	subtotal := beforeDiscount - discount
	taxable := subtotal + anchors.TravelFeeInternal
	hst := domain.ApplyRate(taxable, e.card.TaxRate)

	return domain.Quote{
		Currency:       e.card.Currency,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		HST:            hst,
		Total:          taxable + hst,
		TravelFee:      anchors.TravelFeeInternal,
	}, nil
}

// normaliseSelection applies defaults (regular, one-time), de-duplicates add-ons and rejects
// out-of-range values. The property type is left as-is so the fallback can apply.
func normaliseSelection(sel domain.ServiceSelection) (domain.ServiceSelection, error) {
	if sel.Bedrooms < minRooms || sel.Bedrooms > maxRooms {
		return sel, fmt.Errorf("%w: bedrooms must be between %d and %d", ErrPricingInvalidSelection, minRooms, maxRooms)
	}
	if sel.Bathrooms < minRooms || sel.Bathrooms > maxRooms {
		return sel, fmt.Errorf("%w: bathrooms must be between %d and %d", ErrPricingInvalidSelection, minRooms, maxRooms)
	}

	sel.PropertyType = domain.PropertyType(strings.ToLower(strings.TrimSpace(string(sel.PropertyType))))
	sel.CleaningType = domain.CleaningType(strings.ToLower(strings.TrimSpace(string(sel.CleaningType))))
	if sel.CleaningType == "" {
		sel.CleaningType = domain.CleaningTypeRegular
	}
	if !sel.CleaningType.Valid() {
		return sel, fmt.Errorf("%w: unknown cleaning type %q", ErrPricingInvalidSelection, sel.CleaningType)
	}
	sel.Frequency = domain.Frequency(strings.ToLower(strings.TrimSpace(string(sel.Frequency))))
	if sel.Frequency == "" {
		sel.Frequency = domain.FrequencyOneTime
	}
	if !sel.Frequency.Valid() {
		return sel, fmt.Errorf("%w: unknown frequency %q", ErrPricingInvalidSelection, sel.Frequency)
	}

	addOns := make([]domain.AddOn, 0, len(sel.AddOns))
	for _, addOn := range sel.AddOns {
		addOn = domain.AddOn(strings.ToLower(strings.TrimSpace(string(addOn))))
		if !addOn.Valid() {
			return sel, fmt.Errorf("%w: unknown add-on %q", ErrPricingInvalidSelection, addOn)
		}
		if !slices.Contains(addOns, addOn) {
			addOns = append(addOns, addOn)
		}
	}
	slices.Sort(addOns)
	sel.AddOns = addOns
	return sel, nil
}
