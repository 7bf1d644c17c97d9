package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/textutil"
)

var (
	// ErrSessionInvalidInput is the base of session *ValidationError values.
	ErrSessionInvalidInput = errors.New("session: invalid input")
	// ErrSessionFinished indicates the session already reached confirmation.
	ErrSessionFinished = errors.New("session: finished")
)

// SessionServiceDeps wires the booking-flow session service.
type SessionServiceDeps struct {
	Areas   AreaService
	Pricing PricingEngine
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type sessionService struct {
	areas   AreaService
	pricing PricingEngine
	logger  func(ctx context.Context, event string, fields map[string]any)
}

var _ SessionService = (*sessionService)(nil)

// NewSessionService constructs a SessionService validating required dependencies.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Areas == nil {
		return nil, errors.New("session service: area service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("session service: pricing engine is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &sessionService{areas: deps.Areas, pricing: deps.Pricing, logger: logger}, nil
}

// Advance applies the supplied inputs to the session, re-resolves anchors for its postal code,
// prices a complete selection and, when asked, moves the session to the next step. Anchors
// carried by the client are never trusted; the travel fee is not serialised.
func (s *sessionService) Advance(ctx context.Context, cmd AdvanceSessionCommand) (SessionResult, error) {
	session := cmd.Session
	if cmd.Reset {
		session.Reset()
	}
	if session.Step == "" {
		session.Step = domain.SessionStepQuote
	}
	if cmd.PostalCode != nil {
		session.SetPostalCode(*cmd.PostalCode)
	} else {
		session.PostalCode = domain.NormalizePostalCode(session.PostalCode)
	}
	if cmd.Selection != nil {
		session.Selection = *cmd.Selection
	}
	session.Selection.SpecialInstructions = textutil.SanitizePlainText(session.Selection.SpecialInstructions, textutil.MaxInstructionsLength)
	if cmd.Contact != nil {
		session.Contact = domain.Customer{
			FirstName: textutil.NormalizeName(cmd.Contact.FirstName),
			LastName:  textutil.NormalizeName(cmd.Contact.LastName),
			Email:     textutil.NormalizeEmail(cmd.Contact.Email),
			Phone:     strings.TrimSpace(cmd.Contact.Phone),
		}
	}
	if cmd.Address != nil {
		session.Address = domain.Address{
			Street:     textutil.SanitizePlainText(cmd.Address.Street, 200),
			Unit:       textutil.SanitizePlainText(cmd.Address.Unit, 40),
			City:       textutil.NormalizeName(cmd.Address.City),
			Province:   domain.NormalizeProvince(cmd.Address.Province),
			PostalCode: session.PostalCode,
		}
	}
	if cmd.PaymentMethod != nil {
		session.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(*cmd.PaymentMethod))))
	}
	if id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd.BookingID), "#")); id != "" {
		session.BookingID = id
	}

	session.Anchors = nil
	if session.PostalCode != "" {
		anchors, err := s.areas.Resolve(ctx, session.PostalCode)
		switch {
		case err == nil:
			if applyErr := session.ApplyAnchors(anchors); applyErr != nil {
				return SessionResult{}, fmt.Errorf("%w: %v", ErrAreaUnavailable, applyErr)
			}
		case errors.Is(err, ErrAreaInvalidFormat):
			return SessionResult{}, &ValidationError{Err: ErrSessionInvalidInput, Fields: map[string]string{"postalCode": "must be in A1A 1A1 form"}}
		default:
			return SessionResult{}, err
		}
	}

	result := SessionResult{
		UnitRequired:        domain.UnitRequired(session.Selection.PropertyType),
		DiscountCodeVisible: domain.DiscountCodeVisible(session.Selection.Frequency),
		ExtrasOffered:       domain.ExtrasOffered(session.Selection.Frequency),
	}
	if session.HasAnchors() && len(session.Selection.MissingFields()) == 0 {
		quote, err := s.pricing.Quote(session.Selection, *session.Anchors)
		if err != nil {
			return SessionResult{}, &ValidationError{Err: ErrSessionInvalidInput, Fields: map[string]string{"selection": err.Error()}}
		}
		result.Quote = &quote
	}

	if cmd.Advance {
		from := session.Step
		if err := session.Advance(); err != nil {
			switch {
			case errors.Is(err, domain.ErrSessionFinished):
				return SessionResult{}, ErrSessionFinished
			case errors.Is(err, domain.ErrSessionIncomplete):
				return SessionResult{}, &ValidationError{Err: ErrSessionInvalidInput, Fields: incompleteFields(session)}
			default:
				return SessionResult{}, fmt.Errorf("%w: %v", ErrSessionInvalidInput, err)
			}
		}
		s.logger(ctx, "session.advanced", map[string]any{
			"from": string(from),
			"to":   string(session.Step),
			"fsa":  domain.FSA(session.PostalCode),
		})
	}

	result.Session = session
	return result, nil
}

func incompleteFields(session domain.BookingSession) map[string]string {
	fields := fieldErrors{}
	switch session.Step {
	case domain.SessionStepFinalize:
		fields.add("bookingId", "submit the booking first")
	default:
		if !session.HasAnchors() {
			fields.add("postalCode", "is required")
		}
		for _, missing := range session.Selection.MissingFields() {
			fields.add("selection."+missing, "is required")
		}
	}
	if len(fields) == 0 {
		fields.add("step", "cannot advance")
	}
	return fields
}
