package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/observability"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

var fsaPattern = regexp.MustCompile(`^[A-Z]\d[A-Z]$`)

var (
	// ErrAreaInvalidFormat indicates the postal code is not in canonical "A1A 1A1" form.
	ErrAreaInvalidFormat = errors.New("area: invalid postal code format")
	// ErrAreaNotFound indicates the geocoder does not know the postal code.
	ErrAreaNotFound = errors.New("area: postal code not found")
	// ErrAreaUnserved indicates the FSA has no active service area.
	ErrAreaUnserved = errors.New("area: unserved")
	// ErrAreaUnavailable indicates the geocoder or the coverage store failed.
	ErrAreaUnavailable = errors.New("area: unavailable")
	// ErrAreaInvalidInput indicates a malformed coverage row.
	ErrAreaInvalidInput = errors.New("area: invalid input")
	// ErrGeocodeNotFound is returned by geocoders when the postal code has no match.
	ErrGeocodeNotFound = errors.New("geocode: not found")
)

// GeocodeResult is the locality a geocoder reports for a postal code.
type GeocodeResult struct {
	City     string
	Province string
}

// Geocoder confirms that a postal code exists. Implementations return ErrGeocodeNotFound when
// it does not.
type Geocoder interface {
	Geocode(ctx context.Context, postalCode string) (GeocodeResult, error)
}

// AreaServiceDeps wires the resolver.
type AreaServiceDeps struct {
	Areas    repositories.ServiceAreaRepository
	Geocoder Geocoder
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type areaService struct {
	areas    repositories.ServiceAreaRepository
	geocoder Geocoder
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

var _ AreaService = (*areaService)(nil)

// NewAreaService constructs an AreaService validating required dependencies.
func NewAreaService(deps AreaServiceDeps) (AreaService, error) {
	if deps.Areas == nil {
		return nil, errors.New("area service: service area repository is required")
	}
	if deps.Geocoder == nil {
		return nil, errors.New("area service: geocoder is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &areaService{
		areas:    deps.Areas,
		geocoder: deps.Geocoder,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Resolve validates the canonical postal code, confirms it with the geocoder and looks up its
// FSA. Format errors never reach the geocoder.
func (s *areaService) Resolve(ctx context.Context, postalCode string) (domain.Anchors, error) {
	code := strings.TrimSpace(postalCode)
	if !domain.ValidPostalCode(code) {
		return domain.Anchors{}, ErrAreaInvalidFormat
	}

	located, err := s.geocoder.Geocode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrGeocodeNotFound) {
			return domain.Anchors{}, ErrAreaNotFound
		}
		s.logger(ctx, "area.geocode_failed", map[string]any{
			"fsa":   domain.FSA(code),
			"error": err.Error(),
		})
		return domain.Anchors{}, fmt.Errorf("%w: geocode: %v", ErrAreaUnavailable, err)
	}

	fsa := domain.FSA(code)
	area, err := s.areas.FindByFSA(ctx, fsa)
	if err != nil {
		mapped := classifyRepositoryError(err, ErrAreaUnserved, nil, ErrAreaUnavailable)
		if errors.Is(mapped, ErrAreaUnavailable) {
			s.logger(ctx, "area.lookup_failed", map[string]any{
				"fsa":   fsa,
				"error": err.Error(),
			})
		}
		return domain.Anchors{}, mapped
	}
	if !area.Active {
		return domain.Anchors{}, ErrAreaUnserved
	}

	return domain.Anchors{
		PostalCode:        code,
		FSA:               fsa,
		City:              strings.TrimSpace(located.City),
		Province:          domain.NormalizeProvince(located.Province),
		Tier:              area.Tier,
		TravelFeeInternal: area.TravelFeeInternal,
	}, nil
}

func (s *areaService) List(ctx context.Context) ([]domain.ServiceArea, error) {
	areas, err := s.areas.List(ctx)
	if err != nil {
		return nil, classifyRepositoryError(err, nil, nil, ErrAreaUnavailable)
	}
	return areas, nil
}

// Upsert creates or replaces the coverage row for an FSA.
func (s *areaService) Upsert(ctx context.Context, cmd UpsertAreaCommand) (domain.ServiceArea, error) {
	fields := fieldErrors{}
	fsa := strings.ToUpper(strings.TrimSpace(cmd.FSA))
	if !fsaPattern.MatchString(fsa) {
		fields.add("fsa", "must be a forward sortation area such as M5V")
	}
	tier := strings.ToLower(strings.TrimSpace(cmd.Tier))
	if tier == "" {
		fields.add("tier", "is required")
	}
	if cmd.TravelFee < 0 {
		fields.add("travelFee", "must not be negative")
	}
	if err := fields.err(ErrAreaInvalidInput); err != nil {
		return domain.ServiceArea{}, err
	}

	area := domain.ServiceArea{
		FSA:               fsa,
		Tier:              tier,
		TravelFeeInternal: cmd.TravelFee,
		Active:            cmd.Active,
		UpdatedAt:         s.now(),
	}
	if err := s.areas.Upsert(ctx, area); err != nil {
		return domain.ServiceArea{}, classifyRepositoryError(err, nil, nil, ErrAreaUnavailable)
	}
	s.logger(ctx, "area.upserted", map[string]any{
		"fsa":    fsa,
		"tier":   tier,
		"active": cmd.Active,
		"actor":  observability.SanitizeIdentifier(actorFromContext(ctx)),
	})
	return area, nil
}
