package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	pfirestore "github.com/prasathkrishna17/Botique-maid/internal/platform/firestore"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const serviceAreasCollection = "serviceAreas"

type serviceAreaDocument struct {
	Tier              string    `firestore:"tier"`
	TravelFeeInternal int64     `firestore:"travelFeeInternal"`
	Active            bool      `firestore:"active"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// ServiceAreaRepository reads coverage rows keyed by FSA document id.
type ServiceAreaRepository struct {
	areas *pfirestore.Collection[serviceAreaDocument]
}

var _ repositories.ServiceAreaRepository = (*ServiceAreaRepository)(nil)

// NewServiceAreaRepository constructs a Firestore-backed coverage repository.
func NewServiceAreaRepository(provider *pfirestore.Provider) (*ServiceAreaRepository, error) {
	if provider == nil {
		return nil, errors.New("service area repository requires firestore provider")
	}
	return &ServiceAreaRepository{
		areas: pfirestore.NewCollection[serviceAreaDocument](provider, serviceAreasCollection),
	}, nil
}

func (r *ServiceAreaRepository) FindByFSA(ctx context.Context, fsa string) (domain.ServiceArea, error) {
	doc, err := r.areas.Get(ctx, strings.ToUpper(strings.TrimSpace(fsa)))
	if err != nil {
		return domain.ServiceArea{}, err
	}
	return decodeServiceArea(doc.ID, doc.Data), nil
}

// List returns every row ordered by FSA, inactive rows included.
func (r *ServiceAreaRepository) List(ctx context.Context) ([]domain.ServiceArea, error) {
	docs, err := r.areas.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	areas := make([]domain.ServiceArea, 0, len(docs))
	for _, doc := range docs {
		areas = append(areas, decodeServiceArea(doc.ID, doc.Data))
	}
	return areas, nil
}

func (r *ServiceAreaRepository) Upsert(ctx context.Context, area domain.ServiceArea) error {
	fsa := strings.ToUpper(strings.TrimSpace(area.FSA))
	updatedAt := area.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return r.areas.Set(ctx, fsa, serviceAreaDocument{
		Tier:              area.Tier,
		TravelFeeInternal: area.TravelFeeInternal,
		Active:            area.Active,
		UpdatedAt:         updatedAt.UTC(),
	})
}

func decodeServiceArea(id string, doc serviceAreaDocument) domain.ServiceArea {
	return domain.ServiceArea{
		FSA:               id,
		Tier:              doc.Tier,
		TravelFeeInternal: doc.TravelFeeInternal,
		Active:            doc.Active,
		UpdatedAt:         doc.UpdatedAt.UTC(),
	}
}
