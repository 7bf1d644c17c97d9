package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/prasathkrishna17/Botique-maid/internal/platform/firestore"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind repositories.Registry.
type Registry struct {
	provider        *pfirestore.Provider
	bookings        *BookingRepository
	areas           *ServiceAreaRepository
	reconciliations *ReconciliationRepository
	health          repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on one provider. The health repository probes Firestore
// plus any extra checks supplied by the caller.
func NewRegistry(provider *pfirestore.Provider, checks []repositories.DependencyCheck, opts ...BookingRepositoryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	bookings, err := NewBookingRepository(provider, opts...)
	if err != nil {
		return nil, err
	}
	areas, err := NewServiceAreaRepository(provider)
	if err != nil {
		return nil, err
	}
	reconciliations, err := NewReconciliationRepository(provider)
	if err != nil {
		return nil, err
	}
	all := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, checks...)
	health, err := repositories.NewDependencyHealthRepository(all)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	return &Registry{
		provider:        provider,
		bookings:        bookings,
		areas:           areas,
		reconciliations: reconciliations,
		health:          health,
	}, nil
}

func (r *Registry) Bookings() repositories.BookingRepository { return r.bookings }

func (r *Registry) ServiceAreas() repositories.ServiceAreaRepository { return r.areas }

func (r *Registry) Reconciliations() repositories.ReconciliationRepository { return r.reconciliations }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
