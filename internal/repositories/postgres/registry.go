package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	ppostgres "github.com/prasathkrishna17/Botique-maid/internal/platform/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

// Registry bundles the SQL repositories behind repositories.Registry.
type Registry struct {
	db              *sqlx.DB
	bookings        *BookingRepository
	areas           *ServiceAreaRepository
	reconciliations *ReconciliationRepository
	health          repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on db. The health repository probes Postgres plus any
// extra checks supplied by the caller.
func NewRegistry(db *sqlx.DB, checks ...repositories.DependencyCheck) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry: db is required")
	}
	bookings, err := NewBookingRepository(db)
	if err != nil {
		return nil, err
	}
	areas, err := NewServiceAreaRepository(db)
	if err != nil {
		return nil, err
	}
	reconciliations, err := NewReconciliationRepository(db)
	if err != nil {
		return nil, err
	}
	ping := repositories.DependencyCheck{
		Name:  "postgres",
		Check: func(ctx context.Context) error { return ppostgres.Ping(ctx, db) },
	}
	health, err := repositories.NewDependencyHealthRepository(append([]repositories.DependencyCheck{ping}, checks...))
	if err != nil {
		return nil, fmt.Errorf("postgres registry: %w", err)
	}
	return &Registry{
		db:              db,
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

// Close closes the connection pool.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
