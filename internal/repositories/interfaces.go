package repositories

import (
	"context"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Bookings() BookingRepository
	ServiceAreas() ServiceAreaRepository
	Reconciliations() ReconciliationRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// BookingMutation inspects and edits a booking inside a store transaction. Returning false
// leaves the stored record untouched.
type BookingMutation func(booking *domain.Booking) (bool, error)

// BookingRepository persists booking aggregates.
type BookingRepository interface {
	// Insert stores a new booking and returns it with the store-assigned reference.
	Insert(ctx context.Context, booking domain.Booking) (domain.Booking, error)
	FindByID(ctx context.Context, bookingID string) (domain.Booking, error)
	// FindByIDAndEmail requires both fields to match; either mismatch reports not found.
	FindByIDAndEmail(ctx context.Context, bookingID string, email string) (domain.Booking, error)
	// Mutate loads the booking, applies fn and writes the result atomically. Concurrent
	// mutations of the same booking are serialised by the store.
	Mutate(ctx context.Context, bookingID string, fn BookingMutation) (domain.Booking, error)
}

// ServiceAreaRepository reads and maintains coverage rows keyed by FSA.
type ServiceAreaRepository interface {
	FindByFSA(ctx context.Context, fsa string) (domain.ServiceArea, error)
	List(ctx context.Context) ([]domain.ServiceArea, error)
	Upsert(ctx context.Context, area domain.ServiceArea) error
}

// ReconciliationQuery pages open items in (CreatedAt, ID) order, starting after the given key.
type ReconciliationQuery struct {
	Limit          int
	AfterCreatedAt time.Time
	AfterID        string
}

// ReconciliationRepository tracks captured payments whose booking update failed.
type ReconciliationRepository interface {
	Insert(ctx context.Context, item domain.Reconciliation) error
	ListOpen(ctx context.Context, query ReconciliationQuery) ([]domain.Reconciliation, error)
	Resolve(ctx context.Context, id string, resolvedBy string, note string, at time.Time) (domain.Reconciliation, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
