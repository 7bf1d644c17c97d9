package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	ppostgres "github.com/prasathkrishna17/Botique-maid/internal/platform/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

type serviceAreaRow struct {
	FSA            string    `db:"fsa"`
	Tier           string    `db:"tier"`
	TravelFeeCents int64     `db:"travel_fee_cents"`
	Active         bool      `db:"active"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ServiceAreaRepository reads coverage rows from the service_areas table.
type ServiceAreaRepository struct {
	db *sqlx.DB
}

var _ repositories.ServiceAreaRepository = (*ServiceAreaRepository)(nil)

// NewServiceAreaRepository constructs a SQL coverage repository.
func NewServiceAreaRepository(db *sqlx.DB) (*ServiceAreaRepository, error) {
	if db == nil {
		return nil, errors.New("service area repository requires postgres db")
	}
	return &ServiceAreaRepository{db: db}, nil
}

func (r *ServiceAreaRepository) FindByFSA(ctx context.Context, fsa string) (domain.ServiceArea, error) {
	var row serviceAreaRow
	err := r.db.GetContext(ctx, &row,
		`SELECT fsa, tier, travel_fee_cents, active, updated_at FROM service_areas WHERE fsa = $1`,
		strings.ToUpper(strings.TrimSpace(fsa)))
	if err != nil {
		return domain.ServiceArea{}, ppostgres.WrapError("service_areas.find", err)
	}
	return row.toDomain(), nil
}

func (r *ServiceAreaRepository) List(ctx context.Context) ([]domain.ServiceArea, error) {
	var rows []serviceAreaRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT fsa, tier, travel_fee_cents, active, updated_at FROM service_areas ORDER BY fsa`); err != nil {
		return nil, ppostgres.WrapError("service_areas.list", err)
	}
	areas := make([]domain.ServiceArea, 0, len(rows))
	for _, row := range rows {
		areas = append(areas, row.toDomain())
	}
	return areas, nil
}

func (r *ServiceAreaRepository) Upsert(ctx context.Context, area domain.ServiceArea) error {
	updatedAt := area.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO service_areas (fsa, tier, travel_fee_cents, active, updated_at)
VALUES (:fsa, :tier, :travel_fee_cents, :active, :updated_at)
ON CONFLICT (fsa) DO UPDATE SET
	tier = EXCLUDED.tier,
	travel_fee_cents = EXCLUDED.travel_fee_cents,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`, serviceAreaRow{
		FSA:            strings.ToUpper(strings.TrimSpace(area.FSA)),
		Tier:           area.Tier,
		TravelFeeCents: area.TravelFeeInternal,
		Active:         area.Active,
		UpdatedAt:      updatedAt.UTC(),
	})
	return ppostgres.WrapError("service_areas.upsert", err)
}

func (row serviceAreaRow) toDomain() domain.ServiceArea {
	return domain.ServiceArea{
		FSA:               strings.TrimSpace(row.FSA),
		Tier:              row.Tier,
		TravelFeeInternal: row.TravelFeeCents,
		Active:            row.Active,
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}
