package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	ppostgres "github.com/prasathkrishna17/Botique-maid/internal/platform/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const reconciliationColumns = `id, booking_id, payment_intent_id, amount_cents, currency, service_date,
	service_time, reason, status, created_at, resolved_at, resolved_by, note`

type reconciliationRow struct {
	ID              string         `db:"id"`
	BookingID       string         `db:"booking_id"`
	PaymentIntentID string         `db:"payment_intent_id"`
	AmountCents     int64          `db:"amount_cents"`
	Currency        string         `db:"currency"`
	ServiceDate     sql.NullTime   `db:"service_date"`
	ServiceTime     sql.NullString `db:"service_time"`
	Reason          string         `db:"reason"`
	Status          string         `db:"status"`
	CreatedAt       time.Time      `db:"created_at"`
	ResolvedAt      sql.NullTime   `db:"resolved_at"`
	ResolvedBy      string         `db:"resolved_by"`
	Note            string         `db:"note"`
}

// ReconciliationRepository persists the staff follow-up queue in Postgres.
type ReconciliationRepository struct {
	db *sqlx.DB
}

var _ repositories.ReconciliationRepository = (*ReconciliationRepository)(nil)

// NewReconciliationRepository constructs a SQL reconciliation repository.
func NewReconciliationRepository(db *sqlx.DB) (*ReconciliationRepository, error) {
	if db == nil {
		return nil, errors.New("reconciliation repository requires postgres db")
	}
	return &ReconciliationRepository{db: db}, nil
}

func (r *ReconciliationRepository) Insert(ctx context.Context, item domain.Reconciliation) error {
	row := toReconciliationRow(item)
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO reconciliations (`+reconciliationColumns+`)
VALUES (:id, :booking_id, :payment_intent_id, :amount_cents, :currency, :service_date, :service_time,
	:reason, :status, :created_at, :resolved_at, :resolved_by, :note)`, row)
	return ppostgres.WrapError("reconciliations.insert", err)
}

// ListOpen pages with a keyset on (created_at, id), matching reconciliations_open_idx.
func (r *ReconciliationRepository) ListOpen(ctx context.Context, query repositories.ReconciliationQuery) ([]domain.Reconciliation, error) {
	var (
		b    strings.Builder
		args = []any{string(domain.ReconciliationStatusOpen)}
	)
	b.WriteString(`SELECT ` + reconciliationColumns + ` FROM reconciliations WHERE status = $1`)
	if !query.AfterCreatedAt.IsZero() && query.AfterID != "" {
		b.WriteString(` AND (created_at, id) > ($2, $3)`)
		args = append(args, query.AfterCreatedAt.UTC(), query.AfterID)
	}
	b.WriteString(` ORDER BY created_at, id`)
	if query.Limit > 0 {
		args = append(args, query.Limit)
		b.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}

	var rows []reconciliationRow
	if err := r.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, ppostgres.WrapError("reconciliations.list", err)
	}
	items := make([]domain.Reconciliation, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// Resolve closes an open item; resolving a closed item reports a conflict.
func (r *ReconciliationRepository) Resolve(ctx context.Context, id string, resolvedBy string, note string, at time.Time) (domain.Reconciliation, error) {
	var result domain.Reconciliation
	err := ppostgres.InTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var row reconciliationRow
		if err := tx.GetContext(ctx, &row,
			`SELECT `+reconciliationColumns+` FROM reconciliations WHERE id = $1 FOR UPDATE`, strings.TrimSpace(id)); err != nil {
			return ppostgres.WrapError("reconciliations.lock", err)
		}
		if row.Status != string(domain.ReconciliationStatusOpen) {
			return ppostgres.ConflictError("reconciliations.resolve", "reconciliation already resolved")
		}
		row.Status = string(domain.ReconciliationStatusResolved)
		row.ResolvedAt = sql.NullTime{Time: at.UTC(), Valid: true}
		row.ResolvedBy = resolvedBy
		row.Note = note
		if _, err := tx.NamedExecContext(ctx, `UPDATE reconciliations SET
	status = :status, resolved_at = :resolved_at, resolved_by = :resolved_by, note = :note
WHERE id = :id`, row); err != nil {
			return ppostgres.WrapError("reconciliations.resolve", err)
		}
		result = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Reconciliation{}, err
	}
	return result, nil
}

func toReconciliationRow(item domain.Reconciliation) reconciliationRow {
	status := item.Status
	if status == "" {
		status = domain.ReconciliationStatusOpen
	}
	row := reconciliationRow{
		ID:              item.ID,
		BookingID:       item.BookingID,
		PaymentIntentID: item.PaymentIntentID,
		AmountCents:     item.Amount,
		Currency:        item.Currency,
		Reason:          item.Reason,
		Status:          string(status),
		CreatedAt:       item.CreatedAt.UTC(),
		ResolvedAt:      nullTime(item.ResolvedAt),
		ResolvedBy:      item.ResolvedBy,
		Note:            item.Note,
	}
	row.ServiceDate, row.ServiceTime = scheduleColumns(item.Schedule)
	return row
}

func (row reconciliationRow) toDomain() domain.Reconciliation {
	return domain.Reconciliation{
		ID:              row.ID,
		BookingID:       row.BookingID,
		PaymentIntentID: row.PaymentIntentID,
		Amount:          row.AmountCents,
		Currency:        row.Currency,
		Schedule:        scheduleFromColumns(row.ServiceDate, row.ServiceTime),
		Reason:          row.Reason,
		Status:          domain.ReconciliationStatus(row.Status),
		CreatedAt:       row.CreatedAt.UTC(),
		ResolvedAt:      timePtr(row.ResolvedAt),
		ResolvedBy:      row.ResolvedBy,
		Note:            row.Note,
	}
}
