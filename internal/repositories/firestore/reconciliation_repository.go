package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	pfirestore "github.com/prasathkrishna17/Botique-maid/internal/platform/firestore"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const reconciliationsCollection = "reconciliations"

type reconciliationDocument struct {
	BookingID       string            `firestore:"bookingId"`
	PaymentIntentID string            `firestore:"paymentIntentId"`
	Amount          int64             `firestore:"amount"`
	Currency        string            `firestore:"currency"`
	Schedule        *scheduleDocument `firestore:"schedule,omitempty"`
	Reason          string            `firestore:"reason"`
	Status          string            `firestore:"status"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	ResolvedAt      *time.Time        `firestore:"resolvedAt,omitempty"`
	ResolvedBy      string            `firestore:"resolvedBy,omitempty"`
	Note            string            `firestore:"note,omitempty"`
}

// ReconciliationRepository persists the staff follow-up queue. Listing open items requires a
// composite index on (status, createdAt, __name__).
type ReconciliationRepository struct {
	provider *pfirestore.Provider
	items    *pfirestore.Collection[reconciliationDocument]
}

var _ repositories.ReconciliationRepository = (*ReconciliationRepository)(nil)

// NewReconciliationRepository constructs a Firestore-backed reconciliation repository.
func NewReconciliationRepository(provider *pfirestore.Provider) (*ReconciliationRepository, error) {
	if provider == nil {
		return nil, errors.New("reconciliation repository requires firestore provider")
	}
	return &ReconciliationRepository{
		provider: provider,
		items:    pfirestore.NewCollection[reconciliationDocument](provider, reconciliationsCollection),
	}, nil
}

// Insert creates the item under its own id; an existing id reports a conflict.
func (r *ReconciliationRepository) Insert(ctx context.Context, item domain.Reconciliation) error {
	ref, err := r.items.Doc(ctx, item.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeReconciliation(item)); err != nil {
		return pfirestore.WrapError("reconciliations.insert", err)
	}
	return nil
}

func (r *ReconciliationRepository) ListOpen(ctx context.Context, query repositories.ReconciliationQuery) ([]domain.Reconciliation, error) {
	coll, err := r.items.Ref(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.ReconciliationStatusOpen)).
			OrderBy("createdAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if !query.AfterCreatedAt.IsZero() && query.AfterID != "" {
			q = q.StartAfter(query.AfterCreatedAt.UTC(), coll.Doc(query.AfterID))
		}
		if query.Limit > 0 {
			q = q.Limit(query.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Reconciliation, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeReconciliation(doc.ID, doc.Data))
	}
	return items, nil
}

// Resolve closes an open item. Resolving an already resolved item fails with a conflict.
func (r *ReconciliationRepository) Resolve(ctx context.Context, id string, resolvedBy string, note string, at time.Time) (domain.Reconciliation, error) {
	ref, err := r.items.Doc(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Reconciliation{}, err
	}

	var result domain.Reconciliation
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.items.Decode(snap)
		if err != nil {
			return err
		}
		if doc.Data.Status != string(domain.ReconciliationStatusOpen) {
			return &pfirestore.Error{
				Op:   "reconciliations.resolve",
				Err:  errors.New("reconciliation already resolved"),
				Code: codes.FailedPrecondition,
			}
		}
		resolvedAt := at.UTC()
		doc.Data.Status = string(domain.ReconciliationStatusResolved)
		doc.Data.ResolvedAt = &resolvedAt
		doc.Data.ResolvedBy = resolvedBy
		doc.Data.Note = note
		result = decodeReconciliation(doc.ID, doc.Data)
		return tx.Set(ref, doc.Data)
	})
	if err != nil {
		return domain.Reconciliation{}, pfirestore.WrapError("reconciliations.resolve", err)
	}
	return result, nil
}

func encodeReconciliation(item domain.Reconciliation) reconciliationDocument {
	status := item.Status
	if status == "" {
		status = domain.ReconciliationStatusOpen
	}
	return reconciliationDocument{
		BookingID:       item.BookingID,
		PaymentIntentID: item.PaymentIntentID,
		Amount:          item.Amount,
		Currency:        item.Currency,
		Schedule:        encodeSchedule(item.Schedule),
		Reason:          item.Reason,
		Status:          string(status),
		CreatedAt:       item.CreatedAt.UTC(),
		ResolvedAt:      utcPtr(item.ResolvedAt),
		ResolvedBy:      item.ResolvedBy,
		Note:            item.Note,
	}
}

func decodeReconciliation(id string, doc reconciliationDocument) domain.Reconciliation {
	return domain.Reconciliation{
		ID:              id,
		BookingID:       doc.BookingID,
		PaymentIntentID: doc.PaymentIntentID,
		Amount:          doc.Amount,
		Currency:        doc.Currency,
		Schedule:        decodeSchedule(doc.Schedule),
		Reason:          doc.Reason,
		Status:          domain.ReconciliationStatus(doc.Status),
		CreatedAt:       doc.CreatedAt.UTC(),
		ResolvedAt:      utcPtr(doc.ResolvedAt),
		ResolvedBy:      doc.ResolvedBy,
		Note:            doc.Note,
	}
}
