package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/observability"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/pagination"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/storage"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/textutil"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

const (
	defaultReconciliationPageSize = 50
	maxReconciliationPageSize     = 200
	exportBatchSize               = 200
	maxResolutionNoteLength       = 500
)

var (
	// ErrReconciliationInvalidInput indicates a malformed list or resolve request.
	ErrReconciliationInvalidInput = errors.New("reconciliation: invalid input")
	// ErrReconciliationNotFound indicates an unknown item.
	ErrReconciliationNotFound = errors.New("reconciliation: not found")
	// ErrReconciliationConflict indicates the item was already resolved.
	ErrReconciliationConflict = errors.New("reconciliation: already resolved")
	// ErrReconciliationUnavailable indicates the store or the report bucket failed.
	ErrReconciliationUnavailable = errors.New("reconciliation: unavailable")
	// ErrReconciliationExportDisabled indicates no report bucket is configured.
	ErrReconciliationExportDisabled = errors.New("reconciliation: export disabled")
)

var reconciliationCSVHeader = []string{
	"id", "booking_id", "payment_intent_id", "amount_cents", "currency",
	"service_date", "service_time", "reason", "created_at",
}

// reportWriter stores generated report objects.
type reportWriter interface {
	Put(ctx context.Context, object string, body io.Reader, attrs storage.ObjectAttrs) (storage.Object, error)
}

// ReconciliationServiceDeps wires the staff reconciliation queue.
type ReconciliationServiceDeps struct {
	Reconciliations repositories.ReconciliationRepository
	Reports         reportWriter
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	items   repositories.ReconciliationRepository
	reports reportWriter
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

var _ ReconciliationService = (*reconciliationService)(nil)

// NewReconciliationService constructs a ReconciliationService. Reports is optional; without it
// Export returns ErrReconciliationExportDisabled.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Reconciliations == nil {
		return nil, errors.New("reconciliation service: reconciliation repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reconciliationService{
		items:   deps.Reconciliations,
		reports: deps.Reports,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *reconciliationService) ListOpen(ctx context.Context, filter ReconciliationFilter) (ReconciliationPage, error) {
	size := filter.PageSize
	switch {
	case size < 0:
		return ReconciliationPage{}, fmt.Errorf("%w: page size must not be negative", ErrReconciliationInvalidInput)
	case size == 0:
		size = defaultReconciliationPageSize
	case size > maxReconciliationPageSize:
		size = maxReconciliationPageSize
	}
	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return ReconciliationPage{}, fmt.Errorf("%w: %v", ErrReconciliationInvalidInput, err)
	}

	items, err := s.items.ListOpen(ctx, repositories.ReconciliationQuery{
		Limit:          size + 1,
		AfterCreatedAt: cursor.CreatedAt,
		AfterID:        cursor.ID,
	})
	if err != nil {
		return ReconciliationPage{}, classifyRepositoryError(err, nil, nil, ErrReconciliationUnavailable)
	}

	page := ReconciliationPage{Items: items}
	if len(items) > size {
		page.Items = items[:size]
		last := page.Items[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return ReconciliationPage{}, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Resolve closes an open item. The note is stored as plain text.
func (s *reconciliationService) Resolve(ctx context.Context, cmd ResolveReconciliationCommand) (domain.Reconciliation, error) {
	id := strings.TrimSpace(cmd.ID)
	resolvedBy := firstNonEmpty(cmd.ResolvedBy, actorFromContext(ctx))
	fields := fieldErrors{}
	if id == "" {
		fields.add("id", "is required")
	}
	if resolvedBy == "" {
		fields.add("resolvedBy", "is required")
	}
	if err := fields.err(ErrReconciliationInvalidInput); err != nil {
		return domain.Reconciliation{}, err
	}
	note := textutil.SanitizePlainText(cmd.Note, maxResolutionNoteLength)

	item, err := s.items.Resolve(ctx, id, resolvedBy, note, s.now())
	if err != nil {
		return domain.Reconciliation{}, classifyRepositoryError(err, ErrReconciliationNotFound, ErrReconciliationConflict, ErrReconciliationUnavailable)
	}
	s.logger(ctx, "reconciliation.resolved", map[string]any{
		"reconciliationID": item.ID,
		"bookingID":        item.BookingID,
		"resolvedBy":       observability.SanitizeIdentifier(resolvedBy),
	})
	return item, nil
}

// Export writes every open item to a CSV report in the reports bucket.
func (s *reconciliationService) Export(ctx context.Context) (ReconciliationExport, error) {
	if s.reports == nil {
		return ReconciliationExport{}, ErrReconciliationExportDisabled
	}
	now := s.now()
	name, err := storage.ReportPath(storage.ReportReconciliations, now, "csv")
	if err != nil {
		return ReconciliationExport{}, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reconciliationCSVHeader); err != nil {
		return ReconciliationExport{}, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
	}

	count := 0
	query := repositories.ReconciliationQuery{Limit: exportBatchSize}
	for {
		batch, err := s.items.ListOpen(ctx, query)
		if err != nil {
			return ReconciliationExport{}, classifyRepositoryError(err, nil, nil, ErrReconciliationUnavailable)
		}
		for _, item := range batch {
			if err := w.Write(reconciliationRecord(item)); err != nil {
				return ReconciliationExport{}, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
			}
		}
		count += len(batch)
		if len(batch) < exportBatchSize {
			break
		}
		last := batch[len(batch)-1]
		query.AfterCreatedAt = last.CreatedAt
		query.AfterID = last.ID
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return ReconciliationExport{}, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
	}

	object, err := s.reports.Put(ctx, name, &buf, storage.ObjectAttrs{
		ContentType: "text/csv",
		Metadata: map[string]string{
			"items":       strconv.Itoa(count),
			"generatedAt": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		s.logger(ctx, "reconciliation.export_failed", map[string]any{
			"object": name,
			"error":  err.Error(),
		})
		return ReconciliationExport{}, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
	}
	s.logger(ctx, "reconciliation.exported", map[string]any{
		"object": object.URI(),
		"items":  count,
	})
	return ReconciliationExport{Object: object, Count: count, ExportedAt: now}, nil
}

func reconciliationRecord(item domain.Reconciliation) []string {
	var date, slot string
	if item.Schedule != nil {
		date = item.Schedule.DateString()
		slot = item.Schedule.TimeSlot
	}
	return []string{
		item.ID,
		item.BookingID,
		item.PaymentIntentID,
		strconv.FormatInt(item.Amount, 10),
		item.Currency,
		date,
		slot,
		item.Reason,
		item.CreatedAt.UTC().Format(time.RFC3339),
	}
}
