package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	countersCollection = "counters"
	// bookingCounterID names the counter that issues customer-facing booking references.
	bookingCounterID = "bookings"
	// firstBookingReference is the default first reference; it keeps references at six digits.
	firstBookingReference int64 = 100000
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// nextCounterValue reserves the next value of a counter inside tx. A missing counter starts at
// floor. The caller must perform no other reads after this call.
func nextCounterValue(tx *firestore.Transaction, ref *firestore.DocumentRef, floor int64, now time.Time) (int64, error) {
	snapshot, err := tx.Get(ref)
	switch status.Code(err) {
	case codes.NotFound:
		doc := counterDocument{CurrentValue: floor, Step: 1, UpdatedAt: now}
		if err := tx.Create(ref, doc); err != nil {
			return 0, err
		}
		return floor, nil
	case codes.OK:
	default:
		return 0, err
	}

	var doc counterDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("firestore counters decode %s: %w", ref.ID, err)
	}
	increment := doc.Step
	if increment <= 0 {
		increment = 1
	}
	next := doc.CurrentValue + increment
	if next < floor {
		next = floor
	}
	doc.CurrentValue = next
	doc.Step = increment
	doc.UpdatedAt = now
	if err := tx.Set(ref, doc); err != nil {
		return 0, err
	}
	return next, nil
}
