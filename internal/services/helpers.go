package services

import (
	"context"
	"strings"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/requestctx"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/textutil"
)

func actorFromContext(ctx context.Context) string {
	if requester, ok := requestctx.RequesterFrom(ctx); ok {
		return requester.Key()
	}
	return ""
}

// parseSchedule validates a requested slot. The date must fall strictly after today in loc.
func parseSchedule(in ScheduleInput, now time.Time, loc *time.Location, base error) (domain.Schedule, error) {
	fields := fieldErrors{}
	date, err := domain.ParseServiceDate(in.Date, loc)
	switch {
	case err != nil:
		fields.add("date", "must be a date in YYYY-MM-DD form")
	case !domain.BookableDate(date, now, loc):
		fields.add("date", "must be after today")
	}
	slot, ok := domain.NormalizeTimeSlot(in.Time)
	if !ok {
		fields.add("time", "must be one of "+strings.Join(domain.TimeSlots(), ", "))
	}
	if err := fields.err(base); err != nil {
		return domain.Schedule{}, err
	}
	return domain.Schedule{Date: date, TimeSlot: slot}, nil
}

// normaliseCredential strips a leading '#' from the reference and lowercases the email.
func normaliseCredential(c Credential) Credential {
	ref := strings.TrimSpace(c.BookingID)
	ref = strings.TrimSpace(strings.TrimPrefix(ref, "#"))
	return Credential{BookingID: ref, Email: textutil.NormalizeEmail(c.Email)}
}
