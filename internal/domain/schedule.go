package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// DateLayout is the wire format for service dates.
const DateLayout = "2006-01-02"

var timeSlots = []string{"09:00 AM", "10:00 AM", "11:30 AM", "01:00 PM", "02:30 PM", "04:00 PM"}

// ErrInvalidServiceDate indicates a service date that cannot be parsed.
var ErrInvalidServiceDate = errors.New("domain: invalid service date")

// Schedule is the calendar day and arrival window of a cleaning. Date is a civil date stored
// as midnight UTC.
type Schedule struct {
	Date     time.Time
	TimeSlot string
}

// IsZero reports whether no schedule has been chosen.
func (s Schedule) IsZero() bool {
	return s.Date.IsZero() && s.TimeSlot == ""
}

// DateString renders the civil date in DateLayout.
func (s Schedule) DateString() string {
	if s.Date.IsZero() {
		return ""
	}
	return s.Date.Format(DateLayout)
}

// TimeSlots returns the bookable arrival windows in display order.
func TimeSlots() []string {
	return slices.Clone(timeSlots)
}

// NormalizeTimeSlot canonicalises a slot label and reports whether it is bookable.
func NormalizeTimeSlot(value string) (string, bool) {
	slot := strings.ToUpper(strings.Join(strings.Fields(value), " "))
	if len(slot) == 7 && slot[1] == ':' {
		slot = "0" + slot
	}
	if slices.Contains(timeSlots, slot) {
		return slot, true
	}
	return "", false
}

// ParseServiceDate accepts a civil date (2006-01-02) or an RFC 3339 timestamp. Timestamps are
// interpreted in loc before the calendar day is taken.
func ParseServiceDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidServiceDate
	}
	if loc == nil {
		loc = time.UTC
	}
	if d, err := time.Parse(DateLayout, raw); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidServiceDate
	}
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// BookableDate reports whether date falls strictly after today in loc.
func BookableDate(date, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return date.After(today)
}
