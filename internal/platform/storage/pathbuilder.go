package storage

import (
	"fmt"
	"strings"
	"time"
)

// ReportKind names a family of exported reports.
type ReportKind string

const (
	// ReportReconciliations lists payments whose booking update failed.
	ReportReconciliations ReportKind = "reconciliations"
)

// ReportPath returns the object key for a report generated at the given instant:
// reports/<kind>/<yyyy>/<mm>/<dd>/<kind>-<yyyymmddThhmmssZ>.<ext>.
func ReportPath(kind ReportKind, at time.Time, ext string) (string, error) {
	name, err := validateSegment("kind", string(kind))
	if err != nil {
		return "", err
	}
	ext, err = validateSegment("ext", strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if err != nil {
		return "", err
	}
	if at.IsZero() {
		return "", fmt.Errorf("storage: report timestamp is required")
	}
	at = at.UTC()
	return fmt.Sprintf("reports/%s/%s/%s-%s.%s", name, at.Format("2006/01/02"), name, at.Format("20060102T150405Z"), ext), nil
}

func validateSegment(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", field)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", field)
	}
	return value, nil
}
