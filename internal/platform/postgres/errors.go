package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error classifies a SQL failure for the service layer. It satisfies
// repositories.RepositoryError.
type Error struct {
	Op   string
	Err  error
	kind errorKind
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports a missing row.
func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict reports a constraint violation or lock contention.
func (e *Error) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports a connectivity or capacity failure.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NotFoundError builds a not-found classification.
func NotFoundError(op string) error {
	return &Error{Op: op, Err: sql.ErrNoRows, kind: kindNotFound}
}

// ConflictError builds a conflict classification for state checks made inside a transaction.
func ConflictError(op, message string) error {
	return &Error{Op: op, Err: errors.New(message), kind: kindConflict}
}

// WrapError annotates err with repository semantics. Context errors pass through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Op: op, Err: err, kind: classify(err)}
}

func classify(err error) errorKind {
	if errors.Is(err, sql.ErrNoRows) {
		return kindNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return kindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return kindUnavailable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			// connection exception, insufficient resources, operator intervention
			return kindUnavailable
		case "23", "40":
			// integrity constraint violation, transaction rollback
			return kindConflict
		}
		if pqErr.Code == "55P03" {
			return kindConflict
		}
	}
	return kindUnknown
}
