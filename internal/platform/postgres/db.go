package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	// registers the "postgres" driver
	_ "github.com/lib/pq"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/config"
)

const (
	driverName         = "postgres"
	defaultPingTimeout = 5 * time.Second
)

// Open connects to Postgres, applies pool limits and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks connectivity with a bounded timeout.
func Ping(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return errors.New("postgres: db is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return WrapError("ping", err)
	}
	return nil
}

// TxFunc runs inside a transaction.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// InTx runs fn in a read-committed transaction, committing when fn returns nil. Errors
// returned by fn are passed through unchanged so callers can match their own sentinels.
func InTx(ctx context.Context, db *sqlx.DB, fn TxFunc) (err error) {
	if db == nil {
		return WrapError("transaction", errors.New("postgres: db is nil"))
	}
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return WrapError("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return WrapError("commit", err)
	}
	return nil
}
