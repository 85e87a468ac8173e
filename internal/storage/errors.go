package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
)

// errTransient marks failures that a fresh transaction attempt may not hit.
var errTransient = errors.New("transient")

// translateError maps driver errors onto the core taxonomy. Raw driver errors
// never leave this package unwrapped.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return transient(op, err)
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%s: %w: %v", op, core.ErrConstraintViolation, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505", pgErr.Code == "23503", pgErr.Code == "23502", pgErr.Code == "23514":
			return fmt.Errorf("%s: %w: %s", op, core.ErrConstraintViolation, pgErr.Message)
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
			return transient(op, err)
		case pgErr.Code == "57P01", len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%s: %w: %s", op, core.ErrStoreUnavailable, pgErr.Message)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w: %v", op, core.ErrStoreUnavailable, errTransient, err)
}

// isRetryable reports whether WithTx should start the transaction over.
func isRetryable(err error) bool {
	return errors.Is(err, errTransient) || errors.Is(err, core.ErrConflict)
}
