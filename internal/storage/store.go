// Package storage is the durable ledger store. Every read and write goes
// through an explicit Tx handle obtained from Store.WithTx; there is no ambient
// session.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/sethvargo/go-retry"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Dialect selects the SQL flavour spoken by the store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) IsValid() bool {
	return d == DialectSQLite || d == DialectPostgres
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// dataSource decorates a sqlite path with the pragmas the engine relies on:
// immediate write locks serialize concurrent mutations, busy_timeout makes the
// loser wait instead of failing.
func (d Dialect) dataSource(dsn string) string {
	if d == DialectPostgres {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(10000)&_pragma=foreign_keys(on)&_pragma=journal_mode(wal)&_txlock=immediate"
}

// Options configures Open.
type Options struct {
	Dialect Dialect
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN        string
	MaxRetries uint64
	MaxConns   int
}

type Store struct {
	db         *sql.DB
	dialect    Dialect
	maxRetries uint64
}

// Open connects, pings and migrates the store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if !opts.Dialect.IsValid() {
		return nil, fmt.Errorf("%w: unknown dialect %q", core.ErrInvalidInput, opts.Dialect)
	}
	if opts.Dialect == DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(opts.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(opts.Dialect.driverName(), opts.Dialect.dataSource(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Dialect, err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, translateError("ping database", err)
	}

	if err := RunMigrations(opts.Dialect, opts.DSN); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	retries := opts.MaxRetries
	if retries == 0 {
		retries = 5
	}

	slog.InfoContext(ctx, "Ledger store opened", log.FieldComponent, log.ComponentStorage, "dialect", string(opts.Dialect))

	return &Store{db: db, dialect: opts.Dialect, maxRetries: retries}, nil
}

// OpenSQLite opens a sqlite-backed store at path with default options.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, Options{Dialect: DialectSQLite, DSN: path})
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return translateError("ping database", s.db.PingContext(ctx))
}

// WithTx runs fn inside one database transaction. The transaction commits when
// fn returns nil and rolls back otherwise. Transient failures (lock contention,
// serialization failures, lookup races) restart fn from scratch; fn must not
// have side effects outside tx.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	b := retry.NewExponential(5 * time.Millisecond)
	b = retry.WithCappedDuration(250*time.Millisecond, b)
	b = retry.WithMaxRetries(s.maxRetries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := s.runTx(ctx, fn)
		if err != nil && isRetryable(err) {
			slog.DebugContext(ctx, "Retrying store transaction",
				log.FieldComponent, log.ComponentStorage,
				"attempt", attempt,
				log.FieldError, err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && errors.Is(err, core.ErrConflict) {
		// Conflicts never reach callers: an unresolved race is reported as retryable unavailability.
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError("begin transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return translateError("commit transaction", err)
	}
	return nil
}

// Tx is the explicit transactional handle handed to the engine.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// rebind rewrites '?' placeholders into the dialect's native form.
func (t *Tx) rebind(query string) string {
	if t.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-lock clause for the dialect. Sqlite transactions
// already hold the database write lock, so no clause is needed there.
func (t *Tx) forUpdate(table string) string {
	if t.dialect != DialectPostgres {
		return ""
	}
	return " FOR UPDATE OF " + table
}

func (t *Tx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, translateError(op, err)
	}
	return res, nil
}

// execOne runs an update that must touch exactly one row.
func (t *Tx) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := t.exec(ctx, op, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, translateError(op, err)
	}
	return rows, nil
}

// inserted reports whether an INSERT … ON CONFLICT DO NOTHING wrote a row.
func inserted(op string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateError(op, err)
	}
	return n > 0, nil
}

// dateColumn scans DATE columns from either driver: pgx yields time.Time,
// sqlite yields the stored text.
type dateColumn struct {
	d core.Date
}

func (c *dateColumn) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		c.d = core.NewDate(v.Year(), int(v.Month()), v.Day())
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("unsupported date column type %T", src)
	}
}

func (c *dateColumn) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return err
	}
	c.d = d
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
