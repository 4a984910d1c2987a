package library

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// dialect builds the read-side SQL. Prepared mode keeps values out of the
// statement text.
var dialect = goqu.Dialect("sqlite3")

// Clock supplies the current time to the ledger.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Database or LibraryManager.
type Option func(*options)

type options struct {
	clock    Clock
	logger   *slog.Logger
	policy   FinePolicy
	loanDays int
}

func defaultOptions() options {
	return options{
		clock:    realClock{},
		logger:   slog.Default(),
		policy:   DefaultFinePolicy,
		loanDays: DefaultLoanDays,
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the structured logger used by the manager.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFinePolicy sets the overdue fine policy applied on return.
func WithFinePolicy(p FinePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithDefaultLoanDays sets the loan period offered to callers that do not
// choose one.
func WithDefaultLoanDays(days int) Option {
	return func(o *options) {
		if days > 0 {
			o.loanDays = days
		}
	}
}

// Database owns the SQLite connection pool and implements the ledger
// operations. Every mutating operation runs in one immediate transaction.
type Database struct {
	db    *sqlx.DB
	clock Clock
}

// NewDatabase opens (or creates) the SQLite database at dbPath and applies
// schema migrations.
func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// _txlock=immediate makes BEGIN take the write lock, so a read followed
	// by a write inside one transaction cannot interleave with another writer.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Database{db: db, clock: o.clock}, nil
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

func (d *Database) now() time.Time { return d.clock.Now().UTC() }

// runInTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on every other exit path, panics included. Errors come back classified.
func (d *Database) runInTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op, err)
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

	if err = fn(tx); err != nil {
		return classify(op, err)
	}
	if err = tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

// selectAll runs a goqu dataset and scans every row into dest.
func (d *Database) selectAll(ctx context.Context, op string, dest any, ds *goqu.SelectDataset) error {
	return selectInto(ctx, d.db, op, dest, ds)
}

// selectInto is selectAll against q, which may be the pool or a transaction.
func selectInto(ctx context.Context, q sqlx.QueryerContext, op string, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return classify(op, fmt.Errorf("build query: %w", err))
	}
	if err := sqlx.SelectContext(ctx, q, dest, query, args...); err != nil {
		return classify(op, err)
	}
	return nil
}

// newRef returns a ULID used as the external reference of a loan.
func newRef(t time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
