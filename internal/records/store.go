// Package records is a schema-agnostic data-access layer over SQLite.
//
// A Store inserts, fetches, updates, deletes and aggregates rows of named
// tables using caller-supplied column sets. Tables are created lazily from
// the scripts of a schema.Source the first time they are referenced.
//
// All operations run on a single backend connection, so calls are executed
// one at a time. Each write commits before the call returns; no transaction
// spans several calls.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"health-bot/internal/records/schema"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the Record Store. It is safe for use from several goroutines;
// statements are serialized on one connection.
type Store struct {
	db      *sql.DB
	scripts schema.Source
	logger  zerolog.Logger

	mu sync.Mutex
	// ready holds the outcome of EnsureSchema per table: nil once the table
	// exists, the Init error if creating it failed.
	ready map[string]error
}

// Option configures a Store.
type Option func(*Store)

// WithScripts replaces the embedded schema scripts.
func WithScripts(src schema.Source) Option {
	return func(s *Store) { s.scripts = src }
}

// WithLogger sets the logger used by the store.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema of every table in tables. Parent directories are created.
func Open(ctx context.Context, path string, tables []string, opts ...Option) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, newError(KindInit, "open", "", fmt.Errorf("create data dir: %w", err))
		}
		dsn = path + "?_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn+pragmaSep(dsn)+"_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, newError(KindInit, "open", "", err)
	}
	// One connection: statements never interleave, and an in-memory
	// database stays the same database for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, newError(KindInit, "open", "", fmt.Errorf("ping: %w", err))
	}

	s := New(db, opts...)
	for _, t := range tables {
		if err := s.EnsureSchema(ctx, t); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s.logger.Info().Str("path", path).Strs("tables", tables).Msg("record store opened")
	return s, nil
}

func pragmaSep(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

// New wraps an already opened database handle. The caller keeps the
// responsibility of limiting it to a single connection.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		scripts: schema.Embedded(),
		logger:  log.With().Str("component", "records").Logger(),
		ready:   make(map[string]error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the backend connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates table from its script when the catalog does not list
// it. The outcome is remembered: a second call neither queries the catalog
// nor re-runs the script. A missing or broken script keeps failing; a
// cancelled context or a catalog error is returned without being recorded,
// so the next call tries again.
func (s *Store) EnsureSchema(ctx context.Context, table string) error {
	if err := checkIdent(table); err != nil {
		return newError(KindInit, "ensure_schema", table, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.ready[table]; ok {
		return err
	}
	fatal, err := s.ensureLocked(ctx, table)
	if err != nil {
		if fatal {
			s.logger.Error().Err(err).Str("table", table).Msg("schema initialization failed")
			s.ready[table] = err
		} else {
			s.logger.Warn().Err(err).Str("table", table).Msg("schema initialization interrupted")
		}
		return err
	}
	s.ready[table] = nil
	return nil
}

// ensureLocked reports fatal for failures of the script itself.
func (s *Store) ensureLocked(ctx context.Context, table string) (fatal bool, err error) {
	exists, err := s.tableExists(ctx, s.db, table)
	if err != nil {
		return false, newError(KindInit, "ensure_schema", table, err)
	}
	if exists {
		return false, nil
	}
	script, err := s.scripts.Script(table)
	if err != nil {
		return true, newError(KindInit, "ensure_schema", table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, newError(KindInit, "ensure_schema", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return ctx.Err() == nil, newError(KindInit, "ensure_schema", table, fmt.Errorf("run script: %w", err))
	}
	created, err := s.tableExists(ctx, tx, table)
	if err != nil {
		return false, newError(KindInit, "ensure_schema", table, err)
	}
	if !created {
		return true, newError(KindInit, "ensure_schema", table, errors.New("script did not create the table"))
	}
	if err := tx.Commit(); err != nil {
		return false, newError(KindInit, "ensure_schema", table, fmt.Errorf("commit: %w", err))
	}
	s.logger.Info().Str("table", table).Msg("table created")
	return false, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) tableExists(ctx context.Context, q queryer, table string) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query catalog: %w", err)
	}
	return true, nil
}

// prepare validates table and lazily initializes it when a script exists.
// Tables without a script are passed through to the backend untouched so
// that unknown names fail as ordinary read or write errors.
func (s *Store) prepare(ctx context.Context, kind Kind, op, table string) error {
	if err := checkIdent(table); err != nil {
		return newError(kind, op, table, err)
	}
	s.mu.Lock()
	err, known := s.ready[table]
	s.mu.Unlock()
	if known {
		return err
	}
	if _, serr := s.scripts.Script(table); serr != nil {
		return nil
	}
	return s.EnsureSchema(ctx, table)
}

// Insert writes rec as a single row of table and returns its rowid.
func (s *Store) Insert(ctx context.Context, table string, rec Record) (int64, error) {
	const op = "insert"
	if err := s.prepare(ctx, KindWrite, op, table); err != nil {
		return 0, err
	}
	if rec.Len() == 0 {
		return 0, newError(KindWrite, op, table, errors.New("empty record"))
	}
	cols := rec.Columns()
	if err := checkIdents(cols); err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	vals := rec.Values()
	for i, v := range vals {
		if !isScalar(v) {
			return 0, newError(KindWrite, op, table, fmt.Errorf("unsupported value type %T for column %s", v, cols[i]))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	s.logger.Debug().Str("table", table).Int64("id", id).Msg("row inserted")
	return id, nil
}

// FetchAll returns every row of table projected onto columns, in the
// backend's natural order.
func (s *Store) FetchAll(ctx context.Context, table string, columns []string) ([]Record, error) {
	const op = "fetch_all"
	if err := s.prepare(ctx, KindRead, op, table); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, newError(KindRead, op, table, errors.New("no columns requested"))
	}
	if err := checkIdents(columns); err != nil {
		return nil, newError(KindRead, op, table, err)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), table)
	out, err := s.query(ctx, query)
	if err != nil {
		return nil, newError(KindRead, op, table, err)
	}
	return out, nil
}

// FetchWhere returns the rows of table matching filter. With no columns
// every column is returned, named as the backend describes them.
func (s *Store) FetchWhere(ctx context.Context, table string, filter Filter, columns ...string) ([]Record, error) {
	const op = "fetch_where"
	if err := s.prepare(ctx, KindRead, op, table); err != nil {
		return nil, err
	}
	proj := "*"
	if len(columns) > 0 {
		if err := checkIdents(columns); err != nil {
			return nil, newError(KindRead, op, table, err)
		}
		proj = strings.Join(columns, ", ")
	}
	where, args, err := filter.compile()
	if err != nil {
		return nil, newError(KindRead, op, table, err)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", proj, table, where)
	out, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, newError(KindRead, op, table, err)
	}
	return out, nil
}

// Exists reports whether at least one row of table matches filter.
func (s *Store) Exists(ctx context.Context, table string, filter Filter) (bool, error) {
	const op = "exists"
	if err := s.prepare(ctx, KindRead, op, table); err != nil {
		return false, err
	}
	where, args, err := filter.compile()
	if err != nil {
		return false, newError(KindRead, op, table, err)
	}
	var one int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", table, where), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, newError(KindRead, op, table, err)
	}
	return true, nil
}

// Update applies changes to every row matching filter and returns the
// number of rows touched. An empty filter is refused.
func (s *Store) Update(ctx context.Context, table string, changes Record, filter Filter) (int64, error) {
	const op = "update"
	if err := s.prepare(ctx, KindWrite, op, table); err != nil {
		return 0, err
	}
	if changes.Len() == 0 {
		return 0, newError(KindWrite, op, table, errors.New("no changes"))
	}
	if len(filter) == 0 {
		return 0, newError(KindWrite, op, table, errors.New("update without filter"))
	}
	cols := changes.Columns()
	if err := checkIdents(cols); err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	vals := changes.Values()
	for i, v := range vals {
		if !isScalar(v) {
			return 0, newError(KindWrite, op, table, fmt.Errorf("unsupported value type %T for column %s", v, cols[i]))
		}
	}
	where, args, err := filter.compile()
	if err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	res, err := s.db.ExecContext(ctx, query, append(vals, args...)...)
	if err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newError(KindWrite, op, table, err)
	}
	return n, nil
}

// Delete removes the row with primary key id. A missing id is not an error.
func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	const op = "delete"
	if err := s.prepare(ctx, KindWrite, op, table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return newError(KindWrite, op, table, err)
	}
	return nil
}

// RowCount returns the number of rows in table.
func (s *Store) RowCount(ctx context.Context, table string) (int64, error) {
	const op = "row_count"
	if err := s.prepare(ctx, KindRead, op, table); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, newError(KindRead, op, table, err)
	}
	return n, nil
}

// ColumnSum returns the sum of the numeric values of column. ok is false
// when there is nothing to sum.
func (s *Store) ColumnSum(ctx context.Context, table, column string) (sum float64, ok bool, err error) {
	return s.aggregate(ctx, "column_sum", "SUM", table, column)
}

// ColumnAverage returns the mean of the numeric values of column. ok is
// false when there is nothing to average.
func (s *Store) ColumnAverage(ctx context.Context, table, column string) (avg float64, ok bool, err error) {
	return s.aggregate(ctx, "column_average", "AVG", table, column)
}

func (s *Store) aggregate(ctx context.Context, op, fn, table, column string) (float64, bool, error) {
	if err := s.prepare(ctx, KindRead, op, table); err != nil {
		return 0, false, err
	}
	if err := checkIdent(column); err != nil {
		return 0, false, newError(KindRead, op, table, err)
	}
	// Text values would be coerced to 0 by SQLite; only numbers take part.
	query := fmt.Sprintf("SELECT %s(%s) FROM %s WHERE typeof(%s) IN ('integer', 'real')", fn, column, table, column)
	var v sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, false, newError(KindRead, op, table, err)
	}
	return v.Float64, v.Valid, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		var rec Record
		for i, c := range cols {
			rec.Set(c, raw[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
