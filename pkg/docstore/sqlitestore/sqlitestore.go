// ABOUTME: SQLite-backed document store (modernc driver, sqlx, squirrel)
// ABOUTME: Documents are JSON text; filters and ordering use json_extract

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nainya/contentver/pkg/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_scope
	ON documents (collection, json_extract(data, '$.pageType'), json_extract(data, '$.field'));
CREATE TABLE IF NOT EXISTS sequences (
	scope TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements docstore.Store and docstore.Sequencer on SQLite
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) a database file and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: mkdir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// One writer; readers share it too, which keeps SQLITE_BUSY out of the picture
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection; the caller applies the schema
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates tables and indexes if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify("ensure schema", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

// Insert stores a new record
func (s *Store) Insert(ctx context.Context, collection string, rec docstore.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("insert: encode %s: %w", rec.ID, err)
	}

	query, args, err := sq.Insert("documents").
		Columns("collection", "id", "data").
		Values(collection, rec.ID, string(data)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert sql: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify("insert", err)
	}
	return nil
}

type documentRow struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

// Query returns matching records
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	b := sq.Select("id", "data").From("documents").Where(sq.Eq{"collection": q.Collection})

	for _, f := range q.Filters {
		pred, arg, err := filterPredicate(f)
		if err != nil {
			return nil, err
		}
		b = b.Where(pred, arg)
	}
	for _, o := range q.OrderBy {
		if !fieldName.MatchString(o.Field) {
			return nil, fmt.Errorf("query: invalid order field %q", o.Field)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		b = b.OrderBy(fmt.Sprintf("json_extract(data, '$.%s') %s", o.Field, dir))
	}
	b = b.OrderBy("id")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query sql: %w", err)
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("query", err)
	}

	records := make([]docstore.Record, 0, len(rows))
	for _, row := range rows {
		data, err := decode(row.Data)
		if err != nil {
			return nil, fmt.Errorf("query: decode %s: %w", row.ID, err)
		}
		records = append(records, docstore.Record{ID: row.ID, Data: data})
	}
	return records, nil
}

// Get returns a record by id
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Record, error) {
	query, args, err := sq.Select("id", "data").
		From("documents").
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get sql: %w", err)
	}

	var row documentRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.Wrap("get", docstore.ErrNotFound, fmt.Errorf("%s/%s", collection, id))
		}
		return nil, classify("get", err)
	}

	data, err := decode(row.Data)
	if err != nil {
		return nil, fmt.Errorf("get: decode %s: %w", id, err)
	}
	return &docstore.Record{ID: row.ID, Data: data}, nil
}

// Update merges fields with json_set, guarded by the preconditions
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...docstore.Filter) error {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !fieldName.MatchString(k) {
			return fmt.Errorf("update: invalid field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var set strings.Builder
	set.WriteString("json_set(data")
	setArgs := make([]any, 0, len(keys))
	for _, k := range keys {
		val, err := json.Marshal(fields[k])
		if err != nil {
			return fmt.Errorf("update: encode %s: %w", k, err)
		}
		fmt.Fprintf(&set, ", '$.%s', json(?)", k)
		setArgs = append(setArgs, string(val))
	}
	set.WriteString(")")

	b := sq.Update("documents").
		Set("data", sq.Expr(set.String(), setArgs...)).
		Where(sq.Eq{"collection": collection, "id": id})
	for _, f := range preconditions {
		pred, arg, err := filterPredicate(f)
		if err != nil {
			return err
		}
		b = b.Where(pred, arg)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build update sql: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("update", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	return docstore.Wrap("update", docstore.ErrConflict, fmt.Errorf("precondition failed for %s", id))
}

// Delete removes a record; missing records are ignored
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	query, args, err := sq.Delete("documents").
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete sql: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify("delete", err)
	}
	return nil
}

// NextSequence atomically increments the scope counter
func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	const upsert = `INSERT INTO sequences (scope, value) VALUES (?, 1)
		ON CONFLICT (scope) DO UPDATE SET value = value + 1
		RETURNING value`

	var next int64
	if err := s.db.QueryRowxContext(ctx, upsert, scope).Scan(&next); err != nil {
		return 0, classify("next sequence", err)
	}
	return next, nil
}

func filterPredicate(f docstore.Filter) (string, any, error) {
	if !fieldName.MatchString(f.Field) {
		return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
	}
	val, err := json.Marshal(f.Value)
	if err != nil {
		return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
	}
	return fmt.Sprintf("json_extract(data, '$.%s') = json_extract(?, '$')", f.Field), string(val), nil
}

func decode(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL, sqlite3.SQLITE_PROTOCOL:
			return docstore.Wrap(op, docstore.ErrUnavailable, err)
		case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
			return docstore.Wrap(op, docstore.ErrPermissionDenied, err)
		case sqlite3.SQLITE_CONSTRAINT:
			return docstore.Wrap(op, docstore.ErrConflict, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return docstore.Wrap(op, docstore.ErrUnavailable, err)
	}
	return docstore.Classify(op, err)
}
