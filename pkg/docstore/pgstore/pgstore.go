// ABOUTME: PostgreSQL-backed document store (pgx/v5, squirrel)
// ABOUTME: Documents live in a JSONB column; filters use containment (@>)

package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nainya/contentver/pkg/docstore"
)

const (
	documentsTable = "content_documents"
	sequencesTable = "content_sequences"
)

// DB is the subset of *pgxpool.Pool the store uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PoolConfig tunes the connection pool
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements docstore.Store and docstore.Sequencer on PostgreSQL
type Store struct {
	pool    *pgxpool.Pool
	db      DB
	builder squirrel.StatementBuilderType
}

// Connect opens a pool for dsn
func Connect(ctx context.Context, dsn string, pc PoolConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify("connect", err)
	}
	return New(pool), nil
}

// New wraps any executor that satisfies DB
func New(db DB) *Store {
	s := &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := db.(*pgxpool.Pool); ok {
		s.pool = pool
	}
	return s
}

// Close releases the pool, if the store owns one
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.Ping(ctx))
}

// Insert stores a new record
func (s *Store) Insert(ctx context.Context, collection string, rec docstore.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("insert: encode %s: %w", rec.ID, err)
	}

	sqlStmt, args, err := s.builder.Insert(documentsTable).
		Columns("collection", "id", "data").
		Values(collection, rec.ID, squirrel.Expr("?::jsonb", string(data))).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert sql: %w", err)
	}

	if _, err := s.db.Exec(ctx, sqlStmt, args...); err != nil {
		return classify("insert", err)
	}
	return nil
}

// Query returns matching records
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	b := s.builder.Select("id", "data").
		From(documentsTable).
		Where(squirrel.Eq{"collection": q.Collection})

	if len(q.Filters) > 0 {
		filter, err := docstore.FilterJSON(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("query: encode filters: %w", err)
		}
		b = b.Where("data @> ?::jsonb", string(filter))
	}
	for _, o := range q.OrderBy {
		if o.Desc {
			b = b.OrderByClause("data -> ? DESC", o.Field)
		} else {
			b = b.OrderByClause("data -> ? ASC", o.Field)
		}
	}
	b = b.OrderBy("id")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}

	sqlStmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query sql: %w", err)
	}

	rows, err := s.db.Query(ctx, sqlStmt, args...)
	if err != nil {
		return nil, classify("query", err)
	}
	defer rows.Close()

	var records []docstore.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify("query", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", err)
	}
	if records == nil {
		records = []docstore.Record{}
	}
	return records, nil
}

// Get returns a record by id
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Record, error) {
	sqlStmt, args, err := s.builder.Select("id", "data").
		From(documentsTable).
		Where(squirrel.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get sql: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRow(ctx, sqlStmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docstore.Wrap("get", docstore.ErrNotFound, fmt.Errorf("%s/%s", collection, id))
		}
		return nil, classify("get", err)
	}
	return &rec, nil
}

// Update merges fields into the document when the preconditions hold
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, preconditions ...docstore.Filter) error {
	if len(fields) == 0 {
		return nil
	}

	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("update: encode %s: %w", id, err)
	}

	b := s.builder.Update(documentsTable).
		Set("data", squirrel.Expr("data || ?::jsonb", string(patch))).
		Where(squirrel.Eq{"collection": collection, "id": id})
	if len(preconditions) > 0 {
		cond, err := docstore.FilterJSON(preconditions)
		if err != nil {
			return fmt.Errorf("update: encode preconditions: %w", err)
		}
		b = b.Where("data @> ?::jsonb", string(cond))
	}

	sqlStmt, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build update sql: %w", err)
	}

	tag, err := s.db.Exec(ctx, sqlStmt, args...)
	if err != nil {
		return classify("update", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	return docstore.Wrap("update", docstore.ErrConflict, fmt.Errorf("precondition failed for %s", id))
}

// Delete removes a record; missing records are ignored
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	sqlStmt, args, err := s.builder.Delete(documentsTable).
		Where(squirrel.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete sql: %w", err)
	}

	if _, err := s.db.Exec(ctx, sqlStmt, args...); err != nil {
		return classify("delete", err)
	}
	return nil
}

// NextSequence atomically increments the scope counter
func (s *Store) NextSequence(ctx context.Context, scope string) (int64, error) {
	sqlStmt, args, err := s.builder.Insert(sequencesTable).
		Columns("scope", "value").
		Values(scope, 1).
		Suffix("ON CONFLICT (scope) DO UPDATE SET value = " + sequencesTable + ".value + 1 RETURNING value").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sequence sql: %w", err)
	}

	var next int64
	if err := s.db.QueryRow(ctx, sqlStmt, args...).Scan(&next); err != nil {
		return 0, classify("next sequence", err)
	}
	return next, nil
}

func scanRecord(row pgx.Row) (docstore.Record, error) {
	var (
		id  string
		raw []byte
	)
	if err := row.Scan(&id, &raw); err != nil {
		return docstore.Record{}, err
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Record{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return docstore.Record{ID: id, Data: data}, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501", strings.HasPrefix(pgErr.Code, "28"):
			return docstore.Wrap(op, docstore.ErrPermissionDenied, err)
		case pgErr.Code == "23505", pgErr.Code == "40001", pgErr.Code == "40P01":
			return docstore.Wrap(op, docstore.ErrConflict, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"), pgErr.Code == "53300":
			return docstore.Wrap(op, docstore.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return docstore.Wrap(op, docstore.ErrUnavailable, err)
	}
	return docstore.Classify(op, err)
}
