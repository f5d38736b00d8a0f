// Package sqlite implements the document and counter store contracts on
// top of a SQLite database. Documents are stored as JSON in a single
// column per row; filters, sorts and indexes compile to json_extract
// expressions, and unique indexes may be partial.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/attara/chronicle/core/persistence"
	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

// Store is a SQLite-backed document store. A single *sql.DB may back any
// number of collections; each collection maps to one table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Option configures the store.
type Option func(*Store)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore builds a store over an open database handle. The handle stays
// owned by the caller.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureCollection creates the collection table and its indexes if
// missing.
func (s *Store) EnsureCollection(ctx context.Context, name string, indexes []persistence.IndexSpec) error {
	create := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, doc TEXT NOT NULL)",
		tableName(name))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table for collection %q: %w", name, err)
	}
	for _, spec := range indexes {
		indexName := spec.Name
		if indexName == "" {
			indexName = "ix_" + name
		}
		stmt, err := indexSQL(name, indexName, spec.Fields, spec.Unique, spec.Where)
		if err != nil {
			return fmt.Errorf("failed to build index %q: %w", indexName, err)
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %q: %w", indexName, err)
		}
	}
	s.logger.Debug("collection ensured",
		zap.String("collection", name),
		zap.Int("indexes", len(indexes)))
	return nil
}

// DropCollection removes the collection table.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName(name)))
	return err
}

// Insert stores the documents in one transaction, all or nothing. Unique
// index violations are reported as conflicts.
func (s *Store) Insert(ctx context.Context, collection string, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	stmt, params, err := insertSQL(collection, docs)
	if err != nil {
		return err
	}
	s.logger.Debug("executing insert", zap.String("sql", stmt))
	if _, err := s.db.ExecContext(ctx, stmt, params...); err != nil {
		if isUniqueViolation(err) {
			return &persistence.ConflictError{Collection: collection}
		}
		return fmt.Errorf("failed to insert into collection %q: %w", collection, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Find returns the matching documents, shaped by the options.
func (s *Store) Find(ctx context.Context, collection string, filter query.Filter, opts persistence.FindOptions) ([]schema.Document, error) {
	stmt, params, err := selectSQL(collection, filter, findShape{
		sorts:  opts.Sort,
		limit:  opts.Limit,
		offset: opts.Offset,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("executing select", zap.String("sql", stmt), zap.Any("params", params))
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %q: %w", collection, err)
	}
	defer rows.Close()

	var results []schema.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc := schema.Document{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

// Update sets the given top-level fields on every matching document and
// returns how many rows changed.
func (s *Store) Update(ctx context.Context, collection string, filter query.Filter, changes schema.Document) (int64, error) {
	stmt, params, err := updateSQL(collection, filter, changes)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("executing update", zap.String("sql", stmt))
	result, err := s.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &persistence.ConflictError{Collection: collection}
		}
		return 0, fmt.Errorf("failed to update collection %q: %w", collection, err)
	}
	return result.RowsAffected()
}

// Delete removes every matching document and returns how many.
func (s *Store) Delete(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	stmt, params, err := deleteSQL(collection, filter)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("executing delete", zap.String("sql", stmt))
	result, err := s.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from collection %q: %w", collection, err)
	}
	return result.RowsAffected()
}

var _ persistence.DocumentStore = (*Store)(nil)
