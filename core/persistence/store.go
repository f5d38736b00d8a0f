// Package persistence implements the CRUD pipeline: every operation runs
// validate, deserialize, store call, serialize against a record schema,
// with counters, auditing and event emission layered around the store.
package persistence

import (
	"context"

	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

const (
	countersCollection    = "counters"
	auditCollectionPrefix = "audit"
)

// IndexSpec describes one index a collection needs. A non-nil Where makes
// a unique index partial: uniqueness is only enforced among documents
// matching the predicate.
type IndexSpec struct {
	Name   string
	Fields []string
	Unique bool
	Where  query.Filter
}

// FindOptions shape a store read.
type FindOptions struct {
	Sort   []query.Sort
	Limit  int
	Offset int
}

// DocumentStore is the backend contract. Implementations persist
// store-native documents and enforce the declared indexes, wrapping
// ErrConflict on unique violations. Filters are evaluated with the
// semantics of query.Matches.
type DocumentStore interface {
	// EnsureCollection creates the collection and its indexes if missing.
	EnsureCollection(ctx context.Context, name string, indexes []IndexSpec) error
	// DropCollection removes the collection and its content.
	DropCollection(ctx context.Context, name string) error
	// Insert stores documents, all or nothing within the call.
	Insert(ctx context.Context, collection string, docs []schema.Document) error
	// Find returns copies of the matching documents.
	Find(ctx context.Context, collection string, filter query.Filter, opts FindOptions) ([]schema.Document, error)
	// Update sets the given top-level fields on every matching document
	// and returns how many were touched.
	Update(ctx context.Context, collection string, filter query.Filter, changes schema.Document) (int64, error)
	// Delete removes every matching document and returns how many.
	Delete(ctx context.Context, collection string, filter query.Filter) (int64, error)
}

// CounterStore hands out monotonically increasing values. Counters are
// keyed by category and name; collections default the category to their
// own name so independent collections never share sequences unless they
// ask to.
type CounterStore interface {
	// Increment advances the counter by the given step and returns the
	// new value. The first increment of a fresh counter returns step.
	Increment(ctx context.Context, category, name string, step int64) (int64, error)
	// Current returns the counter value without advancing it. A fresh
	// counter reads zero.
	Current(ctx context.Context, category, name string) (int64, error)
	// Reset restarts the counter from zero.
	Reset(ctx context.Context, category, name string) error
}
