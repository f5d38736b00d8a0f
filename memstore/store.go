// Package memstore provides in-memory implementations of the document
// and counter store contracts, suitable for tests and embedded use. All
// operations are safe for concurrent use.
package memstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/attara/chronicle/core/persistence"
	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

// Store keeps whole collections in process memory. Documents handed out
// and taken in are always deep-copied, so callers can never alias stored
// state.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	logger      *zap.Logger
}

type collection struct {
	docs    []schema.Document
	indexes []persistence.IndexSpec
}

// Option configures the store.
type Option func(*Store)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New builds an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureCollection creates the collection if missing. Indexes of an
// existing collection are kept as declared first.
func (s *Store) EnsureCollection(_ context.Context, name string, indexes []persistence.IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &collection{indexes: indexes}
	s.logger.Debug("collection created",
		zap.String("collection", name),
		zap.Int("indexes", len(indexes)))
	return nil
}

// DropCollection removes the collection and its content.
func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Store) collection(name string) *collection {
	if c, ok := s.collections[name]; ok {
		return c
	}
	c := &collection{}
	s.collections[name] = c
	return c
}

// Insert stores deep copies of the documents, rejecting the whole batch
// on the first unique index violation.
func (s *Store) Insert(_ context.Context, name string, docs []schema.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(name)
	accepted := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		candidate := schema.Clone(doc)
		if s.conflicts(c, candidate, accepted) {
			return &persistence.ConflictError{Collection: name, Document: candidate}
		}
		accepted = append(accepted, candidate)
	}
	c.docs = append(c.docs, accepted...)
	return nil
}

// conflicts reports whether candidate violates any unique index against
// the stored documents or the earlier documents of its own batch.
func (s *Store) conflicts(c *collection, candidate schema.Document, batch []schema.Document) bool {
	for _, spec := range c.indexes {
		if !spec.Unique {
			continue
		}
		if spec.Where != nil && !query.Matches(candidate, spec.Where) {
			continue
		}
		for _, existing := range c.docs {
			if sameIndexKey(spec, candidate, existing) {
				return true
			}
		}
		for _, existing := range batch {
			if sameIndexKey(spec, candidate, existing) {
				return true
			}
		}
	}
	return false
}

func sameIndexKey(spec persistence.IndexSpec, candidate, existing schema.Document) bool {
	if spec.Where != nil && !query.Matches(existing, spec.Where) {
		return false
	}
	for _, field := range spec.Fields {
		value, ok := query.Lookup(candidate, field)
		if !ok {
			return false
		}
		if !query.Matches(existing, query.Cond(field, query.OpEq, value)) {
			return false
		}
	}
	return true
}

// Find returns deep copies of the matching documents, shaped by the
// options.
func (s *Store) Find(_ context.Context, name string, filter query.Filter, opts persistence.FindOptions) ([]schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	var matched []schema.Document
	for _, doc := range c.docs {
		if query.Matches(doc, filter) {
			matched = append(matched, schema.Clone(doc))
		}
	}
	query.SortDocuments(matched, opts.Sort)
	return query.Page(matched, opts.Limit, opts.Offset), nil
}

// Update sets the given top-level fields on every matching document,
// rejecting the whole call when an updated document would violate a
// unique index.
func (s *Store) Update(_ context.Context, name string, filter query.Filter, changes schema.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	updated := make(map[int]schema.Document)
	for i, doc := range c.docs {
		if !query.Matches(doc, filter) {
			continue
		}
		next := schema.Clone(doc)
		for key, value := range changes {
			next[key] = value
		}
		updated[i] = next
	}
	for i, next := range updated {
		if s.updateConflicts(c, next, updated, i) {
			return 0, &persistence.ConflictError{Collection: name, Document: next}
		}
	}
	for i, next := range updated {
		c.docs[i] = next
	}
	return int64(len(updated)), nil
}

// updateConflicts checks one updated document against every other row,
// seeing the call's own pending updates and skipping the row itself.
func (s *Store) updateConflicts(c *collection, candidate schema.Document, pending map[int]schema.Document, self int) bool {
	for _, spec := range c.indexes {
		if !spec.Unique {
			continue
		}
		if spec.Where != nil && !query.Matches(candidate, spec.Where) {
			continue
		}
		for j := range c.docs {
			if j == self {
				continue
			}
			other := c.docs[j]
			if next, ok := pending[j]; ok {
				other = next
			}
			if sameIndexKey(spec, candidate, other) {
				return true
			}
		}
	}
	return false
}

// Delete removes every matching document and returns how many.
func (s *Store) Delete(_ context.Context, name string, filter query.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	kept := c.docs[:0]
	var count int64
	for _, doc := range c.docs {
		if query.Matches(doc, filter) {
			count++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return count, nil
}

var _ persistence.DocumentStore = (*Store)(nil)
