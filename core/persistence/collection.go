package persistence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

// Collection runs the CRUD pipeline for one record schema over a document
// store. Every operation follows the same shape: validate the client
// payload, deserialize it to store-native form, call the store, serialize
// the result back.
type Collection struct {
	name     string
	schema   *schema.Schema
	store    DocumentStore
	counters CounterStore
	auditor  Auditor
	logger   *zap.Logger
	emitter  *Emitter
}

// Option configures a collection at construction time.
type Option func(*Collection)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collection) { c.logger = logger }
}

// WithCounterStore provides the counter backend auto-increment fields
// draw from. Mandatory when the schema declares any.
func WithCounterStore(counters CounterStore) Option {
	return func(c *Collection) { c.counters = counters }
}

// WithAuditor records every successful mutation.
func WithAuditor(auditor Auditor) Option {
	return func(c *Collection) { c.auditor = auditor }
}

// NewCollection binds a schema to a store, creating the collection and
// its indexes if needed. One composite unique index covers all
// unique-indexed fields, one non-unique index covers the rest.
func NewCollection(ctx context.Context, s *schema.Schema, store DocumentStore, opts ...Option) (*Collection, error) {
	if ReservedCollectionName(s.Name()) {
		return nil, fmt.Errorf("collection name %q is reserved", s.Name())
	}
	c := &Collection{
		name:   s.Name(),
		schema: s,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(s.AutoIncrementFields()) > 0 && c.counters == nil {
		return nil, fmt.Errorf("collection %q declares auto increment fields but no counter store", s.Name())
	}

	if err := store.EnsureCollection(ctx, c.name, c.indexes()); err != nil {
		return nil, fmt.Errorf("could not ensure collection %q: %w", c.name, err)
	}

	emitter, err := NewEmitter(c.name)
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	c.emitter = emitter

	c.logger.Debug("collection ready",
		zap.String("collection", c.name),
		zap.Int("fields", len(s.Fields())))
	return c, nil
}

func (c *Collection) indexes() []IndexSpec {
	var specs []IndexSpec
	if unique := c.schema.UniqueIndexFields(nil); len(unique) > 0 {
		specs = append(specs, IndexSpec{
			Name:   "uq_" + c.name,
			Fields: unique,
			Unique: true,
		})
	}
	if other := c.schema.OtherIndexFields(nil); len(other) > 0 {
		specs = append(specs, IndexSpec{
			Name:   "ix_" + c.name,
			Fields: other,
		})
	}
	return specs
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns the record schema the collection enforces.
func (c *Collection) Schema() *schema.Schema { return c.schema }

// Store exposes the underlying document store.
func (c *Collection) Store() DocumentStore { return c.store }

// Example returns a sample client-facing document.
func (c *Collection) Example() schema.Document { return c.schema.Example() }

// Describe returns the schema layout.
func (c *Collection) Describe() []schema.FieldDescription { return c.schema.Describe() }

// Subscribe registers a callback for one event type and returns an ID.
func (c *Collection) Subscribe(event EventType, callback CallbackFunction) string {
	return c.emitter.Subscribe(event, callback)
}

// Unsubscribe removes a subscription by its ID.
func (c *Collection) Unsubscribe(id string) {
	c.emitter.Unsubscribe(id)
}

// filterTree validates and deserializes client filters into a store
// filter. The caller's map is never mutated.
func (c *Collection) filterTree(filters schema.Document) (query.Filter, error) {
	working := schema.Clone(filters)
	if working == nil {
		working = schema.Document{}
	}
	if errs := c.schema.ValidateQuery(working); !errs.Empty() {
		return nil, &ValidationError{Errors: errs}
	}
	c.schema.DeserializeQuery(working)
	return query.FromDocument(working), nil
}

// Get returns the single document matching the filters. Matching nothing
// is a NotFoundError; matching several is a validation error because the
// filters are ambiguous.
func (c *Collection) Get(ctx context.Context, filters schema.Document) (schema.Document, error) {
	tree, err := c.filterTree(filters)
	if err != nil {
		return nil, err
	}
	return WithEvents(c.emitter, "get",
		DocumentReadStart, DocumentReadSuccess, DocumentReadFailed,
		filters,
		func() (schema.Document, error) {
			docs, err := c.store.Find(ctx, c.name, tree, FindOptions{Limit: 2})
			if err != nil {
				return nil, err
			}
			switch len(docs) {
			case 0:
				return nil, &NotFoundError{Collection: c.name, Filters: filters}
			case 1:
				c.schema.Serialize(docs[0])
				return docs[0], nil
			}
			return nil, &ValidationError{Errors: schema.FieldErrors{
				"": {"More than one result: Consider another filtering."},
			}}
		})
}

// GetLast behaves like Get. The unversioned pipeline has no history to
// fall back to; the method exists so versioned and plain collections
// stay interchangeable for callers.
func (c *Collection) GetLast(ctx context.Context, filters schema.Document) (schema.Document, error) {
	return c.Get(ctx, filters)
}

// FindOption shapes a GetAll read.
type FindOption func(*FindOptions)

// WithSort orders results by a dotted field path.
func WithSort(field string, desc bool) FindOption {
	return func(o *FindOptions) {
		o.Sort = append(o.Sort, query.Sort{Field: field, Desc: desc})
	}
}

// WithLimit caps the number of returned documents. Zero means no cap.
func WithLimit(limit int) FindOption {
	return func(o *FindOptions) { o.Limit = limit }
}

// WithOffset skips the first documents of the result set.
func WithOffset(offset int) FindOption {
	return func(o *FindOptions) { o.Offset = offset }
}

// GetAll returns every document matching the filters. Nil filters match
// everything.
func (c *Collection) GetAll(ctx context.Context, filters schema.Document, opts ...FindOption) ([]schema.Document, error) {
	tree, err := c.filterTree(filters)
	if err != nil {
		return nil, err
	}
	options := FindOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return WithEvents(c.emitter, "get_all",
		DocumentReadStart, DocumentReadSuccess, DocumentReadFailed,
		filters,
		func() ([]schema.Document, error) {
			docs, err := c.store.Find(ctx, c.name, tree, options)
			if err != nil {
				return nil, err
			}
			return c.schema.SerializeAll(docs), nil
		})
}

// Add validates and stores one document, returning it as stored with
// defaults and counter-assigned keys filled in.
func (c *Collection) Add(ctx context.Context, doc schema.Document) (schema.Document, error) {
	docs, err := c.AddAll(ctx, []schema.Document{doc})
	if err != nil {
		return nil, FirstDocumentError(err)
	}
	return docs[0], nil
}

// AddAll validates and stores a batch. Validation failures are keyed by
// document index and nothing of the batch is stored. Counter values
// consumed by a batch that later fails on a conflict are not given back:
// sequences may hold gaps but never repeat.
func (c *Collection) AddAll(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	if len(docs) == 0 {
		return nil, &ValidationError{Errors: schema.FieldErrors{"": {"No data provided."}}}
	}
	batchErrs := map[int]schema.FieldErrors{}
	working := make([]schema.Document, len(docs))
	for i, doc := range docs {
		if errs := c.schema.ValidateInsert(doc); !errs.Empty() {
			batchErrs[i] = errs
			continue
		}
		working[i] = schema.Clone(doc)
	}
	if len(batchErrs) > 0 {
		return nil, &BatchValidationError{Errors: batchErrs}
	}

	return WithEvents(c.emitter, "insert",
		DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed,
		docs,
		func() ([]schema.Document, error) {
			for _, doc := range working {
				c.schema.DeserializeInsert(doc)
				if err := c.assignCounters(ctx, doc); err != nil {
					return nil, err
				}
			}
			if err := c.store.Insert(ctx, c.name, working); err != nil {
				return nil, ConflictAsValidation(err)
			}
			if err := c.audit(ctx, AuditInsert, working, nil); err != nil {
				return nil, err
			}
			c.logger.Debug("documents inserted",
				zap.String("collection", c.name),
				zap.Int("count", len(working)))
			return c.schema.SerializeAll(schema.CloneSlice(working)), nil
		})
}

// assignCounters overwrites auto-increment fields from the counter store.
// Client-submitted values are ignored.
func (c *Collection) assignCounters(ctx context.Context, doc schema.Document) error {
	for _, field := range c.schema.AutoIncrementFields() {
		name, category := field.Counter(doc)
		if category == "" {
			category = c.name
		}
		value, err := c.counters.Increment(ctx, category, name, 1)
		if err != nil {
			return fmt.Errorf("could not increment counter %s/%s: %w", category, name, err)
		}
		doc[field.Name()] = value
	}
	return nil
}

// Update applies a partial update identified by the document's primary
// keys, returning the previous and the updated document.
func (c *Collection) Update(ctx context.Context, doc schema.Document) (schema.Document, schema.Document, error) {
	if errs := c.schema.ValidateUpdate(doc); !errs.Empty() {
		return nil, nil, &ValidationError{Errors: errs}
	}
	working := schema.Clone(doc)
	c.schema.DeserializeUpdate(working)
	tree, err := c.primaryKeyFilter(working)
	if err != nil {
		return nil, nil, err
	}

	type updateResult struct {
		Previous schema.Document `json:"previous"`
		Updated  schema.Document `json:"updated"`
	}
	result, err := WithEvents(c.emitter, "update",
		DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed,
		doc,
		func() (updateResult, error) {
			existing, err := c.store.Find(ctx, c.name, tree, FindOptions{Limit: 1})
			if err != nil {
				return updateResult{}, err
			}
			if len(existing) == 0 {
				return updateResult{}, &NotFoundError{Collection: c.name, Filters: doc}
			}
			previous := existing[0]
			merged := schema.Merge(previous, working)

			changes := schema.Document{}
			for key := range working {
				changes[key] = merged[key]
			}
			if _, err := c.store.Update(ctx, c.name, tree, changes); err != nil {
				return updateResult{}, ConflictAsValidation(err)
			}
			if err := c.audit(ctx, AuditUpdate, []schema.Document{merged}, nil); err != nil {
				return updateResult{}, err
			}
			c.schema.Serialize(previous)
			serialized := schema.Clone(merged)
			c.schema.Serialize(serialized)
			return updateResult{Previous: previous, Updated: serialized}, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return result.Previous, result.Updated, nil
}

// UpdateAll applies a batch of partial updates. Validation failures are
// keyed by document index and abort the whole batch before any write.
func (c *Collection) UpdateAll(ctx context.Context, docs []schema.Document) ([]schema.Document, []schema.Document, error) {
	if len(docs) == 0 {
		return nil, nil, &ValidationError{Errors: schema.FieldErrors{"": {"No data provided."}}}
	}
	batchErrs := map[int]schema.FieldErrors{}
	for i, doc := range docs {
		if errs := c.schema.ValidateUpdate(doc); !errs.Empty() {
			batchErrs[i] = errs
		}
	}
	if len(batchErrs) > 0 {
		return nil, nil, &BatchValidationError{Errors: batchErrs}
	}
	previous := make([]schema.Document, 0, len(docs))
	updated := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		prev, next, err := c.Update(ctx, doc)
		if err != nil {
			return nil, nil, err
		}
		previous = append(previous, prev)
		updated = append(updated, next)
	}
	return previous, updated, nil
}

// primaryKeyFilter builds the store filter identifying one record,
// falling back to field defaults for absent key values.
func (c *Collection) primaryKeyFilter(working schema.Document) (query.Filter, error) {
	keys := c.schema.PrimaryKeys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("collection %q has no primary key to update by", c.name)
	}
	conditions := make([]query.Filter, 0, len(keys))
	missing := schema.FieldErrors{}
	for _, key := range keys {
		value, ok := working[key]
		if !ok || value == nil {
			value = c.schema.Field(key).DefaultValue(working)
		}
		if value == nil {
			missing.Add(key, "Missing data for required field.")
			continue
		}
		conditions = append(conditions, query.Cond(key, query.OpEq, value))
	}
	if !missing.Empty() {
		return nil, &ValidationError{Errors: missing}
	}
	return query.And(conditions...), nil
}

// Remove deletes every document matching the filters and returns the
// count. Removing with empty filters clears the collection and restarts
// its counters.
func (c *Collection) Remove(ctx context.Context, filters schema.Document) (int64, error) {
	tree, err := c.filterTree(filters)
	if err != nil {
		return 0, err
	}
	return WithEvents(c.emitter, "delete",
		DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed,
		filters,
		func() (int64, error) {
			var removed []schema.Document
			if c.auditor != nil {
				if removed, err = c.store.Find(ctx, c.name, tree, FindOptions{}); err != nil {
					return 0, err
				}
			}
			count, err := c.store.Delete(ctx, c.name, tree)
			if err != nil {
				return 0, err
			}
			if tree == nil {
				if err := c.resetCounters(ctx); err != nil {
					return 0, err
				}
			}
			if err := c.audit(ctx, AuditDelete, removed, filters); err != nil {
				return 0, err
			}
			c.logger.Debug("documents deleted",
				zap.String("collection", c.name),
				zap.Int64("count", count))
			return count, nil
		})
}

func (c *Collection) resetCounters(ctx context.Context) error {
	for _, field := range c.schema.AutoIncrementFields() {
		name, category := field.Counter(schema.Document{})
		if category == "" {
			category = c.name
		}
		if err := c.counters.Reset(ctx, category, name); err != nil {
			return fmt.Errorf("could not reset counter %s/%s: %w", category, name, err)
		}
	}
	return nil
}

func (c *Collection) audit(ctx context.Context, action AuditAction, docs []schema.Document, filters any) error {
	if c.auditor == nil {
		return nil
	}
	rows := make([]map[string]any, len(docs))
	for i, doc := range docs {
		rows[i] = map[string]any(schema.Clone(doc))
	}
	return c.auditor.Record(ctx, AuditEntry{
		Collection: c.name,
		Action:     action,
		Documents:  rows,
		Filters:    filters,
		Time:       time.Now(),
	})
}
