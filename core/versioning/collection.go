// Package versioning layers revision tracking over a document store.
// Every record carries a validity interval expressed in revisions of a
// shared monotonic counter: mutations never destroy data, they close
// intervals and open new ones, so any past state can be read back or
// restored.
package versioning

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/attara/chronicle/core/persistence"
	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

const (
	// FieldValidSince holds the revision a record version became valid at.
	FieldValidSince = "valid_since_revision"
	// FieldValidUntil holds the revision a record version stopped being
	// valid at, or OpenRevision while it is the current one.
	FieldValidUntil = "valid_until_revision"

	// OpenRevision marks a still-valid record version.
	OpenRevision int64 = -1

	revisionCounterCategory = "shared"
	revisionCounterName     = "revision"
)

// RollbackValidator may veto a rollback. It receives the client filters
// and the record versions that would become valid again; any returned
// errors abort the rollback before anything is written.
type RollbackValidator func(filters schema.Document, restored []schema.Document) schema.FieldErrors

// Collection runs the versioned CRUD pipeline for one record schema.
// Client payloads are validated against the user schema; the reserved
// interval fields are stamped server-side and serialized back on reads.
type Collection struct {
	name          string
	user          *schema.Schema
	full          *schema.Schema
	store         persistence.DocumentStore
	counters      persistence.CounterStore
	auditor       persistence.Auditor
	rollbackCheck RollbackValidator
	logger        *zap.Logger
	emitter       *persistence.Emitter
}

// Option configures a versioned collection at construction time.
type Option func(*Collection)

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collection) { c.logger = logger }
}

// WithAuditor records every successful mutation.
func WithAuditor(auditor persistence.Auditor) Option {
	return func(c *Collection) { c.auditor = auditor }
}

// WithRollbackValidator installs a veto hook run before any rollback
// write.
func WithRollbackValidator(check RollbackValidator) Option {
	return func(c *Collection) { c.rollbackCheck = check }
}

// NewCollection binds a schema to a store with revision tracking. The
// reserved interval fields are grafted onto the schema; declaring them
// yourself is a configuration error. Primary key uniqueness is only
// enforced among currently valid versions.
func NewCollection(ctx context.Context, s *schema.Schema, store persistence.DocumentStore, counters persistence.CounterStore, opts ...Option) (*Collection, error) {
	if persistence.ReservedCollectionName(s.Name()) {
		return nil, fmt.Errorf("collection name %q is reserved", s.Name())
	}
	if counters == nil {
		return nil, fmt.Errorf("versioned collection %q needs a counter store", s.Name())
	}
	full, err := s.Extend(
		schema.Int(FieldValidSince, schema.WithComparisonSigns()),
		schema.Int(FieldValidUntil, schema.WithComparisonSigns()),
	)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		name:     s.Name(),
		user:     s,
		full:     full,
		store:    store,
		counters: counters,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := store.EnsureCollection(ctx, c.name, c.indexes()); err != nil {
		return nil, fmt.Errorf("could not ensure collection %q: %w", c.name, err)
	}
	emitter, err := persistence.NewEmitter(c.name)
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	c.emitter = emitter

	c.logger.Debug("versioned collection ready", zap.String("collection", c.name))
	return c, nil
}

func (c *Collection) indexes() []persistence.IndexSpec {
	var specs []persistence.IndexSpec
	if unique := c.user.UniqueIndexFields(nil); len(unique) > 0 {
		// Historical versions share key values, so uniqueness is
		// restricted to open intervals.
		specs = append(specs, persistence.IndexSpec{
			Name:   "uq_" + c.name,
			Fields: unique,
			Unique: true,
			Where:  query.Cond(FieldValidUntil, query.OpEq, OpenRevision),
		})
	}
	if other := c.user.OtherIndexFields(nil); len(other) > 0 {
		specs = append(specs, persistence.IndexSpec{
			Name:   "ix_" + c.name,
			Fields: other,
		})
	}
	specs = append(specs, persistence.IndexSpec{
		Name:   "ix_" + c.name + "_validity",
		Fields: []string{FieldValidUntil},
	})
	return specs
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns the user-facing record schema, without the reserved
// interval fields.
func (c *Collection) Schema() *schema.Schema { return c.user }

// Example returns a sample client-facing document.
func (c *Collection) Example() schema.Document { return c.user.Example() }

// Describe returns the full layout, reserved fields included.
func (c *Collection) Describe() []schema.FieldDescription { return c.full.Describe() }

// Subscribe registers a callback for one event type and returns an ID.
func (c *Collection) Subscribe(event persistence.EventType, callback persistence.CallbackFunction) string {
	return c.emitter.Subscribe(event, callback)
}

// Unsubscribe removes a subscription by its ID.
func (c *Collection) Unsubscribe(id string) {
	c.emitter.Unsubscribe(id)
}

// CurrentRevision reads the shared revision counter without advancing it.
func (c *Collection) CurrentRevision(ctx context.Context) (int64, error) {
	return c.counters.Current(ctx, revisionCounterCategory, revisionCounterName)
}

func (c *Collection) nextRevision(ctx context.Context) (int64, error) {
	rev, err := c.counters.Increment(ctx, revisionCounterCategory, revisionCounterName, 1)
	if err != nil {
		return 0, fmt.Errorf("could not increment revision counter: %w", err)
	}
	return rev, nil
}

// filterTree validates and deserializes client filters against the given
// schema without mutating the caller's map.
func (c *Collection) filterTree(s *schema.Schema, filters schema.Document) (query.Filter, error) {
	working := schema.Clone(filters)
	if working == nil {
		working = schema.Document{}
	}
	if errs := s.ValidateQuery(working); !errs.Empty() {
		return nil, &persistence.ValidationError{Errors: errs}
	}
	s.DeserializeQuery(working)
	return query.FromDocument(working), nil
}

func openCondition() query.Filter {
	return query.Cond(FieldValidUntil, query.OpEq, OpenRevision)
}

// currentOnly strips any client filter on the validity fields and pins the
// query to open intervals: reads of the present never see history.
func (c *Collection) currentOnly(filters schema.Document) (query.Filter, error) {
	working := schema.Clone(filters)
	delete(working, FieldValidSince)
	delete(working, FieldValidUntil)
	tree, err := c.filterTree(c.full, working)
	if err != nil {
		return nil, err
	}
	return query.And(tree, openCondition()), nil
}

// Get returns the single currently valid document matching the filters.
func (c *Collection) Get(ctx context.Context, filters schema.Document) (schema.Document, error) {
	tree, err := c.currentOnly(filters)
	if err != nil {
		return nil, err
	}
	return persistence.WithEvents(c.emitter, "get",
		persistence.DocumentReadStart, persistence.DocumentReadSuccess, persistence.DocumentReadFailed,
		filters,
		func() (schema.Document, error) {
			docs, err := c.store.Find(ctx, c.name, tree, persistence.FindOptions{Limit: 2})
			if err != nil {
				return nil, err
			}
			switch len(docs) {
			case 0:
				return nil, &persistence.NotFoundError{Collection: c.name, Filters: filters}
			case 1:
				c.full.Serialize(docs[0])
				return docs[0], nil
			}
			return nil, &persistence.ValidationError{Errors: schema.FieldErrors{
				"": {"More than one result: Consider another filtering."},
			}}
		})
}

// GetAll returns every currently valid document matching the filters.
func (c *Collection) GetAll(ctx context.Context, filters schema.Document, opts ...persistence.FindOption) ([]schema.Document, error) {
	tree, err := c.currentOnly(filters)
	if err != nil {
		return nil, err
	}
	options := persistence.FindOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return persistence.WithEvents(c.emitter, "get_all",
		persistence.DocumentReadStart, persistence.DocumentReadSuccess, persistence.DocumentReadFailed,
		filters,
		func() ([]schema.Document, error) {
			docs, err := c.store.Find(ctx, c.name, tree, options)
			if err != nil {
				return nil, err
			}
			return c.full.SerializeAll(docs), nil
		})
}

// GetHistory returns every stored version matching the filters, newest
// first. Filters may address the reserved interval fields, comparison
// signs included.
func (c *Collection) GetHistory(ctx context.Context, filters schema.Document, opts ...persistence.FindOption) ([]schema.Document, error) {
	tree, err := c.filterTree(c.full, filters)
	if err != nil {
		return nil, err
	}
	options := persistence.FindOptions{Sort: []query.Sort{{Field: FieldValidSince, Desc: true}}}
	for _, opt := range opts {
		opt(&options)
	}
	return persistence.WithEvents(c.emitter, "get_history",
		persistence.DocumentReadStart, persistence.DocumentReadSuccess, persistence.DocumentReadFailed,
		filters,
		func() ([]schema.Document, error) {
			docs, err := c.store.Find(ctx, c.name, tree, options)
			if err != nil {
				return nil, err
			}
			return c.full.SerializeAll(docs), nil
		})
}

// GetLast behaves like Get while the record is alive, single-match
// contract included. Only when no current version matches does it fall
// back to the most recent closed one, so a soft-deleted record stays
// reachable without ever shadowing a currently valid match.
func (c *Collection) GetLast(ctx context.Context, filters schema.Document) (schema.Document, error) {
	working := schema.Clone(filters)
	delete(working, FieldValidSince)
	delete(working, FieldValidUntil)
	tree, err := c.filterTree(c.full, working)
	if err != nil {
		return nil, err
	}
	return persistence.WithEvents(c.emitter, "get_last",
		persistence.DocumentReadStart, persistence.DocumentReadSuccess, persistence.DocumentReadFailed,
		filters,
		func() (schema.Document, error) {
			docs, err := c.store.Find(ctx, c.name, query.And(tree, openCondition()), persistence.FindOptions{Limit: 2})
			if err != nil {
				return nil, err
			}
			switch len(docs) {
			case 1:
				c.full.Serialize(docs[0])
				return docs[0], nil
			case 2:
				return nil, &persistence.ValidationError{Errors: schema.FieldErrors{
					"": {"More than one result: Consider another filtering."},
				}}
			}
			docs, err = c.store.Find(ctx, c.name, query.And(tree, query.Cond(FieldValidUntil, query.OpNeq, OpenRevision)), persistence.FindOptions{
				Sort:  []query.Sort{{Field: FieldValidSince, Desc: true}},
				Limit: 1,
			})
			if err != nil {
				return nil, err
			}
			if len(docs) == 0 {
				return nil, &persistence.NotFoundError{Collection: c.name, Filters: filters}
			}
			c.full.Serialize(docs[0])
			return docs[0], nil
		})
}

// Add validates and stores one document as a new open version.
func (c *Collection) Add(ctx context.Context, doc schema.Document) (schema.Document, error) {
	docs, err := c.AddAll(ctx, []schema.Document{doc})
	if err != nil {
		return nil, persistence.FirstDocumentError(err)
	}
	return docs[0], nil
}

// AddAll validates and stores a batch. All documents of the batch share
// one freshly drawn revision as their validity start. Validation failures
// are keyed by document index and nothing of the batch is stored; counter
// values consumed by a batch that later fails are not given back.
func (c *Collection) AddAll(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	if len(docs) == 0 {
		return nil, &persistence.ValidationError{Errors: schema.FieldErrors{"": {"No data provided."}}}
	}
	batchErrs := map[int]schema.FieldErrors{}
	working := make([]schema.Document, len(docs))
	for i, doc := range docs {
		if errs := c.user.ValidateInsert(doc); !errs.Empty() {
			batchErrs[i] = errs
			continue
		}
		working[i] = schema.Clone(doc)
	}
	if len(batchErrs) > 0 {
		return nil, &persistence.BatchValidationError{Errors: batchErrs}
	}

	return persistence.WithEvents(c.emitter, "insert",
		persistence.DocumentCreateStart, persistence.DocumentCreateSuccess, persistence.DocumentCreateFailed,
		docs,
		func() ([]schema.Document, error) {
			rev, err := c.nextRevision(ctx)
			if err != nil {
				return nil, err
			}
			for _, doc := range working {
				c.user.DeserializeInsert(doc)
				if err := c.assignCounters(ctx, doc); err != nil {
					return nil, err
				}
				doc[FieldValidSince] = rev
				doc[FieldValidUntil] = OpenRevision
			}
			if err := c.store.Insert(ctx, c.name, working); err != nil {
				return nil, persistence.ConflictAsValidation(err)
			}
			if err := c.audit(ctx, persistence.AuditInsert, working, nil); err != nil {
				return nil, err
			}
			c.logger.Debug("versions inserted",
				zap.String("collection", c.name),
				zap.Int64("revision", rev),
				zap.Int("count", len(working)))
			return c.full.SerializeAll(schema.CloneSlice(working)), nil
		})
}

func (c *Collection) assignCounters(ctx context.Context, doc schema.Document) error {
	for _, field := range c.user.AutoIncrementFields() {
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

// resetCounters restarts the collection's own counters after a full
// delete. The shared revision counter is never reset.
func (c *Collection) resetCounters(ctx context.Context) error {
	for _, field := range c.user.AutoIncrementFields() {
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

// primaryKeyFilter identifies one record's open version.
func (c *Collection) primaryKeyFilter(working schema.Document) (query.Filter, error) {
	keys := c.user.PrimaryKeys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("collection %q has no primary key to update by", c.name)
	}
	conditions := make([]query.Filter, 0, len(keys)+1)
	missing := schema.FieldErrors{}
	for _, key := range keys {
		value, ok := working[key]
		if !ok || value == nil {
			value = c.user.Field(key).DefaultValue(working)
		}
		if value == nil {
			missing.Add(key, "Missing data for required field.")
			continue
		}
		conditions = append(conditions, query.Cond(key, query.OpEq, value))
	}
	if !missing.Empty() {
		return nil, &persistence.ValidationError{Errors: missing}
	}
	conditions = append(conditions, openCondition())
	return query.And(conditions...), nil
}

// Update applies a partial update to the current version of the record
// identified by the document's primary keys. The previous version is kept
// as a closed interval; the open version is re-stamped with a fresh
// revision. Returns the previous and the updated document.
func (c *Collection) Update(ctx context.Context, doc schema.Document) (schema.Document, schema.Document, error) {
	previous, updated, err := c.UpdateAll(ctx, []schema.Document{doc})
	if err != nil {
		return nil, nil, persistence.FirstDocumentError(err)
	}
	return previous[0], updated[0], nil
}

// UpdateAll applies a batch of partial updates sharing one revision.
// Validation failures are keyed by document index and abort the batch
// before any write.
func (c *Collection) UpdateAll(ctx context.Context, docs []schema.Document) ([]schema.Document, []schema.Document, error) {
	if len(docs) == 0 {
		return nil, nil, &persistence.ValidationError{Errors: schema.FieldErrors{"": {"No data provided."}}}
	}
	batchErrs := map[int]schema.FieldErrors{}
	working := make([]schema.Document, len(docs))
	for i, doc := range docs {
		if errs := c.user.ValidateUpdate(doc); !errs.Empty() {
			batchErrs[i] = errs
			continue
		}
		working[i] = schema.Clone(doc)
		c.user.DeserializeUpdate(working[i])
	}
	if len(batchErrs) > 0 {
		return nil, nil, &persistence.BatchValidationError{Errors: batchErrs}
	}

	type updateResult struct {
		Previous []schema.Document `json:"previous"`
		Updated  []schema.Document `json:"updated"`
	}
	result, err := persistence.WithEvents(c.emitter, "update",
		persistence.DocumentUpdateStart, persistence.DocumentUpdateSuccess, persistence.DocumentUpdateFailed,
		docs,
		func() (updateResult, error) {
			rev, err := c.nextRevision(ctx)
			if err != nil {
				return updateResult{}, err
			}
			previous := make([]schema.Document, 0, len(working))
			updated := make([]schema.Document, 0, len(working))
			for i, changes := range working {
				tree, err := c.primaryKeyFilter(changes)
				if err != nil {
					return updateResult{}, err
				}
				found, err := c.store.Find(ctx, c.name, tree, persistence.FindOptions{Limit: 1})
				if err != nil {
					return updateResult{}, err
				}
				if len(found) == 0 {
					return updateResult{}, &persistence.NotFoundError{Collection: c.name, Filters: docs[i]}
				}
				current := found[0]

				// Keep the outgoing version as a closed interval.
				closed := schema.Clone(current)
				closed[FieldValidUntil] = rev
				if err := c.store.Insert(ctx, c.name, []schema.Document{closed}); err != nil {
					return updateResult{}, persistence.ConflictAsValidation(err)
				}

				merged := schema.Merge(current, changes)
				merged[FieldValidSince] = rev
				merged[FieldValidUntil] = OpenRevision

				stamp := schema.Document{FieldValidSince: rev}
				for key := range changes {
					stamp[key] = merged[key]
				}
				if _, err := c.store.Update(ctx, c.name, tree, stamp); err != nil {
					return updateResult{}, persistence.ConflictAsValidation(err)
				}

				previous = append(previous, current)
				updated = append(updated, merged)
			}
			if err := c.audit(ctx, persistence.AuditUpdate, updated, nil); err != nil {
				return updateResult{}, err
			}
			c.logger.Debug("versions updated",
				zap.String("collection", c.name),
				zap.Int64("revision", rev),
				zap.Int("count", len(updated)))
			return updateResult{
				Previous: c.full.SerializeAll(schema.CloneSlice(previous)),
				Updated:  c.full.SerializeAll(schema.CloneSlice(updated)),
			}, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return result.Previous, result.Updated, nil
}

// Remove soft-deletes every currently valid document matching the
// filters by closing its interval, and returns the count. History is
// untouched.
func (c *Collection) Remove(ctx context.Context, filters schema.Document) (int64, error) {
	tree, err := c.currentOnly(filters)
	if err != nil {
		return 0, err
	}
	return persistence.WithEvents(c.emitter, "delete",
		persistence.DocumentDeleteStart, persistence.DocumentDeleteSuccess, persistence.DocumentDeleteFailed,
		filters,
		func() (int64, error) {
			var matched []schema.Document
			if c.auditor != nil {
				if matched, err = c.store.Find(ctx, c.name, tree, persistence.FindOptions{}); err != nil {
					return 0, err
				}
			}
			rev, err := c.nextRevision(ctx)
			if err != nil {
				return 0, err
			}
			count, err := c.store.Update(ctx, c.name, tree, schema.Document{FieldValidUntil: rev})
			if err != nil {
				return 0, err
			}
			if len(filters) == 0 {
				if err := c.resetCounters(ctx); err != nil {
					return 0, err
				}
			}
			if err := c.audit(ctx, persistence.AuditDelete, matched, filters); err != nil {
				return 0, err
			}
			c.logger.Debug("versions closed",
				zap.String("collection", c.name),
				zap.Int64("revision", rev),
				zap.Int64("count", count))
			return count, nil
		})
}

// RollbackTo restores the state the matching records had at the given
// revision. Versions valid back then but since closed are reinserted as
// fresh open intervals; records created after the revision are closed.
// Records already in their at-revision state are left untouched, so
// repeating a rollback with no intervening writes touches nothing, and
// a rollback that touches nothing draws no revision: callers must not
// rely on the revision counter advancing. Returns how many records were
// touched. Rolling back never destroys history, so it can itself be
// rolled back.
func (c *Collection) RollbackTo(ctx context.Context, revision int64, filters schema.Document) (int64, error) {
	if revision < 0 {
		return 0, &persistence.ValidationError{Errors: schema.FieldErrors{
			"revision": {"Not a valid int."},
		}}
	}
	userTree, err := c.filterTree(c.user, filters)
	if err != nil {
		return 0, err
	}
	return persistence.WithEvents(c.emitter, "rollback",
		persistence.RollbackStart, persistence.RollbackSuccess, persistence.RollbackFailed,
		filters,
		func() (int64, error) {
			// Versions valid at the target revision whose interval has
			// since been closed.
			expiredTree := query.And(userTree,
				query.Cond(FieldValidSince, query.OpLte, revision),
				query.Cond(FieldValidUntil, query.OpNeq, OpenRevision),
				query.Cond(FieldValidUntil, query.OpGt, revision),
			)
			// Records that did not exist at the target revision but are
			// currently valid.
			createdTree := query.And(userTree,
				query.Cond(FieldValidSince, query.OpGt, revision),
				openCondition(),
			)
			expired, err := c.store.Find(ctx, c.name, expiredTree, persistence.FindOptions{})
			if err != nil {
				return 0, err
			}
			created, err := c.store.Find(ctx, c.name, createdTree, persistence.FindOptions{})
			if err != nil {
				return 0, err
			}
			restored, retracted := c.planRollback(expired, created)
			if c.rollbackCheck != nil {
				if errs := c.rollbackCheck(filters, restored); !errs.Empty() {
					return 0, &persistence.ValidationError{Errors: errs}
				}
			}
			return c.applyRollback(ctx, revision, restored, retracted)
		})
}

// recordKey fingerprints a version by its primary key values.
func (c *Collection) recordKey(doc schema.Document) string {
	keys := c.user.PrimaryKeys()
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%v", doc[key]))
	}
	return strings.Join(parts, "\x00")
}

// sameRecordState reports whether two versions agree on every client
// field, reserved interval fields excluded.
func (c *Collection) sameRecordState(a, b schema.Document) bool {
	for _, d := range c.user.Fields() {
		if !reflect.DeepEqual(a[d.Name()], b[d.Name()]) {
			return false
		}
	}
	return true
}

// planRollback decides, record by record, which at-revision versions to
// restore and which open rows to retract. A record whose open row
// already carries the at-revision state needs no work; an open row for
// a record that had a state back then is replaced, not retracted.
func (c *Collection) planRollback(expired, created []schema.Document) (restored, retracted []schema.Document) {
	openByKey := make(map[string]schema.Document, len(created))
	for _, doc := range created {
		openByKey[c.recordKey(doc)] = doc
	}
	hadState := make(map[string]bool, len(expired))
	for _, doc := range expired {
		key := c.recordKey(doc)
		hadState[key] = true
		if open, ok := openByKey[key]; ok && c.sameRecordState(open, doc) {
			continue
		}
		restored = append(restored, doc)
	}
	for _, doc := range created {
		if !hadState[c.recordKey(doc)] {
			retracted = append(retracted, doc)
		}
	}
	return restored, retracted
}

// openCounterpart identifies the currently open row of one record,
// whatever its field values.
func (c *Collection) openCounterpart(doc schema.Document) query.Filter {
	keys := c.user.PrimaryKeys()
	conditions := make([]query.Filter, 0, len(keys)+1)
	for _, key := range keys {
		conditions = append(conditions, query.Cond(key, query.OpEq, doc[key]))
	}
	conditions = append(conditions, openCondition())
	return query.And(conditions...)
}

func (c *Collection) applyRollback(ctx context.Context, revision int64, restored, retracted []schema.Document) (int64, error) {
	if len(restored) == 0 && len(retracted) == 0 {
		return 0, nil
	}
	rev, err := c.nextRevision(ctx)
	if err != nil {
		return 0, err
	}
	reopened := make([]schema.Document, 0, len(restored))
	for _, doc := range restored {
		// The record's open row, if any, may carry field values the
		// client filters no longer match; close it by key.
		if _, err := c.store.Update(ctx, c.name, c.openCounterpart(doc), schema.Document{FieldValidUntil: rev}); err != nil {
			return 0, err
		}
		version := schema.Clone(doc)
		version[FieldValidSince] = rev
		version[FieldValidUntil] = OpenRevision
		reopened = append(reopened, version)
	}
	for _, doc := range retracted {
		if _, err := c.store.Update(ctx, c.name, c.openCounterpart(doc), schema.Document{FieldValidUntil: rev}); err != nil {
			return 0, err
		}
	}
	if len(reopened) > 0 {
		if err := c.store.Insert(ctx, c.name, reopened); err != nil {
			return 0, persistence.ConflictAsValidation(err)
		}
	}
	if err := c.audit(ctx, persistence.AuditRollback, reopened, revision); err != nil {
		return 0, err
	}
	c.logger.Debug("rollback applied",
		zap.String("collection", c.name),
		zap.Int64("target", revision),
		zap.Int64("revision", rev),
		zap.Int("restored", len(reopened)),
		zap.Int("retracted", len(retracted)))
	return int64(len(restored) + len(retracted)), nil
}

func (c *Collection) audit(ctx context.Context, action persistence.AuditAction, docs []schema.Document, filters any) error {
	if c.auditor == nil {
		return nil
	}
	rows := make([]map[string]any, len(docs))
	for i, doc := range docs {
		rows[i] = map[string]any(schema.Clone(doc))
	}
	return c.auditor.Record(ctx, persistence.AuditEntry{
		Collection: c.name,
		Action:     action,
		Documents:  rows,
		Filters:    filters,
		Time:       time.Now(),
	})
}
