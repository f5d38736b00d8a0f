package persistence

import (
	"context"
	"time"

	"github.com/attara/chronicle/core/schema"
)

// AuditAction classifies what happened to the audited documents.
type AuditAction string

const (
	AuditInsert   AuditAction = "Insert"
	AuditUpdate   AuditAction = "Update"
	AuditDelete   AuditAction = "Delete"
	AuditRollback AuditAction = "Rollback"
)

// AuditEntry is one recorded mutation.
type AuditEntry struct {
	Collection string
	Action     AuditAction
	Documents  []map[string]any
	Filters    any
	Time       time.Time
}

// Auditor receives every successful mutation of a collection. Recording
// failures fail the mutation, so auditors must be as reliable as the
// store itself.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// StoreAuditor persists audit entries next to the audited collection,
// under "audit_<collection>". Each audited document is stored with the
// action, its index within the mutation and the mutation timestamp.
type StoreAuditor struct {
	store DocumentStore
	now   func() time.Time
}

// NewStoreAuditor builds an auditor writing through the given store.
func NewStoreAuditor(store DocumentStore) *StoreAuditor {
	return &StoreAuditor{store: store, now: time.Now}
}

func (a *StoreAuditor) Record(ctx context.Context, entry AuditEntry) error {
	name := auditCollectionPrefix + "_" + entry.Collection
	if err := a.store.EnsureCollection(ctx, name, nil); err != nil {
		return err
	}
	when := entry.Time
	if when.IsZero() {
		when = a.now()
	}
	rows := make([]map[string]any, 0, len(entry.Documents))
	for _, doc := range entry.Documents {
		row := map[string]any{
			"audit_action": string(entry.Action),
			"audit_date":   when.UTC(),
		}
		for key, value := range doc {
			row[key] = value
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		rows = append(rows, map[string]any{
			"audit_action": string(entry.Action),
			"audit_date":   when.UTC(),
			"filters":      entry.Filters,
		})
	}
	docs := make([]schema.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, schema.Document(row))
	}
	return a.store.Insert(ctx, name, docs)
}
