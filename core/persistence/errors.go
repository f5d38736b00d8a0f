package persistence

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/attara/chronicle/core/schema"
)

// ErrConflict is wrapped by store implementations when an insert or update
// violates a unique index.
var ErrConflict = errors.New("document already exists")

// ErrNotFound is wrapped when an operation targets no stored document.
var ErrNotFound = errors.New("document not found")

// ValidationError carries the field-keyed messages of a rejected document
// or filter set.
type ValidationError struct {
	Errors schema.FieldErrors
	cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document: %s", e.Errors.String())
}

// Unwrap exposes the store error the validation error was derived from,
// if any.
func (e *ValidationError) Unwrap() error { return e.cause }

// BatchValidationError keys each rejected document of a batch by its index
// in the submitted slice. Valid documents of the batch are not inserted.
type BatchValidationError struct {
	Errors map[int]schema.FieldErrors
}

func (e *BatchValidationError) Error() string {
	indexes := make([]int, 0, len(e.Errors))
	for i := range e.Errors {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	parts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		parts = append(parts, fmt.Sprintf("document %d: %s", i, e.Errors[i].String()))
	}
	return fmt.Sprintf("invalid batch: %s", strings.Join(parts, ", "))
}

// FirstDocumentError converts a batch validation error produced by a
// one-document batch into a plain validation error. Other errors pass
// through untouched.
func FirstDocumentError(err error) error {
	var batchErr *BatchValidationError
	if errors.As(err, &batchErr) {
		if errs, ok := batchErr.Errors[0]; ok {
			return &ValidationError{Errors: errs}
		}
	}
	return err
}

// ConflictAsValidation converts a unique-index conflict into the
// validation error clients see for a duplicate document. The ErrConflict
// sentinel stays reachable through errors.Is. Other errors pass through
// untouched.
func ConflictAsValidation(err error) error {
	if err == nil || !errors.Is(err, ErrConflict) {
		return err
	}
	return &ValidationError{
		Errors: schema.FieldErrors{"": {"This document already exists."}},
		cause:  err,
	}
}

// ConflictError reports which collection rejected a duplicate.
type ConflictError struct {
	Collection string
	Document   schema.Document
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("collection %q: %v", e.Collection, ErrConflict)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports which collection and filters matched nothing.
type NotFoundError struct {
	Collection string
	Filters    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("collection %q: %v (filters: %v)", e.Collection, ErrNotFound, e.Filters)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ReservedCollectionName reports whether the layer claims the name for
// itself (counter storage and audit trails).
func ReservedCollectionName(name string) bool {
	return name == countersCollection || strings.HasPrefix(name, auditCollectionPrefix)
}
