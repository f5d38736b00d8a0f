package schema

import (
	"fmt"
	"sort"
)

// ListField validates list elements against a single element descriptor.
// Each element is checked by substituting it into a scratch document under
// the element descriptor's name.
type ListField struct {
	Field
	element Descriptor
	sorted  bool
}

// List declares a list field whose elements are validated by the given
// descriptor.
func List(name string, element Descriptor, opts ...Option) *ListField {
	l := &ListField{Field: *newField(name, TypeList, opts...)}
	l.element = element
	return l
}

// Sorted makes deserialization order comparable elements ascending.
func (l *ListField) Sorted() *ListField {
	l.sorted = true
	return l
}

func (l *ListField) checkConfig() error {
	if err := l.Field.checkConfig(); err != nil {
		return err
	}
	if l.element == nil {
		return configErr(l.name, "list fields need an element descriptor")
	}
	if l.element.PrimaryKey() || l.element.AutoIncrement() {
		return configErr(l.name, "list elements cannot be keys or counters")
	}
	return l.element.checkConfig()
}

func (l *ListField) elements(doc Document) ([]any, bool) {
	value, ok := doc[l.name]
	if !ok || value == nil {
		return nil, false
	}
	return asAnySlice(value)
}

func (l *ListField) validateElements(doc Document, update bool) FieldErrors {
	values, ok := l.elements(doc)
	if !ok {
		return nil
	}
	errs := FieldErrors{}
	for i, value := range values {
		scratch := Document{l.element.Name(): value}
		var elementErrs FieldErrors
		if update {
			elementErrs = l.element.ValidateUpdate(scratch)
		} else {
			elementErrs = l.element.ValidateInsert(scratch)
		}
		for _, messages := range elementErrs {
			errs[fmt.Sprintf("%s.%d", l.name, i)] = append(errs[fmt.Sprintf("%s.%d", l.name, i)], messages...)
		}
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

// ValidateInsert checks the list shape then every element.
func (l *ListField) ValidateInsert(doc Document) FieldErrors {
	if errs := l.Field.ValidateInsert(doc); !errs.Empty() {
		return errs
	}
	return l.validateElements(doc, false)
}

// ValidateUpdate checks the list shape then every element.
func (l *ListField) ValidateUpdate(doc Document) FieldErrors {
	if errs := l.Field.ValidateUpdate(doc); !errs.Empty() {
		return errs
	}
	return l.validateElements(doc, true)
}

// ValidateQuery checks each provided element as an element-level query.
func (l *ListField) ValidateQuery(filters Document) FieldErrors {
	value, ok := filters[l.name]
	if !ok || value == nil {
		if l.required {
			return FieldErrors{l.name: {"Missing data for required field."}}
		}
		return nil
	}
	values, isList := asAnySlice(value)
	if !isList {
		values = []any{value}
	}
	errs := FieldErrors{}
	for _, v := range values {
		if v == nil {
			continue
		}
		scratch := Document{l.element.Name(): v}
		errs.MergePrefixed(l.name+".", l.element.ValidateQuery(scratch))
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

func (l *ListField) deserializeElements(doc Document, update bool) {
	value, ok := doc[l.name]
	if !ok {
		return
	}
	if value == nil {
		if !l.storeNil {
			delete(doc, l.name)
		}
		return
	}
	values, isList := asAnySlice(value)
	if !isList {
		return
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		scratch := Document{l.element.Name(): v}
		if update {
			l.element.DeserializeUpdate(scratch)
		} else {
			l.element.DeserializeInsert(scratch)
		}
		// Elements the descriptor dropped, such as explicit nils, are
		// removed from the stored list.
		if converted, kept := scratch[l.element.Name()]; kept {
			out = append(out, converted)
		}
	}
	if l.sorted {
		sortElements(out)
	}
	doc[l.name] = out
}

// DeserializeInsert converts every element to its store-native form and
// drops elements the element descriptor discards.
func (l *ListField) DeserializeInsert(doc Document) {
	l.deserializeElements(doc, false)
}

// DeserializeUpdate converts every element within a partial update.
func (l *ListField) DeserializeUpdate(doc Document) {
	l.deserializeElements(doc, true)
}

// DeserializeQuery converts filter values to element-native form. Matching
// uses containment semantics on the stored list.
func (l *ListField) DeserializeQuery(filters Document) {
	value, ok := filters[l.name]
	if !ok {
		return
	}
	if value == nil {
		delete(filters, l.name)
		return
	}
	values, isList := asAnySlice(value)
	if !isList {
		values = []any{value}
	}
	qv := &QueryValue{Contains: true}
	for _, v := range values {
		if v == nil {
			continue
		}
		scratch := Document{l.element.Name(): v}
		l.element.DeserializeQuery(scratch)
		converted, kept := scratch[l.element.Name()]
		if !kept {
			continue
		}
		if nested, isQV := converted.(*QueryValue); isQV {
			qv.Eq = append(qv.Eq, nested.Eq...)
			qv.Ranges = append(qv.Ranges, nested.Ranges...)
		} else {
			qv.Eq = append(qv.Eq, converted)
		}
	}
	if len(qv.Eq) == 0 && len(qv.Ranges) == 0 {
		delete(filters, l.name)
		return
	}
	filters[l.name] = qv
}

// Serialize converts every stored element back to its client-facing form.
func (l *ListField) Serialize(doc Document) {
	value, ok := doc[l.name]
	if !ok || value == nil {
		doc[l.name] = l.DefaultValue(doc)
		return
	}
	values, isList := asAnySlice(value)
	if !isList {
		return
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		scratch := Document{l.element.Name(): v}
		l.element.Serialize(scratch)
		out = append(out, scratch[l.element.Name()])
	}
	doc[l.name] = out
}

// Example builds a sample list from the element example.
func (l *ListField) Example() any {
	if l.example != nil {
		return l.example
	}
	return []any{l.element.Example()}
}

func (l *ListField) indexFields(kind IndexKind, _ Document, prefix string) []string {
	if l.indexKind == kind {
		return []string{prefix + l.name}
	}
	return nil
}

func sortElements(values []any) {
	sort.SliceStable(values, func(i, j int) bool {
		if a, ok := asFloat64(values[i]); ok {
			if b, ok := asFloat64(values[j]); ok {
				return a < b
			}
		}
		if a, ok := values[i].(string); ok {
			if b, ok := values[j].(string); ok {
				return a < b
			}
		}
		return false
	})
}
