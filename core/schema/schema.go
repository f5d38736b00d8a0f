package schema

import (
	"strings"
)

// Schema is an ordered set of field descriptors describing one collection's
// records. It drives validation, deserialization and serialization on every
// CRUD path; descriptor misconfiguration is rejected eagerly at build time.
type Schema struct {
	name          string
	descriptors   []Descriptor
	byName        map[string]Descriptor
	strictQueries bool
}

// SchemaOption configures schema-wide behavior.
type SchemaOption func(*Schema)

// WithStrictQueries rejects unknown filter fields instead of dropping them.
func WithStrictQueries() SchemaOption {
	return func(s *Schema) { s.strictQueries = true }
}

// New builds a schema, checking every descriptor's configuration. Invalid
// declarations fail here rather than on first use.
func New(name string, descriptors []Descriptor, opts ...SchemaOption) (*Schema, error) {
	if name == "" {
		return nil, configErr("", "schema name is mandatory")
	}
	if len(descriptors) == 0 {
		return nil, configErr("", "schema %q needs at least one field", name)
	}
	s := &Schema{
		name:        name,
		descriptors: descriptors,
		byName:      make(map[string]Descriptor, len(descriptors)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, d := range descriptors {
		if err := d.checkConfig(); err != nil {
			return nil, err
		}
		if _, dup := s.byName[d.Name()]; dup {
			return nil, configErr(d.Name(), "field declared twice in schema %q", name)
		}
		s.byName[d.Name()] = d
	}
	return s, nil
}

// MustNew is New for statically declared schemas.
func MustNew(name string, descriptors []Descriptor, opts ...SchemaOption) *Schema {
	s, err := New(name, descriptors, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the collection name the schema describes.
func (s *Schema) Name() string { return s.name }

// Fields returns the descriptors in declaration order.
func (s *Schema) Fields() []Descriptor {
	out := make([]Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Field returns the descriptor with the given name, or nil.
func (s *Schema) Field(name string) Descriptor {
	return s.byName[name]
}

// Extend returns a new schema with extra descriptors appended, sharing the
// originals. Used to graft reserved fields onto a user schema.
func (s *Schema) Extend(extra ...Descriptor) (*Schema, error) {
	merged := make([]Descriptor, 0, len(s.descriptors)+len(extra))
	merged = append(merged, s.descriptors...)
	merged = append(merged, extra...)
	var opts []SchemaOption
	if s.strictQueries {
		opts = append(opts, WithStrictQueries())
	}
	return New(s.name, merged, opts...)
}

// PrimaryKeys returns the names of the primary key fields in order.
func (s *Schema) PrimaryKeys() []string {
	var keys []string
	for _, d := range s.descriptors {
		if d.PrimaryKey() {
			keys = append(keys, d.Name())
		}
	}
	return keys
}

// AutoIncrementFields returns the descriptors assigned from counters.
func (s *Schema) AutoIncrementFields() []Descriptor {
	var fields []Descriptor
	for _, d := range s.descriptors {
		if d.AutoIncrement() {
			fields = append(fields, d)
		}
	}
	return fields
}

// UniqueIndexFields returns the dotted paths of unique-indexed fields.
// Dynamic dict layouts may depend on the document at hand.
func (s *Schema) UniqueIndexFields(doc Document) []string {
	return s.collectIndexFields(IndexUnique, doc)
}

// OtherIndexFields returns the dotted paths of non-unique indexed fields.
func (s *Schema) OtherIndexFields(doc Document) []string {
	return s.collectIndexFields(IndexOther, doc)
}

func (s *Schema) collectIndexFields(kind IndexKind, doc Document) []string {
	if doc == nil {
		doc = Document{}
	}
	var paths []string
	for _, d := range s.descriptors {
		paths = append(paths, d.indexFields(kind, doc, "")...)
	}
	return paths
}

// ValidateInsert checks a full document. Dotted keys are folded into their
// dict field first; unknown fields are rejected.
func (s *Schema) ValidateInsert(doc Document) FieldErrors {
	if len(doc) == 0 {
		return FieldErrors{"": {"No data provided."}}
	}
	s.normalizeDotted(doc)
	errs := FieldErrors{}
	for _, d := range s.descriptors {
		errs.Merge(d.ValidateInsert(doc))
	}
	s.rejectUnknown(doc, errs)
	if errs.Empty() {
		return nil
	}
	return errs
}

// ValidateUpdate checks a partial update. Dotted keys are folded into
// their dict field first. Only supplied fields are validated, plus the
// primary keys, which must identify the record even when absent from
// the partial document.
func (s *Schema) ValidateUpdate(doc Document) FieldErrors {
	if len(doc) == 0 {
		return FieldErrors{"": {"No data provided."}}
	}
	s.normalizeDotted(doc)
	errs := FieldErrors{}
	for _, d := range s.descriptors {
		if _, present := doc[d.Name()]; !present && !d.PrimaryKey() {
			continue
		}
		errs.Merge(d.ValidateUpdate(doc))
	}
	s.rejectUnknown(doc, errs)
	if errs.Empty() {
		return nil
	}
	return errs
}

func (s *Schema) rejectUnknown(doc Document, errs FieldErrors) {
	for key := range doc {
		if _, known := s.byName[key]; !known {
			errs.Add(key, "Unknown field.")
		}
	}
}

// ValidateQuery checks filter values. Dotted keys are resolved against
// nested descriptors first; nil filters match everything.
func (s *Schema) ValidateQuery(filters Document) FieldErrors {
	if len(filters) == 0 {
		return nil
	}
	s.normalizeDotted(filters)
	errs := FieldErrors{}
	for _, d := range s.descriptors {
		errs.Merge(d.ValidateQuery(filters))
	}
	if s.strictQueries {
		for key := range filters {
			if _, known := s.byName[rootSegment(key)]; !known {
				errs.Add(key, "Unknown field.")
			}
		}
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

// DeserializeInsert converts a validated document to store-native form.
func (s *Schema) DeserializeInsert(doc Document) {
	s.normalizeDotted(doc)
	for _, d := range s.descriptors {
		d.DeserializeInsert(doc)
	}
}

// DeserializeUpdate converts a validated partial update in place.
func (s *Schema) DeserializeUpdate(doc Document) {
	s.normalizeDotted(doc)
	for _, d := range s.descriptors {
		d.DeserializeUpdate(doc)
	}
}

// DeserializeQuery converts validated filters to store-native form: every
// kept key maps to a *QueryValue, nested paths are dotted, and unknown
// filter fields are dropped.
func (s *Schema) DeserializeQuery(filters Document) {
	if len(filters) == 0 {
		return
	}
	s.normalizeDotted(filters)
	for _, d := range s.descriptors {
		d.DeserializeQuery(filters)
	}
	for key, value := range filters {
		if _, known := s.byName[rootSegment(key)]; !known {
			delete(filters, key)
			continue
		}
		if _, converted := value.(*QueryValue); !converted {
			delete(filters, key)
		}
	}
}

// Serialize converts a stored document back to its client-facing form,
// substituting defaults and stripping store-internal keys.
func (s *Schema) Serialize(doc Document) {
	for _, d := range s.descriptors {
		d.Serialize(doc)
	}
	for key := range doc {
		if _, known := s.byName[key]; !known {
			delete(doc, key)
		}
	}
}

// SerializeAll serializes a result set in place and returns it.
func (s *Schema) SerializeAll(docs []Document) []Document {
	for _, doc := range docs {
		s.Serialize(doc)
	}
	return docs
}

// Example builds a sample client-facing document.
func (s *Schema) Example() Document {
	doc := Document{}
	for _, d := range s.descriptors {
		doc[d.Name()] = d.Example()
	}
	return doc
}

// FieldDescription is one entry of a schema description.
type FieldDescription struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	PrimaryKey  bool      `json:"primary_key,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Indexed     bool      `json:"indexed,omitempty"`
}

// Describe returns the schema layout for model or documentation generation.
func (s *Schema) Describe() []FieldDescription {
	out := make([]FieldDescription, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, FieldDescription{
			Name:        d.Name(),
			Type:        d.Type(),
			Description: d.Description(),
			PrimaryKey:  d.PrimaryKey(),
			Required:    d.Required(),
			Indexed:     d.Index() != IndexNone,
		})
	}
	return out
}

// normalizeDotted folds dotted keys into nested documents so dict
// descriptors can process them, merging with nested maps already present.
// It applies to documents and filters alike; inserts, updates and queries
// all accept `dict_field.child` spellings.
func (s *Schema) normalizeDotted(doc Document) {
	for key, value := range doc {
		root, rest, dotted := strings.Cut(key, ".")
		if !dotted {
			continue
		}
		if _, known := s.byName[root]; !known {
			continue
		}
		delete(doc, key)
		nested := nestedDoc(doc, root)
		setDotted(nested, rest, value)
	}
}

func nestedDoc(doc Document, key string) Document {
	switch v := doc[key].(type) {
	case Document:
		return v
	case map[string]any:
		return Document(v)
	}
	nested := Document{}
	doc[key] = nested
	return nested
}

func setDotted(doc Document, path string, value any) {
	root, rest, dotted := strings.Cut(path, ".")
	if !dotted {
		doc[root] = value
		return
	}
	setDotted(nestedDoc(doc, root), rest, value)
}

func rootSegment(key string) string {
	root, _, _ := strings.Cut(key, ".")
	return root
}
