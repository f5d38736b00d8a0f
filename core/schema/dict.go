package schema

// FieldsFunc computes the child descriptors of a dynamic dict field from
// the document being processed, allowing the nested layout to depend on a
// sibling value.
type FieldsFunc func(doc Document) []Descriptor

// DictField validates a nested document against child descriptors. Filters
// on its children reach it through dotted paths resolved by the schema.
type DictField struct {
	Field
	fields    []Descriptor
	getFields FieldsFunc
}

// Dict declares a dict field with a fixed set of child descriptors.
func Dict(name string, fields []Descriptor, opts ...Option) *DictField {
	d := &DictField{Field: *newField(name, TypeDict, opts...)}
	d.fields = fields
	return d
}

// DynamicDict declares a dict field whose child descriptors depend on the
// document being processed.
func DynamicDict(name string, getFields FieldsFunc, opts ...Option) *DictField {
	d := &DictField{Field: *newField(name, TypeDict, opts...)}
	d.getFields = getFields
	return d
}

func (d *DictField) descriptors(doc Document) []Descriptor {
	if d.getFields != nil {
		return d.getFields(doc)
	}
	return d.fields
}

func (d *DictField) checkConfig() error {
	if err := d.Field.checkConfig(); err != nil {
		return err
	}
	if d.getFields == nil && len(d.fields) == 0 {
		return configErr(d.name, "dict fields need child descriptors")
	}
	for _, child := range d.fields {
		if err := child.checkConfig(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultValue builds the nullable default recursively from the child
// defaults when no explicit default is declared.
func (d *DictField) DefaultValue(doc Document) any {
	if def := d.Field.DefaultValue(doc); def != nil {
		return def
	}
	if !d.nullableOnInsert {
		return nil
	}
	def := Document{}
	for _, child := range d.descriptors(doc) {
		child.Serialize(def)
	}
	return map[string]any(def)
}

func (d *DictField) child(doc Document) (Document, bool) {
	switch v := doc[d.name].(type) {
	case Document:
		return v, true
	case map[string]any:
		return Document(v), true
	}
	return nil, false
}

// ValidateInsert checks the nested document, prefixing child errors with
// the dict name.
func (d *DictField) ValidateInsert(doc Document) FieldErrors {
	if errs := d.Field.ValidateInsert(doc); !errs.Empty() {
		return errs
	}
	nested, ok := d.child(doc)
	if !ok {
		return nil
	}
	errs := FieldErrors{}
	for _, child := range d.descriptors(doc) {
		errs.MergePrefixed(d.name+".", child.ValidateInsert(nested))
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

// ValidateUpdate checks the nested document within a partial update.
// Children absent from the partial value stay untouched in the store,
// so only supplied ones are validated.
func (d *DictField) ValidateUpdate(doc Document) FieldErrors {
	if errs := d.Field.ValidateUpdate(doc); !errs.Empty() {
		return errs
	}
	nested, ok := d.child(doc)
	if !ok {
		return nil
	}
	errs := FieldErrors{}
	for _, child := range d.descriptors(doc) {
		if _, present := nested[child.Name()]; !present && !child.PrimaryKey() {
			continue
		}
		errs.MergePrefixed(d.name+".", child.ValidateUpdate(nested))
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

// ValidateQuery checks a nested filter document against the children.
func (d *DictField) ValidateQuery(filters Document) FieldErrors {
	value, ok := filters[d.name]
	if !ok || value == nil {
		if d.required {
			return FieldErrors{d.name: {"Missing data for required field."}}
		}
		return nil
	}
	nested, ok := d.child(filters)
	if !ok {
		return d.fail("Not a valid dict.")
	}
	errs := FieldErrors{}
	for _, child := range d.descriptors(filters) {
		errs.MergePrefixed(d.name+".", child.ValidateQuery(nested))
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

// DeserializeInsert converts the nested document in place.
func (d *DictField) DeserializeInsert(doc Document) {
	value, ok := doc[d.name]
	if !ok {
		return
	}
	if value == nil {
		if !d.storeNil {
			delete(doc, d.name)
		}
		return
	}
	nested, isDict := d.child(doc)
	if !isDict {
		return
	}
	doc[d.name] = map[string]any(nested)
	for _, child := range d.descriptors(doc) {
		child.DeserializeInsert(nested)
	}
}

// DeserializeUpdate converts the nested document within a partial update.
func (d *DictField) DeserializeUpdate(doc Document) {
	value, ok := doc[d.name]
	if !ok {
		return
	}
	if value == nil {
		if !d.storeNil {
			delete(doc, d.name)
		}
		return
	}
	nested, isDict := d.child(doc)
	if !isDict {
		return
	}
	doc[d.name] = map[string]any(nested)
	for _, child := range d.descriptors(doc) {
		child.DeserializeUpdate(nested)
	}
}

// DeserializeQuery flattens the nested filter document into dotted keys so
// the store can match nested paths directly.
func (d *DictField) DeserializeQuery(filters Document) {
	value, ok := filters[d.name]
	if !ok {
		return
	}
	if value == nil {
		delete(filters, d.name)
		return
	}
	nested, isDict := d.child(filters)
	if !isDict {
		return
	}
	for _, child := range d.descriptors(filters) {
		child.DeserializeQuery(nested)
	}
	delete(filters, d.name)
	flattenInto(filters, d.name, nested)
}

func flattenInto(filters Document, prefix string, nested Document) {
	for key, value := range nested {
		path := prefix + "." + key
		switch v := value.(type) {
		case Document:
			flattenInto(filters, path, v)
		case map[string]any:
			flattenInto(filters, path, Document(v))
		default:
			filters[path] = value
		}
	}
}

// Serialize converts the nested document back to its client-facing form,
// substituting child defaults for missing keys.
func (d *DictField) Serialize(doc Document) {
	value, ok := doc[d.name]
	if !ok || value == nil {
		doc[d.name] = d.DefaultValue(doc)
		return
	}
	nested, isDict := d.child(doc)
	if !isDict {
		return
	}
	doc[d.name] = map[string]any(nested)
	for _, child := range d.descriptors(doc) {
		child.Serialize(nested)
	}
}

// Example builds a sample nested document from the child examples.
func (d *DictField) Example() any {
	if d.example != nil {
		return d.example
	}
	sample := map[string]any{}
	for _, child := range d.descriptors(Document{}) {
		sample[child.Name()] = child.Example()
	}
	return sample
}

func (d *DictField) indexFields(kind IndexKind, doc Document, prefix string) []string {
	var paths []string
	if d.indexKind == kind {
		paths = append(paths, prefix+d.name)
	}
	for _, child := range d.descriptors(doc) {
		paths = append(paths, child.indexFields(kind, doc, prefix+d.name+".")...)
	}
	return paths
}

// descriptorByName resolves one step of a dotted filter path.
func (d *DictField) descriptorByName(doc Document, name string) Descriptor {
	for _, child := range d.descriptors(doc) {
		if child.Name() == name {
			return child
		}
	}
	return nil
}
