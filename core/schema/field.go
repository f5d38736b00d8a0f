// Package schema implements the field-descriptor engine: typed descriptors
// that validate, deserialize and serialize document values on every CRUD
// path, composed into record schemas with dotted-path filter resolution.
package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Document is a client-facing or store-native record, depending on which
// side of the deserialize/serialize boundary it sits.
type Document map[string]any

// FieldType identifies the value type a descriptor validates against.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBool     FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeEnum     FieldType = "enum"
	TypeID       FieldType = "id"
	TypeDict     FieldType = "dict"
	TypeList     FieldType = "list"
)

// IndexKind describes if and how a field should be indexed.
type IndexKind int

const (
	IndexNone IndexKind = iota
	IndexUnique
	IndexOther
)

// EnumValue is one allowed value of an enum field. The ordinal is the
// store-native representation; the name is the client-facing one.
type EnumValue struct {
	Name    string
	Ordinal int64
}

// CounterFunc resolves the counter key of an auto-increment field. An empty
// category defaults to the collection name at increment time.
type CounterFunc func(doc Document) (name, category string)

// DefaultFunc computes a field default from the whole document.
type DefaultFunc func(doc Document) any

// ChoicesFunc returns the allowed values of a restricted field.
type ChoicesFunc func() []any

// Descriptor is the shared contract of scalar, dict and list field
// descriptors. Validation returns a field-keyed error map; deserialization
// and serialization mutate the container in place, mirroring the store's
// absent-beats-stored-null contract.
type Descriptor interface {
	Name() string
	Type() FieldType
	Description() string
	PrimaryKey() bool
	Required() bool
	AutoIncrement() bool
	Counter(doc Document) (name, category string)
	Index() IndexKind
	DefaultValue(doc Document) any
	Example() any

	ValidateInsert(doc Document) FieldErrors
	ValidateUpdate(doc Document) FieldErrors
	ValidateQuery(filters Document) FieldErrors

	DeserializeInsert(doc Document)
	DeserializeUpdate(doc Document)
	DeserializeQuery(filters Document)

	Serialize(doc Document)

	// indexFields lists the dotted paths indexed with the given kind,
	// recursing into nested descriptors.
	indexFields(kind IndexKind, doc Document, prefix string) []string
	checkConfig() error
}

// Field is a scalar field descriptor. Dict and list descriptors embed it
// for the shared metadata and nullability rules.
type Field struct {
	name        string
	typ         FieldType
	description string

	enumValues []EnumValue
	getChoices ChoicesFunc
	counter    CounterFunc

	defaultValue any
	getDefault   DefaultFunc

	indexKind     IndexKind
	indexDeclared bool

	allowNilFilter bool
	autoIncrement  bool
	primaryKey     bool
	required       bool
	storeNil       bool
	comparable     bool
	notNullable    bool

	minValue  *float64
	maxValue  *float64
	minLength *int
	maxLength *int

	example any

	nullableOnInsert bool
	nullableOnUpdate bool
}

// Option configures a descriptor at declaration time.
type Option func(*Field)

// WithDescription sets the human readable field description.
func WithDescription(description string) Option {
	return func(f *Field) { f.description = description }
}

// WithPrimaryKey marks the field as part of the record's primary key.
// Primary-key fields are implicitly unique-indexed.
func WithPrimaryKey() Option {
	return func(f *Field) { f.primaryKey = true }
}

// WithRequired forces clients to always provide the field in queries.
func WithRequired() Option {
	return func(f *Field) { f.required = true }
}

// NotNullable forbids absent values on both insert and update.
func NotNullable() Option {
	return func(f *Field) { f.notNullable = true }
}

// WithDefault sets the value substituted on read when nothing is stored.
func WithDefault(value any) Option {
	return func(f *Field) { f.defaultValue = value }
}

// WithDefaultFunc sets a default computed from the whole document.
func WithDefaultFunc(fn DefaultFunc) Option {
	return func(f *Field) { f.getDefault = fn }
}

// WithChoices restricts the accepted values.
func WithChoices(choices ...any) Option {
	return func(f *Field) { f.getChoices = func() []any { return choices } }
}

// WithChoicesFunc restricts the accepted values to a computed set.
func WithChoicesFunc(fn ChoicesFunc) Option {
	return func(f *Field) { f.getChoices = fn }
}

// WithIndex requests an explicit index kind for the field.
func WithIndex(kind IndexKind) Option {
	return func(f *Field) {
		f.indexKind = kind
		f.indexDeclared = true
	}
}

// WithAutoIncrement assigns the field from an atomic counter on insert.
// Client-submitted values are ignored. Integer fields only.
func WithAutoIncrement() Option {
	return func(f *Field) { f.autoIncrement = true }
}

// WithCounter overrides the counter key of an auto-increment field.
func WithCounter(name, category string) Option {
	return func(f *Field) {
		f.counter = func(Document) (string, string) { return name, category }
	}
}

// WithCounterFunc overrides the counter key with a document-dependent one.
func WithCounterFunc(fn CounterFunc) Option {
	return func(f *Field) { f.counter = fn }
}

// WithMinValue sets the lower bound of a numeric or date field.
func WithMinValue(min float64) Option {
	return func(f *Field) { f.minValue = &min }
}

// WithMaxValue sets the upper bound of a numeric or date field.
func WithMaxValue(max float64) Option {
	return func(f *Field) { f.maxValue = &max }
}

// WithMinLength sets the minimum length of a string, list or dict value.
func WithMinLength(min int) Option {
	return func(f *Field) { f.minLength = &min }
}

// WithMaxLength sets the maximum length of a string, list or dict value.
func WithMaxLength(max int) Option {
	return func(f *Field) { f.maxLength = &max }
}

// WithExample sets the sample value used for model generation.
func WithExample(example any) Option {
	return func(f *Field) { f.example = example }
}

// WithStoreNil stores explicit nulls instead of dropping the key. By
// default absent beats stored-null to save space.
func WithStoreNil() Option {
	return func(f *Field) { f.storeNil = true }
}

// WithNilFilter keeps explicit nil values in query filters instead of
// dropping them.
func WithNilFilter() Option {
	return func(f *Field) { f.allowNilFilter = true }
}

// WithComparisonSigns accepts ">=", ">", "<=" and "<" prefixes on string
// query values of this field.
func WithComparisonSigns() Option {
	return func(f *Field) { f.comparable = true }
}

func newField(name string, typ FieldType, opts ...Option) *Field {
	f := &Field{name: name, typ: typ}
	for _, opt := range opts {
		opt(f)
	}
	if f.counter == nil {
		f.counter = func(Document) (string, string) { return f.name, "" }
	}
	if f.primaryKey && !f.indexDeclared {
		f.indexKind = IndexUnique
	}
	f.resolveNullability()
	return f
}

func (f *Field) resolveNullability() {
	if f.notNullable {
		f.nullableOnInsert = false
		f.nullableOnUpdate = false
		return
	}
	hasDefault := f.defaultValue != nil || f.getDefault != nil
	f.nullableOnInsert = !f.primaryKey || hasDefault || f.autoIncrement
	f.nullableOnUpdate = !f.primaryKey || hasDefault
}

// String declares a string field.
func String(name string, opts ...Option) *Field { return newField(name, TypeString, opts...) }

// Int declares an integer field.
func Int(name string, opts ...Option) *Field { return newField(name, TypeInt, opts...) }

// Float declares a floating point field.
func Float(name string, opts ...Option) *Field { return newField(name, TypeFloat, opts...) }

// Bool declares a boolean field.
func Bool(name string, opts ...Option) *Field { return newField(name, TypeBool, opts...) }

// Date declares a date-only field, serialized as "2006-01-02".
func Date(name string, opts ...Option) *Field { return newField(name, TypeDate, opts...) }

// DateTime declares a timestamp field, serialized as RFC 3339 UTC.
func DateTime(name string, opts ...Option) *Field { return newField(name, TypeDateTime, opts...) }

// ID declares an opaque identifier field validated as a UUID.
func ID(name string, opts ...Option) *Field { return newField(name, TypeID, opts...) }

// Enum declares an enumerated field. Ordinals are stored; names are what
// clients submit and receive.
func Enum(name string, values []EnumValue, opts ...Option) *Field {
	f := newField(name, TypeEnum, opts...)
	f.enumValues = values
	if f.getChoices == nil {
		f.getChoices = func() []any {
			choices := make([]any, len(values))
			for i, v := range values {
				choices[i] = v.Name
			}
			return choices
		}
	}
	return f
}

// RawDict declares a dictionary field whose content is not validated. Use
// Dict to validate nested fields.
func RawDict(name string, opts ...Option) *Field { return newField(name, TypeDict, opts...) }

// RawList declares a list field whose elements are not validated. Use List
// to validate elements.
func RawList(name string, opts ...Option) *Field { return newField(name, TypeList, opts...) }

func (f *Field) Name() string        { return f.name }
func (f *Field) Type() FieldType     { return f.typ }
func (f *Field) Description() string { return f.description }
func (f *Field) PrimaryKey() bool    { return f.primaryKey }
func (f *Field) Required() bool      { return f.required }
func (f *Field) AutoIncrement() bool { return f.autoIncrement }
func (f *Field) Index() IndexKind    { return f.indexKind }

// Counter returns the counter key assigned to an auto-increment field.
func (f *Field) Counter(doc Document) (string, string) { return f.counter(doc) }

// DefaultValue returns the value substituted for this field on read when
// nothing is stored. May depend on the rest of the document.
func (f *Field) DefaultValue(doc Document) any {
	if f.getDefault != nil {
		return f.getDefault(doc)
	}
	return f.defaultValue
}

func (f *Field) choices() []any {
	if f.getChoices == nil {
		return nil
	}
	return f.getChoices()
}

func (f *Field) checkConfig() error {
	if f.name == "" {
		return configErr("", "descriptor has no name")
	}
	if f.autoIncrement && f.typ != TypeInt {
		return configErr(f.name, "only integer fields can be auto incremented")
	}
	if f.primaryKey && f.indexDeclared {
		return configErr(f.name, "primary key fields are implicitly unique indexed")
	}
	if f.notNullable {
		if f.autoIncrement {
			return configErr(f.name, "a field cannot be mandatory and auto incremented at the same time")
		}
		if f.defaultValue != nil || f.getDefault != nil {
			return configErr(f.name, "a field cannot be mandatory and have a default value at the same time")
		}
	}
	if f.minValue != nil && f.maxValue != nil && *f.maxValue < *f.minValue {
		return configErr(f.name, "maximum value should be superior or equal to minimum value")
	}
	if f.minLength != nil && *f.minLength < 0 {
		return configErr(f.name, "minimum length should be positive")
	}
	if f.maxLength != nil {
		if *f.maxLength < 0 {
			return configErr(f.name, "maximum length should be positive")
		}
		if f.minLength != nil && *f.maxLength < *f.minLength {
			return configErr(f.name, "maximum length should be superior or equal to minimum length")
		}
	}
	if f.typ == TypeEnum && len(f.enumValues) == 0 {
		return configErr(f.name, "enum fields need at least one value")
	}
	return nil
}

// ValidateInsert checks this field's value within a document to insert.
func (f *Field) ValidateInsert(doc Document) FieldErrors {
	value, ok := doc[f.name]
	if !ok || value == nil {
		if !f.nullableOnInsert {
			return FieldErrors{f.name: {"Missing data for required field."}}
		}
		return nil
	}
	return f.validateValue(value, false)
}

// ValidateUpdate checks this field's value within a partial update.
func (f *Field) ValidateUpdate(doc Document) FieldErrors {
	value, ok := doc[f.name]
	if !ok || value == nil {
		if !f.nullableOnUpdate {
			return FieldErrors{f.name: {"Missing data for required field."}}
		}
		return nil
	}
	return f.validateValue(value, false)
}

// ValidateQuery checks this field's value within query filters. A list of
// values on a non-list field means OR and is validated element-wise.
func (f *Field) ValidateQuery(filters Document) FieldErrors {
	value, ok := filters[f.name]
	if !ok || value == nil {
		if f.required {
			return FieldErrors{f.name: {"Missing data for required field."}}
		}
		return nil
	}
	if values, isList := asAnySlice(value); isList && f.typ != TypeList {
		errs := FieldErrors{}
		for _, v := range values {
			if v == nil {
				continue
			}
			errs.Merge(f.validateValue(v, true))
		}
		if errs.Empty() {
			return nil
		}
		return errs
	}
	return f.validateValue(value, true)
}

func (f *Field) validateValue(value any, query bool) FieldErrors {
	if query && f.comparable {
		switch v := value.(type) {
		case string:
			if _, rest, signed := ParseComparison(v); signed {
				value = rest
			}
		case SignValue:
			value = v.Value
		}
	}
	switch f.typ {
	case TypeString:
		return f.validateString(value)
	case TypeInt:
		return f.validateInt(value)
	case TypeFloat:
		return f.validateFloat(value)
	case TypeBool:
		return f.validateBool(value)
	case TypeDate:
		return f.validateDate(value)
	case TypeDateTime:
		return f.validateDateTime(value)
	case TypeEnum:
		return f.validateEnum(value)
	case TypeID:
		return f.validateID(value)
	case TypeDict:
		return f.validateRawDict(value)
	case TypeList:
		return f.validateRawList(value)
	}
	return nil
}

func (f *Field) fail(format string, args ...any) FieldErrors {
	return FieldErrors{f.name: {fmt.Sprintf(format, args...)}}
}

func (f *Field) checkChoice(value any) FieldErrors {
	choices := f.choices()
	if len(choices) == 0 {
		return nil
	}
	for _, choice := range choices {
		if looselyEqual(choice, value) {
			return nil
		}
	}
	return f.fail("Value %q is not within %v.", fmt.Sprintf("%v", value), choices)
}

func (f *Field) validateString(value any) FieldErrors {
	s, ok := asString(value)
	if !ok {
		return f.fail("Not a valid string.")
	}
	if errs := f.checkChoice(s); errs != nil {
		return errs
	}
	if f.minLength != nil && len(s) < *f.minLength {
		return f.fail("Value %q is too small. Minimum length is %d.", s, *f.minLength)
	}
	if f.maxLength != nil && len(s) > *f.maxLength {
		return f.fail("Value %q is too big. Maximum length is %d.", s, *f.maxLength)
	}
	return nil
}

func (f *Field) validateInt(value any) FieldErrors {
	n, ok := asInt64(value)
	if !ok {
		return f.fail("Not a valid int.")
	}
	if errs := f.checkChoice(n); errs != nil {
		return errs
	}
	return f.checkBounds(float64(n), n)
}

func (f *Field) validateFloat(value any) FieldErrors {
	n, ok := asFloat64(value)
	if !ok {
		return f.fail("Not a valid float.")
	}
	if errs := f.checkChoice(n); errs != nil {
		return errs
	}
	return f.checkBounds(n, n)
}

func (f *Field) checkBounds(n float64, display any) FieldErrors {
	if f.minValue != nil && n < *f.minValue {
		return f.fail("Value %v is too small. Minimum value is %v.", display, *f.minValue)
	}
	if f.maxValue != nil && n > *f.maxValue {
		return f.fail("Value %v is too big. Maximum value is %v.", display, *f.maxValue)
	}
	return nil
}

func (f *Field) validateBool(value any) FieldErrors {
	if _, ok := asBool(value); !ok {
		return f.fail("Not a valid bool.")
	}
	return nil
}

func (f *Field) validateDate(value any) FieldErrors {
	if _, ok := asTime(value); !ok {
		return f.fail("Not a valid date.")
	}
	return nil
}

func (f *Field) validateDateTime(value any) FieldErrors {
	if _, ok := asTime(value); !ok {
		return f.fail("Not a valid datetime.")
	}
	return nil
}

func (f *Field) validateEnum(value any) FieldErrors {
	switch v := value.(type) {
	case string:
		for _, ev := range f.enumValues {
			if ev.Name == v {
				return nil
			}
		}
		return f.fail("Value %q is not within %v.", v, f.choices())
	default:
		if ordinal, ok := asInt64(value); ok {
			for _, ev := range f.enumValues {
				if ev.Ordinal == ordinal {
					return nil
				}
			}
		}
		return f.fail("Not a valid %s value.", f.name)
	}
}

func (f *Field) validateID(value any) FieldErrors {
	s, ok := value.(string)
	if !ok {
		if _, isUUID := value.(uuid.UUID); isUUID {
			return nil
		}
		return f.fail("Not a valid id.")
	}
	if _, err := uuid.Parse(s); err != nil {
		return f.fail("Not a valid id.")
	}
	return nil
}

func (f *Field) validateRawDict(value any) FieldErrors {
	m, ok := value.(map[string]any)
	if !ok {
		if _, isDoc := value.(Document); !isDoc {
			return f.fail("Not a valid dict.")
		}
		m = map[string]any(value.(Document))
	}
	if f.minLength != nil && len(m) < *f.minLength {
		return f.fail("%v does not contain enough values. Minimum length is %d.", m, *f.minLength)
	}
	if f.maxLength != nil && len(m) > *f.maxLength {
		return f.fail("%v contains too many values. Maximum length is %d.", m, *f.maxLength)
	}
	return nil
}

func (f *Field) validateRawList(value any) FieldErrors {
	values, ok := asAnySlice(value)
	if !ok {
		return f.fail("Not a valid list.")
	}
	if f.minLength != nil && len(values) < *f.minLength {
		return f.fail("%v does not contain enough values. Minimum length is %d.", values, *f.minLength)
	}
	if f.maxLength != nil && len(values) > *f.maxLength {
		return f.fail("%v contains too many values. Maximum length is %d.", values, *f.maxLength)
	}
	return nil
}

// DeserializeInsert converts this field's value to its store-native form.
// Nil values are dropped unless the field stores explicit nulls.
func (f *Field) DeserializeInsert(doc Document) {
	value, ok := doc[f.name]
	if !ok {
		return
	}
	if value == nil {
		if !f.storeNil {
			delete(doc, f.name)
		}
		return
	}
	doc[f.name] = f.deserializeValue(value)
}

// DeserializeUpdate converts this field's value within a partial update.
func (f *Field) DeserializeUpdate(doc Document) {
	f.DeserializeInsert(doc)
}

// DeserializeQuery replaces this field's raw filter value with a
// *QueryValue holding store-native equality candidates and comparison
// ranges, folding the field default into the absent-match set.
func (f *Field) DeserializeQuery(filters Document) {
	raw, ok := filters[f.name]
	if !ok {
		return
	}
	if raw == nil {
		if f.allowNilFilter {
			filters[f.name] = &QueryValue{Nil: true}
		} else {
			delete(filters, f.name)
		}
		return
	}

	var values []any
	if list, isList := asAnySlice(raw); isList && f.typ != TypeList {
		if len(list) == 0 {
			// An empty list is not a usable filter on a non-list field.
			delete(filters, f.name)
			return
		}
		values = list
	} else {
		values = []any{raw}
	}

	qv := &QueryValue{}
	for _, value := range values {
		if value == nil {
			qv.Eq = append(qv.Eq, nil)
			continue
		}
		if f.comparable {
			switch v := value.(type) {
			case string:
				if sign, rest, signed := ParseComparison(v); signed {
					qv.Ranges = append(qv.Ranges, SignValue{Sign: sign, Value: f.deserializeValue(rest)})
					continue
				}
			case SignValue:
				qv.Ranges = append(qv.Ranges, SignValue{Sign: v.Sign, Value: f.deserializeValue(v.Value)})
				continue
			}
		}
		qv.Eq = append(qv.Eq, f.deserializeValue(value))
	}
	if def := f.DefaultValue(filters); def != nil {
		native := f.deserializeValue(def)
		for _, eq := range qv.Eq {
			if looselyEqual(eq, native) {
				qv.MatchAbsent = true
				break
			}
		}
	}
	filters[f.name] = qv
}

func (f *Field) deserializeValue(value any) any {
	switch f.typ {
	case TypeInt:
		if n, ok := asInt64(value); ok {
			return n
		}
	case TypeFloat:
		if n, ok := asFloat64(value); ok {
			return n
		}
	case TypeBool:
		if b, ok := asBool(value); ok {
			return b
		}
	case TypeString:
		if s, ok := asString(value); ok {
			return s
		}
	case TypeDateTime:
		if t, ok := asTime(value); ok {
			return t.UTC()
		}
	case TypeDate:
		if t, ok := asTime(value); ok {
			// Dates are stored as midnight timestamps.
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	case TypeEnum:
		switch v := value.(type) {
		case string:
			for _, ev := range f.enumValues {
				if ev.Name == v {
					return ev.Ordinal
				}
			}
		default:
			if ordinal, ok := asInt64(value); ok {
				return ordinal
			}
		}
	case TypeID:
		switch v := value.(type) {
		case uuid.UUID:
			return v.String()
		case string:
			if id, err := uuid.Parse(v); err == nil {
				return id.String()
			}
		}
	}
	return value
}

// Serialize converts this field's stored value back to its client-facing
// form, substituting the default when nothing is stored.
func (f *Field) Serialize(doc Document) {
	value, ok := doc[f.name]
	if !ok || value == nil {
		doc[f.name] = f.DefaultValue(doc)
		return
	}
	switch f.typ {
	case TypeDateTime:
		if t, isTime := asTime(value); isTime {
			doc[f.name] = t.UTC().Format(time.RFC3339)
		}
	case TypeDate:
		if t, isTime := asTime(value); isTime {
			doc[f.name] = t.UTC().Format("2006-01-02")
		}
	case TypeEnum:
		if ordinal, isInt := asInt64(value); isInt {
			for _, ev := range f.enumValues {
				if ev.Ordinal == ordinal {
					doc[f.name] = ev.Name
					break
				}
			}
		}
	case TypeInt:
		if n, isInt := asInt64(value); isInt {
			doc[f.name] = n
		}
	case TypeFloat:
		if n, isFloat := asFloat64(value); isFloat {
			doc[f.name] = n
		}
	}
}

// Example returns a sample value for model generation.
func (f *Field) Example() any {
	if f.example != nil {
		return f.example
	}
	if f.defaultValue != nil {
		return f.defaultValue
	}
	if choices := f.choices(); len(choices) > 0 {
		return choices[0]
	}
	return f.defaultExample()
}

func (f *Field) defaultExample() any {
	switch f.typ {
	case TypeInt:
		if f.minValue != nil {
			return int64(*f.minValue)
		}
		return int64(1)
	case TypeFloat:
		return 1.4
	case TypeBool:
		return true
	case TypeDate:
		return "2017-09-24"
	case TypeDateTime:
		return "2017-09-24T15:36:09Z"
	case TypeID:
		return uuid.Nil.String()
	case TypeList:
		return []any{fmt.Sprintf("1st %s sample", f.name), fmt.Sprintf("2nd %s sample", f.name)}
	case TypeDict:
		return map[string]any{fmt.Sprintf("1st %s key", f.name): fmt.Sprintf("1st %s sample", f.name)}
	}
	return fmt.Sprintf("sample %s", f.name)
}

func (f *Field) indexFields(kind IndexKind, _ Document, prefix string) []string {
	if f.indexKind == kind {
		return []string{prefix + f.name}
	}
	return nil
}

// Coercion helpers shared by validation and deserialization.

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	}
	return "", false
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case float32:
		if float64(v) == float64(int64(v)) {
			return int64(v), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, _ := asInt64(v)
		return float64(n), true
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, true
		}
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func asAnySlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// looselyEqual compares values across the int/int64/float64 and
// string-number boundaries that client input routinely crosses.
func looselyEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if an, ok := asInt64(a); ok {
		if bn, ok := asInt64(b); ok {
			return an == bn
		}
	}
	if an, ok := asFloat64(a); ok {
		if bn, ok := asFloat64(b); ok {
			return an == bn
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	return false
}
