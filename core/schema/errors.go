package schema

import (
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps a field name (possibly a dotted or indexed path such as
// "settings.locale" or "tags[2]") to the list of human readable validation
// messages collected for it. An empty map means the value was valid.
type FieldErrors map[string][]string

// Add appends a message to the list of errors recorded for field.
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Merge copies every entry of other into e.
func (e FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		e[field] = append(e[field], messages...)
	}
}

// MergePrefixed copies every entry of other into e, rewriting the keys as
// "<prefix><field>". Used to re-key child errors of nested descriptors.
func (e FieldErrors) MergePrefixed(prefix string, other FieldErrors) {
	for field, messages := range other {
		e[prefix+field] = append(e[prefix+field], messages...)
	}
}

// Empty reports whether no error was recorded.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

func (e FieldErrors) String() string {
	if len(e) == 0 {
		return ""
	}
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e[field], "; ")))
	}
	return strings.Join(parts, ", ")
}

// ConfigError reports an impossible descriptor combination. It is returned
// eagerly when the schema is declared, never at request time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
