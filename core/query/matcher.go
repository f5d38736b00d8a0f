package query

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Matches evaluates a filter tree against one store-native document. A nil
// filter matches everything.
func Matches(doc map[string]any, filter Filter) bool {
	if filter == nil {
		return true
	}
	switch f := filter.(type) {
	case Condition:
		return matchCondition(doc, f)
	case Group:
		return matchGroup(doc, f)
	}
	return false
}

func matchGroup(doc map[string]any, g Group) bool {
	if len(g.Filters) == 0 {
		return true
	}
	for _, child := range g.Filters {
		matched := Matches(doc, child)
		if g.Logic == LogicOr && matched {
			return true
		}
		if g.Logic != LogicOr && !matched {
			return false
		}
	}
	return g.Logic != LogicOr
}

func matchCondition(doc map[string]any, c Condition) bool {
	value, exists := Lookup(doc, c.Field)
	switch c.Op {
	case OpExists:
		return exists
	case OpNotExists:
		return !exists
	case OpEq:
		if c.Value == nil {
			return exists && value == nil
		}
		return exists && equal(value, c.Value)
	case OpNeq:
		return !exists || !equal(value, c.Value)
	case OpIn:
		if !exists {
			return false
		}
		for _, candidate := range asList(c.Value) {
			if equal(value, candidate) {
				return true
			}
		}
		return false
	case OpContains:
		if !exists {
			return false
		}
		stored := asList(value)
		for _, candidate := range asList(c.Value) {
			for _, element := range stored {
				if equal(element, candidate) {
					return true
				}
			}
		}
		return false
	case OpLt, OpLte, OpGt, OpGte:
		if !exists || value == nil {
			return false
		}
		cmp, comparable := compare(value, c.Value)
		if !comparable {
			return false
		}
		switch c.Op {
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	}
	return false
}

// Lookup resolves a dotted path inside a document, descending through
// nested maps. The second return reports whether the path exists.
func Lookup(doc map[string]any, path string) (any, bool) {
	key, rest, nested := strings.Cut(path, ".")
	value, exists := doc[key]
	if !exists {
		return nil, false
	}
	if !nested {
		return value, true
	}
	switch child := value.(type) {
	case map[string]any:
		return Lookup(child, rest)
	}
	return nil, false
}

func asList(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case nil:
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{value}
}

func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return false
}

// compare orders two values when both sit in a common comparable domain:
// numbers, strings, bools or timestamps.
func compare(a, b any) (int, bool) {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			}
			return 0, true
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt), true
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0, true
			case ab:
				return 1, true
			}
			return -1, true
		}
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Sort orders a result set by one dotted field path.
type Sort struct {
	Field string
	Desc  bool
}

// SortDocuments orders docs in place by the given sort keys. Missing
// values sort first ascending.
func SortDocuments[D ~map[string]any](docs []D, keys []Sort) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range keys {
			a, aok := Lookup(docs[i], key.Field)
			b, bok := Lookup(docs[j], key.Field)
			if !aok && !bok {
				continue
			}
			if !aok || !bok {
				less := !aok
				if key.Desc {
					less = !less
				}
				return less
			}
			cmp, comparable := compare(a, b)
			if !comparable || cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Page applies offset and limit to a result set. A zero limit means no
// limit.
func Page[D ~map[string]any](docs []D, limit, offset int) []D {
	if offset > 0 {
		if offset >= len(docs) {
			return nil
		}
		docs = docs[offset:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
