package schema

// Clone deep-copies a document so pipeline stages never mutate caller or
// store owned data.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for key, value := range doc {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case Document:
		return Clone(v)
	case map[string]any:
		return map[string]any(Clone(Document(v)))
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = cloneValue(element)
		}
		return out
	}
	return value
}

// CloneSlice deep-copies a result set.
func CloneSlice(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = Clone(doc)
	}
	return out
}

// Merge lays changes over base and returns the result. Nested maps merge
// recursively; everything else, lists included, is replaced wholesale.
func Merge(base, changes Document) Document {
	out := Clone(base)
	for key, value := range changes {
		newMap, newIsMap := asDocument(value)
		oldMap, oldIsMap := asDocument(out[key])
		if newIsMap && oldIsMap {
			out[key] = map[string]any(Merge(oldMap, newMap))
			continue
		}
		out[key] = cloneValue(value)
	}
	return out
}

func asDocument(value any) (Document, bool) {
	switch v := value.(type) {
	case Document:
		return v, true
	case map[string]any:
		return Document(v), true
	}
	return nil, false
}
