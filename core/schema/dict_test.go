package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsField() *DictField {
	return Dict("settings", []Descriptor{
		String("locale", WithDefault("en")),
		Int("depth", NotNullable()),
	})
}

func TestDictValidate(t *testing.T) {
	t.Run("valid nested document", func(t *testing.T) {
		f := settingsField()
		errs := f.ValidateInsert(Document{"settings": map[string]any{"locale": "fr", "depth": 3}})
		assert.Empty(t, errs)
	})

	t.Run("child errors keyed with dotted path", func(t *testing.T) {
		f := settingsField()
		errs := f.ValidateInsert(Document{"settings": map[string]any{"locale": "fr"}})
		assert.Equal(t, []string{"Missing data for required field."}, errs["settings.depth"])
	})

	t.Run("child type errors surface", func(t *testing.T) {
		f := settingsField()
		errs := f.ValidateInsert(Document{"settings": map[string]any{"depth": "deep"}})
		assert.Equal(t, []string{"Not a valid int."}, errs["settings.depth"])
	})

	t.Run("dynamic layout depends on sibling", func(t *testing.T) {
		f := DynamicDict("payload", func(doc Document) []Descriptor {
			if doc["kind"] == "full" {
				return []Descriptor{Int("size", NotNullable())}
			}
			return []Descriptor{String("note")}
		})
		errs := f.ValidateInsert(Document{"kind": "full", "payload": map[string]any{}})
		assert.Equal(t, []string{"Missing data for required field."}, errs["payload.size"])
		errs = f.ValidateInsert(Document{"kind": "light", "payload": map[string]any{}})
		assert.Empty(t, errs)
	})
}

func TestDictDefault(t *testing.T) {
	f := Dict("settings", []Descriptor{
		String("locale", WithDefault("en")),
		Int("depth", WithDefault(1)),
	})
	def, ok := f.DefaultValue(Document{}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "en", def["locale"])
	assert.Equal(t, 1, def["depth"])
}

func TestDictDeserializeQueryFlattens(t *testing.T) {
	f := settingsField()
	filters := Document{"settings": map[string]any{"depth": 3}}
	f.DeserializeQuery(filters)

	_, present := filters["settings"]
	assert.False(t, present)
	qv, ok := filters["settings.depth"].(*QueryValue)
	require.True(t, ok)
	assert.Equal(t, []any{int64(3)}, qv.Eq)
}

func TestDictSerializeFillsChildDefaults(t *testing.T) {
	f := settingsField()
	doc := Document{"settings": map[string]any{"depth": int64(3)}}
	f.Serialize(doc)
	nested := doc["settings"].(map[string]any)
	assert.Equal(t, "en", nested["locale"])
	assert.Equal(t, int64(3), nested["depth"])
}

func TestListValidate(t *testing.T) {
	t.Run("elements validated individually", func(t *testing.T) {
		f := List("tags", String("tag", WithMaxLength(3)))
		assert.Empty(t, f.ValidateInsert(Document{"tags": []any{"a", "bb"}}))
		errs := f.ValidateInsert(Document{"tags": []any{"a", "toolong"}})
		assert.Contains(t, errs["tags.1"][0], "too big")
	})

	t.Run("length bounds on the list itself", func(t *testing.T) {
		f := List("tags", String("tag"), WithMinLength(1))
		errs := f.ValidateInsert(Document{"tags": []any{}})
		assert.Contains(t, errs["tags"][0], "enough values")
	})

	t.Run("dict elements", func(t *testing.T) {
		f := List("entries", Dict("entry", []Descriptor{Int("id", NotNullable())}))
		errs := f.ValidateInsert(Document{"entries": []any{map[string]any{}}})
		assert.Equal(t, []string{"Missing data for required field."}, errs["entries.0"])
	})
}

func TestListDeserialize(t *testing.T) {
	t.Run("elements converted", func(t *testing.T) {
		f := List("counts", Int("count"))
		doc := Document{"counts": []any{1, "2"}}
		f.DeserializeInsert(doc)
		assert.Equal(t, []any{int64(1), int64(2)}, doc["counts"])
	})

	t.Run("nil elements dropped", func(t *testing.T) {
		f := List("counts", Int("count"))
		doc := Document{"counts": []any{1, nil, 3}}
		f.DeserializeInsert(doc)
		assert.Equal(t, []any{int64(1), int64(3)}, doc["counts"])
	})

	t.Run("sorted lists ordered ascending", func(t *testing.T) {
		f := List("counts", Int("count")).Sorted()
		doc := Document{"counts": []any{3, 1, 2}}
		f.DeserializeInsert(doc)
		assert.Equal(t, []any{int64(1), int64(2), int64(3)}, doc["counts"])
	})
}

func TestListDeserializeQueryContainment(t *testing.T) {
	f := List("tags", String("tag"))
	filters := Document{"tags": []any{"a", "b"}}
	f.DeserializeQuery(filters)
	qv, ok := filters["tags"].(*QueryValue)
	require.True(t, ok)
	assert.True(t, qv.Contains)
	assert.Equal(t, []any{"a", "b"}, qv.Eq)
}
