package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New("products", []Descriptor{
		Int("id", WithPrimaryKey(), WithAutoIncrement()),
		String("name", NotNullable()),
		String("state", WithDefault("draft")),
		Dict("settings", []Descriptor{
			String("locale", WithDefault("en")),
			Int("depth"),
		}),
	})
	require.NoError(t, err)
	return s
}

func TestNewSchema(t *testing.T) {
	t.Run("rejects empty name", func(t *testing.T) {
		_, err := New("", []Descriptor{String("name")})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate fields", func(t *testing.T) {
		_, err := New("things", []Descriptor{String("name"), Int("name")})
		assert.Error(t, err)
	})

	t.Run("rejects misconfigured descriptors", func(t *testing.T) {
		_, err := New("things", []Descriptor{String("code", WithAutoIncrement())})
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
	})
}

func TestSchemaValidateInsert(t *testing.T) {
	s := testSchema(t)

	t.Run("no data", func(t *testing.T) {
		errs := s.ValidateInsert(nil)
		assert.Equal(t, []string{"No data provided."}, errs[""])
	})

	t.Run("unknown field", func(t *testing.T) {
		errs := s.ValidateInsert(Document{"name": "a", "bogus": 1})
		assert.Equal(t, []string{"Unknown field."}, errs["bogus"])
	})

	t.Run("errors from several fields merge", func(t *testing.T) {
		errs := s.ValidateInsert(Document{"state": 12, "settings": map[string]any{"depth": "x"}})
		assert.NotEmpty(t, errs["name"])
		assert.NotEmpty(t, errs["settings.depth"])
	})

	t.Run("dotted keys fold into their dict", func(t *testing.T) {
		doc := Document{"name": "a", "settings.depth": 3}
		assert.Empty(t, s.ValidateInsert(doc))
		nested, ok := doc["settings"].(Document)
		require.True(t, ok)
		assert.Equal(t, 3, nested["depth"])
		_, dotted := doc["settings.depth"]
		assert.False(t, dotted)
	})

	t.Run("unresolvable dotted keys rejected", func(t *testing.T) {
		errs := s.ValidateInsert(Document{"name": "a", "bogus.depth": 3})
		assert.Equal(t, []string{"Unknown field."}, errs["bogus.depth"])
	})
}

func TestSchemaValidateUpdate(t *testing.T) {
	s := testSchema(t)

	t.Run("absent fields stay untouched", func(t *testing.T) {
		// name is mandatory on insert but a partial update may omit it.
		assert.Empty(t, s.ValidateUpdate(Document{"id": 1, "state": "live"}))
	})

	t.Run("primary keys identify the record", func(t *testing.T) {
		errs := s.ValidateUpdate(Document{"state": "live"})
		assert.Equal(t, []string{"Missing data for required field."}, errs["id"])
	})

	t.Run("explicit nil on a mandatory field rejected", func(t *testing.T) {
		errs := s.ValidateUpdate(Document{"id": 1, "name": nil})
		assert.Equal(t, []string{"Missing data for required field."}, errs["name"])
	})

	t.Run("dotted keys fold into their dict", func(t *testing.T) {
		doc := Document{"id": 1, "settings.depth": 3, "settings.locale": "fr"}
		assert.Empty(t, s.ValidateUpdate(doc))
		s.DeserializeUpdate(doc)
		nested, ok := doc["settings"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, int64(3), nested["depth"])
		assert.Equal(t, "fr", nested["locale"])
	})
}

func TestSchemaValidateQuery(t *testing.T) {
	s := testSchema(t)

	t.Run("nil filters match everything", func(t *testing.T) {
		assert.Empty(t, s.ValidateQuery(nil))
	})

	t.Run("dotted filter keys resolve", func(t *testing.T) {
		assert.Empty(t, s.ValidateQuery(Document{"settings.depth": 3}))
		errs := s.ValidateQuery(Document{"settings.depth": "deep"})
		assert.Equal(t, []string{"Not a valid int."}, errs["settings.depth"])
	})

	t.Run("unknown filters tolerated by default", func(t *testing.T) {
		assert.Empty(t, s.ValidateQuery(Document{"bogus": 1}))
	})

	t.Run("strict mode rejects unknown filters", func(t *testing.T) {
		strict, err := New("things", []Descriptor{String("name")}, WithStrictQueries())
		require.NoError(t, err)
		errs := strict.ValidateQuery(Document{"bogus": 1})
		assert.Equal(t, []string{"Unknown field."}, errs["bogus"])
	})
}

func TestSchemaDeserializeQuery(t *testing.T) {
	s := testSchema(t)

	t.Run("unknown filters dropped", func(t *testing.T) {
		filters := Document{"bogus": 1, "name": "anvil"}
		s.DeserializeQuery(filters)
		_, present := filters["bogus"]
		assert.False(t, present)
		qv, ok := filters["name"].(*QueryValue)
		require.True(t, ok)
		assert.Equal(t, []any{"anvil"}, qv.Eq)
	})

	t.Run("dotted filters stay dotted", func(t *testing.T) {
		filters := Document{"settings.depth": 3}
		s.DeserializeQuery(filters)
		qv, ok := filters["settings.depth"].(*QueryValue)
		require.True(t, ok)
		assert.Equal(t, []any{int64(3)}, qv.Eq)
	})
}

func TestSchemaSerialize(t *testing.T) {
	s := testSchema(t)

	t.Run("defaults substituted and internals stripped", func(t *testing.T) {
		doc := Document{"id": int64(1), "name": "anvil", "_internal": "x"}
		s.Serialize(doc)
		assert.Equal(t, "draft", doc["state"])
		_, present := doc["_internal"]
		assert.False(t, present)
	})
}

func TestSchemaMetadata(t *testing.T) {
	s := testSchema(t)

	assert.Equal(t, []string{"id"}, s.PrimaryKeys())
	require.Len(t, s.AutoIncrementFields(), 1)
	assert.Equal(t, "id", s.AutoIncrementFields()[0].Name())
	assert.Equal(t, []string{"id"}, s.UniqueIndexFields(nil))

	example := s.Example()
	assert.Contains(t, example, "name")
	assert.Equal(t, "draft", example["state"])

	described := s.Describe()
	require.Len(t, described, 4)
	assert.Equal(t, "id", described[0].Name)
	assert.True(t, described[0].PrimaryKey)
}

func TestSchemaExtend(t *testing.T) {
	s := testSchema(t)

	extended, err := s.Extend(Int("revision"))
	require.NoError(t, err)
	assert.Nil(t, s.Field("revision"))
	assert.NotNil(t, extended.Field("revision"))

	_, err = s.Extend(Int("name"))
	assert.Error(t, err)
}

func TestMergeDocuments(t *testing.T) {
	base := Document{"a": 1, "nested": map[string]any{"x": 1, "y": 2}}
	merged := Merge(base, Document{"nested": map[string]any{"y": 3}, "b": 2})

	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 2, merged["b"])
	nested := merged["nested"].(map[string]any)
	assert.Equal(t, 1, nested["x"])
	assert.Equal(t, 3, nested["y"])
	// Base untouched.
	assert.Equal(t, 2, base["nested"].(map[string]any)["y"])
}
