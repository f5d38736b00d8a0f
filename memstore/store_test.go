package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attara/chronicle/core/persistence"
	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

func TestStoreInsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureCollection(ctx, "things", nil))

	require.NoError(t, s.Insert(ctx, "things", []schema.Document{
		{"id": int64(1), "name": "a"},
		{"id": int64(2), "name": "b"},
	}))

	docs, err := s.Find(ctx, "things", query.Cond("name", query.OpEq, "b"), persistence.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(2), docs[0]["id"])

	all, err := s.Find(ctx, "things", nil, persistence.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	original := schema.Document{"id": int64(1), "nested": map[string]any{"x": 1}}
	require.NoError(t, s.Insert(ctx, "things", []schema.Document{original}))

	// Mutating the caller's document must not touch stored state.
	original["nested"].(map[string]any)["x"] = 99
	docs, err := s.Find(ctx, "things", nil, persistence.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, docs[0]["nested"].(map[string]any)["x"])

	// Mutating a returned document must not either.
	docs[0]["id"] = int64(42)
	again, err := s.Find(ctx, "things", nil, persistence.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), again[0]["id"])
}

func TestStoreUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureCollection(ctx, "things", []persistence.IndexSpec{
		{Name: "uq_things", Fields: []string{"key"}, Unique: true},
	}))

	require.NoError(t, s.Insert(ctx, "things", []schema.Document{{"key": "a"}}))
	err := s.Insert(ctx, "things", []schema.Document{{"key": "a"}})
	assert.ErrorIs(t, err, persistence.ErrConflict)

	t.Run("conflict within one batch", func(t *testing.T) {
		err := s.Insert(ctx, "things", []schema.Document{{"key": "b"}, {"key": "b"}})
		assert.ErrorIs(t, err, persistence.ErrConflict)
		// Nothing of the failed batch was stored.
		docs, findErr := s.Find(ctx, "things", query.Cond("key", query.OpEq, "b"), persistence.FindOptions{})
		require.NoError(t, findErr)
		assert.Empty(t, docs)
	})
}

func TestStorePartialUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	open := query.Cond("valid_until_revision", query.OpEq, int64(-1))
	require.NoError(t, s.EnsureCollection(ctx, "things", []persistence.IndexSpec{
		{Name: "uq_things", Fields: []string{"key"}, Unique: true, Where: open},
	}))

	require.NoError(t, s.Insert(ctx, "things", []schema.Document{
		{"key": "a", "valid_until_revision": int64(-1)},
	}))
	// A closed historical version of the same key is allowed.
	require.NoError(t, s.Insert(ctx, "things", []schema.Document{
		{"key": "a", "valid_until_revision": int64(4)},
	}))
	// A second open version is not.
	err := s.Insert(ctx, "things", []schema.Document{
		{"key": "a", "valid_until_revision": int64(-1)},
	})
	assert.ErrorIs(t, err, persistence.ErrConflict)
}

func TestStoreUpdateUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureCollection(ctx, "things", []persistence.IndexSpec{
		{Name: "uq_things", Fields: []string{"key"}, Unique: true},
	}))
	require.NoError(t, s.Insert(ctx, "things", []schema.Document{
		{"key": "a"}, {"key": "b"},
	}))

	_, err := s.Update(ctx, "things", query.Cond("key", query.OpEq, "b"), schema.Document{"key": "a"})
	assert.ErrorIs(t, err, persistence.ErrConflict)

	t.Run("nothing changed by the rejected update", func(t *testing.T) {
		docs, err := s.Find(ctx, "things", query.Cond("key", query.OpEq, "b"), persistence.FindOptions{})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("a row may keep its own key", func(t *testing.T) {
		count, err := s.Update(ctx, "things", query.Cond("key", query.OpEq, "b"), schema.Document{"extra": int64(1)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Insert(ctx, "things", []schema.Document{
		{"id": int64(1), "state": "draft"},
		{"id": int64(2), "state": "draft"},
		{"id": int64(3), "state": "final"},
	}))

	count, err := s.Update(ctx, "things", query.Cond("state", query.OpEq, "draft"), schema.Document{"state": "review"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = s.Delete(ctx, "things", query.Cond("state", query.OpEq, "review"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	rest, err := s.Find(ctx, "things", nil, persistence.FindOptions{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(3), rest[0]["id"])
}

func TestStoreFindShaping(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Insert(ctx, "things", []schema.Document{
		{"id": int64(3)}, {"id": int64(1)}, {"id": int64(2)},
	}))

	docs, err := s.Find(ctx, "things", nil, persistence.FindOptions{
		Sort:  []query.Sort{{Field: "id", Desc: true}},
		Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(3), docs[0]["id"])
	assert.Equal(t, int64(2), docs[1]["id"])
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := NewCounters()

	v, err := c.Increment(ctx, "products", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, _ = c.Increment(ctx, "products", "id", 1)
	assert.Equal(t, int64(2), v)

	// Counters in other categories are independent.
	v, _ = c.Increment(ctx, "orders", "id", 1)
	assert.Equal(t, int64(1), v)

	current, err := c.Current(ctx, "products", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
	assert.False(t, c.LastUpdated("products", "id").IsZero())

	require.NoError(t, c.Reset(ctx, "products", "id"))
	current, _ = c.Current(ctx, "products", "id")
	assert.Equal(t, int64(0), current)
}
