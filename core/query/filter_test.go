package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attara/chronicle/core/schema"
)

func TestFromDocument(t *testing.T) {
	t.Run("empty filters match everything", func(t *testing.T) {
		assert.Nil(t, FromDocument(nil))
		assert.Nil(t, FromDocument(schema.Document{}))
	})

	t.Run("single equality", func(t *testing.T) {
		tree := FromDocument(schema.Document{
			"name": &schema.QueryValue{Eq: []any{"anvil"}},
		})
		cond, ok := tree.(Condition)
		require.True(t, ok)
		assert.Equal(t, Cond("name", OpEq, "anvil"), cond)
	})

	t.Run("several candidates become in", func(t *testing.T) {
		tree := FromDocument(schema.Document{
			"state": &schema.QueryValue{Eq: []any{int64(1), int64(2)}},
		})
		cond, ok := tree.(Condition)
		require.True(t, ok)
		assert.Equal(t, OpIn, cond.Op)
	})

	t.Run("ranges bound one interval", func(t *testing.T) {
		tree := FromDocument(schema.Document{
			"count": &schema.QueryValue{Ranges: []schema.SignValue{
				{Sign: schema.SignGreaterOrEqual, Value: int64(3)},
				{Sign: schema.SignLower, Value: int64(10)},
			}},
		})
		group, ok := tree.(Group)
		require.True(t, ok)
		assert.Equal(t, LogicAnd, group.Logic)
		assert.Len(t, group.Filters, 2)
	})

	t.Run("default match folds in absence", func(t *testing.T) {
		tree := FromDocument(schema.Document{
			"state": &schema.QueryValue{Eq: []any{"draft"}, MatchAbsent: true},
		})
		group, ok := tree.(Group)
		require.True(t, ok)
		assert.Equal(t, LogicOr, group.Logic)
		assert.Contains(t, group.Filters, Cond("state", OpNotExists, nil))
	})

	t.Run("fields joined conjunctively", func(t *testing.T) {
		tree := FromDocument(schema.Document{
			"a": &schema.QueryValue{Eq: []any{int64(1)}},
			"b": &schema.QueryValue{Eq: []any{int64(2)}},
		})
		group, ok := tree.(Group)
		require.True(t, ok)
		assert.Equal(t, LogicAnd, group.Logic)
	})
}

func TestMatches(t *testing.T) {
	doc := map[string]any{
		"name":  "anvil",
		"count": int64(5),
		"tags":  []any{"heavy", "metal"},
		"settings": map[string]any{
			"depth": int64(3),
		},
		"deleted": nil,
	}

	t.Run("nil filter", func(t *testing.T) {
		assert.True(t, Matches(doc, nil))
	})

	t.Run("equality", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("name", OpEq, "anvil")))
		assert.False(t, Matches(doc, Cond("name", OpEq, "hammer")))
	})

	t.Run("numeric equality crosses widths", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("count", OpEq, 5)))
		assert.True(t, Matches(doc, Cond("count", OpEq, 5.0)))
	})

	t.Run("nested path", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("settings.depth", OpEq, int64(3))))
		assert.False(t, Matches(doc, Cond("settings.missing", OpEq, 1)))
	})

	t.Run("ranges", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("count", OpGte, int64(5))))
		assert.False(t, Matches(doc, Cond("count", OpGt, int64(5))))
		assert.True(t, Matches(doc, Cond("count", OpLt, int64(6))))
	})

	t.Run("in", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("name", OpIn, []any{"anvil", "hammer"})))
		assert.False(t, Matches(doc, Cond("name", OpIn, []any{"hammer"})))
	})

	t.Run("contains on stored list", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("tags", OpContains, []any{"metal", "wood"})))
		assert.False(t, Matches(doc, Cond("tags", OpContains, []any{"wood"})))
	})

	t.Run("existence", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("name", OpExists, nil)))
		assert.True(t, Matches(doc, Cond("missing", OpNotExists, nil)))
		assert.False(t, Matches(doc, Cond("name", OpNotExists, nil)))
	})

	t.Run("explicit null", func(t *testing.T) {
		assert.True(t, Matches(doc, Cond("deleted", OpEq, nil)))
		assert.False(t, Matches(doc, Cond("missing", OpEq, nil)))
	})

	t.Run("groups", func(t *testing.T) {
		assert.True(t, Matches(doc, And(
			Cond("name", OpEq, "anvil"),
			Cond("count", OpGte, int64(1)),
		)))
		assert.True(t, Matches(doc, Or(
			Cond("name", OpEq, "hammer"),
			Cond("count", OpEq, int64(5)),
		)))
		assert.False(t, Matches(doc, And(
			Cond("name", OpEq, "anvil"),
			Cond("count", OpEq, int64(99)),
		)))
	})

	t.Run("time comparison", func(t *testing.T) {
		stamp := time.Date(2017, 5, 15, 0, 0, 0, 0, time.UTC)
		entry := map[string]any{"opened": stamp}
		assert.True(t, Matches(entry, Cond("opened", OpGte, stamp)))
		assert.True(t, Matches(entry, Cond("opened", OpLt, stamp.AddDate(0, 0, 1))))
	})
}

func TestSortDocuments(t *testing.T) {
	docs := []map[string]any{
		{"name": "b", "count": int64(2)},
		{"name": "a", "count": int64(3)},
		{"name": "c", "count": int64(1)},
	}
	SortDocuments(docs, []Sort{{Field: "count", Desc: true}})
	assert.Equal(t, "a", docs[0]["name"])
	assert.Equal(t, "c", docs[2]["name"])

	SortDocuments(docs, []Sort{{Field: "name"}})
	assert.Equal(t, "a", docs[0]["name"])
	assert.Equal(t, "c", docs[2]["name"])
}

func TestPage(t *testing.T) {
	docs := []map[string]any{{"i": 1}, {"i": 2}, {"i": 3}}
	assert.Len(t, Page(docs, 2, 0), 2)
	assert.Equal(t, 3, Page(docs, 0, 2)[0]["i"])
	assert.Empty(t, Page(docs, 10, 5))
	assert.Len(t, Page(docs, 0, 0), 3)
}
