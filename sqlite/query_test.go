package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

func TestSelectSQL(t *testing.T) {
	t.Run("nil filter", func(t *testing.T) {
		sql, params, err := selectSQL("products", nil, findShape{})
		require.NoError(t, err)
		assert.Equal(t, `SELECT doc FROM "c_products" WHERE 1 = 1`, sql)
		assert.Empty(t, params)
	})

	t.Run("nested conditions", func(t *testing.T) {
		filter := query.And(
			query.Cond("state", query.OpEq, int64(1)),
			query.Or(
				query.Cond("price", query.OpLt, 10.0),
				query.Cond("price", query.OpGte, 100.0),
			),
		)
		sql, params, err := selectSQL("products", filter, findShape{})
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT doc FROM "c_products" WHERE (json_extract(doc, '$.state') = ? AND `+
				`(json_extract(doc, '$.price') < ? OR json_extract(doc, '$.price') >= ?))`, sql)
		assert.Equal(t, []any{int64(1), 10.0, 100.0}, params)
	})

	t.Run("dotted paths address nested documents", func(t *testing.T) {
		sql, _, err := selectSQL("products", query.Cond("dimensions.width", query.OpEq, int64(3)), findShape{})
		require.NoError(t, err)
		assert.Contains(t, sql, "json_extract(doc, '$.dimensions.width') = ?")
	})

	t.Run("null equality targets stored nulls, not absent keys", func(t *testing.T) {
		sql, params, err := selectSQL("products", query.Cond("price", query.OpEq, nil), findShape{})
		require.NoError(t, err)
		assert.Contains(t, sql, "json_type(doc, '$.price') = 'null'")
		assert.Empty(t, params)
	})

	t.Run("absence checks use json_type", func(t *testing.T) {
		sql, _, err := selectSQL("products", query.Cond("price", query.OpNotExists, nil), findShape{})
		require.NoError(t, err)
		assert.Contains(t, sql, "json_type(doc, '$.price') IS NULL")
	})

	t.Run("contains walks the stored array", func(t *testing.T) {
		sql, params, err := selectSQL("products", query.Cond("tags", query.OpContains, []any{"a", "b"}), findShape{})
		require.NoError(t, err)
		assert.Contains(t, sql,
			"EXISTS (SELECT 1 FROM json_each(doc, '$.tags') WHERE json_each.value IN (?, ?))")
		assert.Equal(t, []any{"a", "b"}, params)
	})

	t.Run("timestamps bind as sortable strings", func(t *testing.T) {
		when := time.Date(2021, 4, 5, 6, 7, 8, 0, time.UTC)
		_, params, err := selectSQL("products", query.Cond("created", query.OpGt, when), findShape{})
		require.NoError(t, err)
		assert.Equal(t, []any{"2021-04-05T06:07:08Z"}, params)
	})

	t.Run("sorting and pagination", func(t *testing.T) {
		sql, _, err := selectSQL("products", nil, findShape{
			sorts:  []query.Sort{{Field: "price", Desc: true}, {Field: "name"}},
			limit:  5,
			offset: 10,
		})
		require.NoError(t, err)
		assert.Contains(t, sql, "ORDER BY json_extract(doc, '$.price') DESC, json_extract(doc, '$.name') ASC")
		assert.Contains(t, sql, "LIMIT 5 OFFSET 10")
	})

	t.Run("offset without limit", func(t *testing.T) {
		sql, _, err := selectSQL("products", nil, findShape{offset: 3})
		require.NoError(t, err)
		assert.Contains(t, sql, "LIMIT -1 OFFSET 3")
	})
}

func TestUpdateSQL(t *testing.T) {
	sql, params, err := updateSQL("products",
		query.Cond("id", query.OpEq, int64(1)),
		schema.Document{"price": 9.5, "name": "cheap"})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "c_products" SET doc = json_set(json_set(doc, '$.name', json(?)), '$.price', json(?)) `+
			`WHERE json_extract(doc, '$.id') = ?`, sql)
	assert.Equal(t, []any{`"cheap"`, `9.5`, int64(1)}, params)
}

func TestInsertSQL(t *testing.T) {
	sql, params, err := insertSQL("products", []schema.Document{
		{"id": int64(1)},
		{"id": int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "c_products" (doc) VALUES (json(?)), (json(?))`, sql)
	require.Len(t, params, 2)
	assert.JSONEq(t, `{"id": 1}`, params[0].(string))
}

func TestEncodableValue(t *testing.T) {
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := encodable(schema.Document{
		"created": when,
		"nested":  schema.Document{"at": when},
		"list":    []any{when, int64(1)},
	})
	assert.Equal(t, "2020-01-02T03:04:05Z", doc["created"])
	assert.Equal(t, map[string]any{"at": "2020-01-02T03:04:05Z"}, doc["nested"])
	assert.Equal(t, []any{"2020-01-02T03:04:05Z", int64(1)}, doc["list"])
}

func TestIndexSQL(t *testing.T) {
	t.Run("plain index", func(t *testing.T) {
		sql, err := indexSQL("products", "ix_products", []string{"state"}, false, nil)
		require.NoError(t, err)
		assert.Equal(t,
			`CREATE INDEX IF NOT EXISTS "ix_products" ON "c_products" (json_extract(doc, '$.state'))`, sql)
	})

	t.Run("partial unique index renders literal predicates", func(t *testing.T) {
		sql, err := indexSQL("products", "uq_products", []string{"id"}, true,
			query.Cond("valid_until_revision", query.OpEq, int64(-1)))
		require.NoError(t, err)
		assert.Equal(t,
			`CREATE UNIQUE INDEX IF NOT EXISTS "uq_products" ON "c_products" `+
				`(json_extract(doc, '$.id')) WHERE json_extract(doc, '$.valid_until_revision') = -1`, sql)
	})

	t.Run("non equality predicates are rejected", func(t *testing.T) {
		_, err := indexSQL("products", "uq_products", []string{"id"}, true,
			query.Cond("price", query.OpGt, 1.0))
		assert.Error(t, err)
	})
}
