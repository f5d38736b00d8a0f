package sqlite

import (
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/attara/chronicle/core/query"
	"github.com/attara/chronicle/core/schema"
)

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func tableName(collection string) string {
	return quoteIdentifier("c_" + collection)
}

// fieldSQL translates a dotted field path into a json_extract accessor on
// the document column.
func fieldSQL(path string) string {
	return fmt.Sprintf("json_extract(doc, '%s')", jsonPath(path))
}

func typeSQL(path string) string {
	return fmt.Sprintf("json_type(doc, '%s')", jsonPath(path))
}

func jsonPath(path string) string {
	return "$." + strings.ReplaceAll(path, "'", "''")
}

// prepareValue converts a store-native Go value into its SQLite parameter
// form: timestamps become sortable RFC 3339 strings, booleans become the
// integers json_extract yields, everything else passes through.
func prepareValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return value
}

// buildWhere renders a filter tree into a WHERE expression, appending the
// bound parameters. A nil filter renders as a tautology.
func buildWhere(filter query.Filter, params *[]any) (string, error) {
	if filter == nil {
		return "1 = 1", nil
	}
	switch f := filter.(type) {
	case query.Condition:
		return buildCondition(f, params)
	case query.Group:
		return buildGroup(f, params)
	}
	return "", fmt.Errorf("unsupported filter node %T", filter)
}

func buildGroup(g query.Group, params *[]any) (string, error) {
	if len(g.Filters) == 0 {
		return "1 = 1", nil
	}
	connector := " AND "
	if g.Logic == query.LogicOr {
		connector = " OR "
	}
	parts := make([]string, 0, len(g.Filters))
	for _, child := range g.Filters {
		part, err := buildWhere(child, params)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, connector) + ")", nil
}

func buildCondition(c query.Condition, params *[]any) (string, error) {
	field := fieldSQL(c.Field)
	switch c.Op {
	case query.OpExists:
		return typeSQL(c.Field) + " IS NOT NULL", nil
	case query.OpNotExists:
		return typeSQL(c.Field) + " IS NULL", nil
	case query.OpEq:
		if c.Value == nil {
			// A stored JSON null, as opposed to an absent key.
			return typeSQL(c.Field) + " = 'null'", nil
		}
		*params = append(*params, prepareValue(c.Value))
		return field + " = ?", nil
	case query.OpNeq:
		if c.Value == nil {
			return fmt.Sprintf("(%s IS NULL OR %s != 'null')", typeSQL(c.Field), typeSQL(c.Field)), nil
		}
		*params = append(*params, prepareValue(c.Value))
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", typeSQL(c.Field), field), nil
	case query.OpIn:
		values := c.Value.([]any)
		if len(values) == 0 {
			return "1 = 0", nil
		}
		placeholders := make([]string, 0, len(values))
		for _, v := range values {
			*params = append(*params, prepareValue(v))
			placeholders = append(placeholders, "?")
		}
		return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")), nil
	case query.OpContains:
		values, ok := c.Value.([]any)
		if !ok {
			values = []any{c.Value}
		}
		if len(values) == 0 {
			return "1 = 0", nil
		}
		placeholders := make([]string, 0, len(values))
		for _, v := range values {
			*params = append(*params, prepareValue(v))
			placeholders = append(placeholders, "?")
		}
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(doc, '%s') WHERE json_each.value IN (%s))",
			jsonPath(c.Field), strings.Join(placeholders, ", ")), nil
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		operators := map[query.Operator]string{
			query.OpLt:  "<",
			query.OpLte: "<=",
			query.OpGt:  ">",
			query.OpGte: ">=",
		}
		*params = append(*params, prepareValue(c.Value))
		return fmt.Sprintf("%s %s ?", field, operators[c.Op]), nil
	}
	return "", fmt.Errorf("unsupported operator %q", c.Op)
}

// selectSQL renders a full SELECT over the collection table.
func selectSQL(collection string, filter query.Filter, opts findShape) (string, []any, error) {
	var params []any
	where, err := buildWhere(filter, &params)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT doc FROM %s WHERE %s", tableName(collection), where)
	if len(opts.sorts) > 0 {
		clauses := make([]string, 0, len(opts.sorts))
		for _, s := range opts.sorts {
			direction := "ASC"
			if s.Desc {
				direction = "DESC"
			}
			clauses = append(clauses, fmt.Sprintf("%s %s", fieldSQL(s.Field), direction))
		}
		sb.WriteString(" ORDER BY " + strings.Join(clauses, ", "))
	}
	if opts.limit > 0 || opts.offset > 0 {
		limit := opts.limit
		if limit == 0 {
			limit = -1
		}
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", limit, opts.offset)
	}
	return sb.String(), params, nil
}

type findShape struct {
	sorts  []query.Sort
	limit  int
	offset int
}

// updateSQL renders a field-wise json_set over the matching documents.
// Keys are applied in sorted order so generated SQL is deterministic.
func updateSQL(collection string, filter query.Filter, changes schema.Document) (string, []any, error) {
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	expr := "doc"
	var params []any
	for _, key := range keys {
		encoded, err := json.Marshal(prepareValue(changes[key]))
		if err != nil {
			return "", nil, fmt.Errorf("could not encode field %q: %w", key, err)
		}
		expr = fmt.Sprintf("json_set(%s, '%s', json(?))", expr, jsonPath(key))
		params = append(params, string(encoded))
	}

	where, err := buildWhere(filter, &params)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET doc = %s WHERE %s", tableName(collection), expr, where)
	return sql, params, nil
}

// insertSQL renders a multi-row insert of encoded documents.
func insertSQL(collection string, docs []schema.Document) (string, []any, error) {
	placeholders := make([]string, 0, len(docs))
	params := make([]any, 0, len(docs))
	for _, doc := range docs {
		encoded, err := json.Marshal(encodable(doc))
		if err != nil {
			return "", nil, fmt.Errorf("could not encode document: %w", err)
		}
		placeholders = append(placeholders, "(json(?))")
		params = append(params, string(encoded))
	}
	sql := fmt.Sprintf("INSERT INTO %s (doc) VALUES %s", tableName(collection), strings.Join(placeholders, ", "))
	return sql, params, nil
}

// encodable rewrites store-native values into their JSON document form so
// comparisons in SQL and in memory agree.
func encodable(doc schema.Document) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		out[key] = encodableValue(value)
	}
	return out
}

func encodableValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case schema.Document:
		return encodable(v)
	case map[string]any:
		return encodable(schema.Document(v))
	case []any:
		out := make([]any, len(v))
		for i, element := range v {
			out[i] = encodableValue(element)
		}
		return out
	}
	return value
}

func deleteSQL(collection string, filter query.Filter) (string, []any, error) {
	var params []any
	where, err := buildWhere(filter, &params)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", tableName(collection), where), params, nil
}

// indexSQL renders the expression index backing an IndexSpec, partial
// when a predicate is given. Index predicates cannot be
// parameterized, so the filter is rendered with literal values.
func indexSQL(collection, indexName string, fields []string, unique bool, where query.Filter) (string, error) {
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, fieldSQL(field))
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	sql := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, quoteIdentifier(indexName), tableName(collection), strings.Join(columns, ", "))
	if where != nil {
		clause, err := literalWhere(where)
		if err != nil {
			return "", err
		}
		sql += " WHERE " + clause
	}
	return sql, nil
}

func literalWhere(filter query.Filter) (string, error) {
	switch f := filter.(type) {
	case query.Condition:
		if f.Op != query.OpEq {
			return "", fmt.Errorf("index predicates only support equality, got %q", f.Op)
		}
		literal, err := literalValue(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", fieldSQL(f.Field), literal), nil
	case query.Group:
		connector := " AND "
		if f.Logic == query.LogicOr {
			connector = " OR "
		}
		parts := make([]string, 0, len(f.Filters))
		for _, child := range f.Filters {
			part, err := literalWhere(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, connector) + ")", nil
	}
	return "", fmt.Errorf("unsupported filter node %T in index predicate", filter)
}

func literalValue(value any) (string, error) {
	switch v := value.(type) {
	case int:
		return fmt.Sprintf("%d", v), nil
	case int64:
		return fmt.Sprintf("%d", v), nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	}
	return "", fmt.Errorf("unsupported literal %T in index predicate", value)
}
