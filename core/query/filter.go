// Package query defines the typed filter tree built from deserialized
// schema filters, plus the in-memory evaluator and result shaping helpers
// document stores share.
package query

import (
	"sort"

	"github.com/attara/chronicle/core/schema"
)

// Operator is a condition operator.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNeq       Operator = "neq"
	OpIn        Operator = "in"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpExists    Operator = "exists"
	OpNotExists Operator = "nexists"
	// OpContains matches when a stored list intersects the value set.
	OpContains Operator = "contains"
)

// Logic joins the branches of a filter group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Filter is a node of the filter tree.
type Filter interface {
	isFilter()
}

// Condition matches one dotted field path against a value.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

func (Condition) isFilter() {}

// Group joins child filters with a logical operator.
type Group struct {
	Logic   Logic
	Filters []Filter
}

func (Group) isFilter() {}

// Cond builds a single condition.
func Cond(field string, op Operator, value any) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// And joins filters conjunctively, flattening trivial cases.
func And(filters ...Filter) Filter {
	return group(LogicAnd, filters)
}

// Or joins filters disjunctively, flattening trivial cases.
func Or(filters ...Filter) Filter {
	return group(LogicOr, filters)
}

func group(logic Logic, filters []Filter) Filter {
	kept := filters[:0]
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Group{Logic: logic, Filters: kept}
}

// FromDocument converts deserialized schema filters into a filter tree.
// Each field contributes one branch: equality candidates, comparison
// ranges and the match-absent fallback are OR'd together, fields are
// AND'd. A nil result matches every document.
func FromDocument(filters schema.Document) Filter {
	if len(filters) == 0 {
		return nil
	}
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	branches := make([]Filter, 0, len(fields))
	for _, field := range fields {
		qv, ok := filters[field].(*schema.QueryValue)
		if !ok {
			continue
		}
		if branch := fieldFilter(field, qv); branch != nil {
			branches = append(branches, branch)
		}
	}
	return And(branches...)
}

func fieldFilter(field string, qv *schema.QueryValue) Filter {
	if qv.Nil {
		return Cond(field, OpEq, nil)
	}
	var alternatives []Filter
	if len(qv.Eq) > 0 {
		if qv.Contains {
			alternatives = append(alternatives, Cond(field, OpContains, qv.Eq))
		} else if len(qv.Eq) == 1 {
			alternatives = append(alternatives, Cond(field, OpEq, qv.Eq[0]))
		} else {
			alternatives = append(alternatives, Cond(field, OpIn, qv.Eq))
		}
	}
	if len(qv.Ranges) > 0 {
		// Several signs on one field bound a single interval.
		bounds := make([]Filter, 0, len(qv.Ranges))
		for _, sv := range qv.Ranges {
			bounds = append(bounds, Cond(field, rangeOp(sv.Sign), sv.Value))
		}
		alternatives = append(alternatives, And(bounds...))
	}
	if qv.MatchAbsent {
		alternatives = append(alternatives, Cond(field, OpNotExists, nil))
	}
	return Or(alternatives...)
}

func rangeOp(sign schema.ComparisonSign) Operator {
	switch sign {
	case schema.SignGreaterOrEqual:
		return OpGte
	case schema.SignGreater:
		return OpGt
	case schema.SignLowerOrEqual:
		return OpLte
	default:
		return OpLt
	}
}
