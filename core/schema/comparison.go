package schema

import "strings"

// ComparisonSign is an optional prefix on string query values of
// comparison-enabled numeric and date fields, e.g. ">=3" or "<2017-05-15".
type ComparisonSign string

const (
	SignGreaterOrEqual ComparisonSign = ">="
	SignGreater        ComparisonSign = ">"
	SignLowerOrEqual   ComparisonSign = "<="
	SignLower          ComparisonSign = "<"
)

// comparisonSigns is ordered so that two-character signs are tried before
// their one-character prefixes.
var comparisonSigns = []ComparisonSign{
	SignGreaterOrEqual,
	SignGreater,
	SignLowerOrEqual,
	SignLower,
}

// SignValue is a parsed comparison-sign query value.
type SignValue struct {
	Sign  ComparisonSign
	Value any
}

// ParseComparison splits a leading comparison sign off a string query value.
// The second return is false when the value carries no sign.
func ParseComparison(value string) (ComparisonSign, string, bool) {
	for _, sign := range comparisonSigns {
		if strings.HasPrefix(value, string(sign)) {
			return sign, value[len(sign):], true
		}
	}
	return "", value, false
}

// QueryValue is the deserialized form of one field's query filter, produced
// by DeserializeQuery in place of the raw client value. Equality candidates
// and comparison ranges are combined downstream into an OR of conditions.
type QueryValue struct {
	// Eq holds store-native equality candidates.
	Eq []any
	// Ranges holds parsed comparison-sign values, store-native.
	Ranges []SignValue
	// MatchAbsent is set when the field's default value is among the
	// equality candidates: documents storing nothing must match too.
	MatchAbsent bool
	// Nil marks an explicit "stored value is null" filter.
	Nil bool
	// Contains switches matching to containment on a stored list.
	Contains bool
}
