package risk

import (
	"strings"
	"unicode"
)

const conditionSeparator = ","

// NormalizeCondition folds case and surrounding whitespace.
func NormalizeCondition(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseConditions splits a comma-separated conditions field into normalized
// keys. Order and duplicates are kept, blank entries are dropped.
// The result is never nil.
func ParseConditions(raw string) []string {
	list := make([]string, 0)
	for _, part := range strings.Split(raw, conditionSeparator) {
		if c := NormalizeCondition(part); c != "" {
			list = append(list, c)
		}
	}
	return list
}

// DisplayName turns a condition key into a label, e.g. heart_failure -> Heart Failure.
func DisplayName(condition string) string {
	words := strings.Fields(strings.ReplaceAll(condition, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
