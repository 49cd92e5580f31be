package risk

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// MaxSuggestedWeight is the upper bound of the weight range offered to
// operators. Larger weights are accepted by the index.
const MaxSuggestedWeight = 10

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("invalid risk index configuration")

var defaultWeights = map[string]int{
	"hypertension":        3,
	"diabetes":            5,
	"learning_disability": 1,
	"asthma":              2,
	"copd":                4,
	"heart_failure":       5,
	"mental_health":       2,
}

// ConfigurationError describes a risk index entry that can not be used.
type ConfigurationError struct {
	Condition string
	Weight    int
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: condition %q (weight: %d): %s", ErrConfiguration, e.Condition, e.Weight, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DefaultWeights returns a copy of the documented default risk weights.
func DefaultWeights() map[string]int {
	return maps.Clone(defaultWeights)
}

// Index maps normalized condition keys to non-negative weights.
// It is immutable once built and safe for concurrent use.
type Index struct {
	weights map[string]int
}

// NewIndex builds an index from the given weights. Keys are normalized with
// NormalizeCondition. Negative weights, empty keys, and keys that collide
// after normalization are rejected.
func NewIndex(weights map[string]int) (*Index, error) {
	idx := &Index{weights: make(map[string]int, len(weights))}

	// sorted so the reported error is stable across runs
	for _, k := range slices.Sorted(maps.Keys(weights)) {
		w := weights[k]
		key := NormalizeCondition(k)
		if key == "" {
			return nil, &ConfigurationError{Condition: k, Weight: w, Reason: "empty condition name"}
		}
		if w < 0 {
			return nil, &ConfigurationError{Condition: key, Weight: w, Reason: "weight must not be negative"}
		}
		if prev, ok := idx.weights[key]; ok && prev != w {
			return nil, &ConfigurationError{Condition: key, Weight: w, Reason: fmt.Sprintf("conflicts with existing weight %d", prev)}
		}
		idx.weights[key] = w
	}

	return idx, nil
}

// NewIndexWithOverrides merges overrides on top of DefaultWeights.
func NewIndexWithOverrides(overrides map[string]int) (*Index, error) {
	m, err := Merge(DefaultWeights(), overrides)
	if err != nil {
		return nil, err
	}
	return NewIndex(m)
}

// Merge layers each of the given weight maps over base, in order. Keys are
// normalized so an override of "Diabetes" replaces "diabetes". Keys within
// one map that normalize to the same condition with different weights are a
// ConfigurationError. The inputs are not modified.
func Merge(base map[string]int, layers ...map[string]int) (map[string]int, error) {
	out, err := normalizeLayer(base)
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		n, err := normalizeLayer(l)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, n)
	}
	return out, nil
}

func normalizeLayer(l map[string]int) (map[string]int, error) {
	out := make(map[string]int, len(l))
	for _, k := range slices.Sorted(maps.Keys(l)) {
		w := l[k]
		key := NormalizeCondition(k)
		if key == "" {
			return nil, &ConfigurationError{Condition: k, Weight: w, Reason: "empty condition name"}
		}
		if prev, ok := out[key]; ok && prev != w {
			return nil, &ConfigurationError{Condition: key, Weight: w, Reason: fmt.Sprintf("conflicts with existing weight %d", prev)}
		}
		out[key] = w
	}
	return out, nil
}

// Weight returns the weight for the condition, 0 when unknown.
func (idx *Index) Weight(condition string) int {
	if idx == nil {
		return 0
	}
	return idx.weights[NormalizeCondition(condition)]
}

// Has reports whether the condition has an explicit weight.
func (idx *Index) Has(condition string) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.weights[NormalizeCondition(condition)]
	return ok
}

// Len returns the number of conditions in the index.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.weights)
}

// Conditions returns the sorted condition keys.
func (idx *Index) Conditions() []string {
	if idx == nil {
		return []string{}
	}
	return slices.Sorted(maps.Keys(idx.weights))
}

// Weights returns a copy of the underlying weights.
func (idx *Index) Weights() map[string]int {
	if idx == nil {
		return map[string]int{}
	}
	return maps.Clone(idx.weights)
}
