package risk

import "math"

// Score sums the weights of the given conditions. Unknown conditions
// contribute 0 and duplicates are counted each time they appear. The sum
// saturates at math.MaxInt.
func Score(conditions []string, idx *Index) int {
	total := 0
	for _, c := range conditions {
		w := idx.Weight(c)
		if w > math.MaxInt-total {
			return math.MaxInt
		}
		total += w
	}
	return total
}

// Unknown returns the distinct conditions that have no weight in the index,
// in first-seen order.
func Unknown(conditions []string, idx *Index) []string {
	var list []string
	seen := make(map[string]bool)
	for _, c := range conditions {
		if idx.Has(c) || seen[c] {
			continue
		}
		seen[c] = true
		list = append(list, c)
	}
	return list
}
