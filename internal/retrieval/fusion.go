package retrieval

import "sort"

// rrfK is the reciprocal-rank fusion constant.
const rrfK = 60

// fuseRRF merges ranked ID lists by reciprocal-rank fusion: score(id) = sum 1/(k + rank).
// Ties keep first-seen order across the lists.
func fuseRRF(lists ...[]string) []string {
	scores := make(map[string]float64)
	var order []string
	for _, list := range lists {
		for rank, id := range list {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	return order
}
