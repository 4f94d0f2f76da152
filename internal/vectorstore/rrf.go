package vectorstore

import "sort"

// rrfK is the Reciprocal Rank Fusion constant, binding per the spec.
const rrfK = 60

// ReciprocalRankFusion merges any number of ranked result lists into one,
// scoring each point by score(d) = sum(1 / (k + rank_i(d))) over every list
// it appears in, then sorting descending by fused score.
func ReciprocalRankFusion(lists ...[]ScoredPoint) []ScoredPoint {
	scores := make(map[string]float64)
	payloads := make(map[string]map[string]any)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, p := range list {
			if _, seen := scores[p.ID]; !seen {
				order = append(order, p.ID)
				payloads[p.ID] = p.Payload
			}
			scores[p.ID] += 1.0 / float64(rrfK+rank+1)
		}
	}

	out := make([]ScoredPoint, len(order))
	for i, id := range order {
		out[i] = ScoredPoint{ID: id, Score: scores[id], Payload: payloads[id]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
