// Package fusion combines ranked candidate lists into one using
// Reciprocal Rank Fusion.
package fusion

import "sort"

// Ranked is one entry in an input list, in rank order (1-based rank
// is its index+1 in the slice passed to ReciprocalRankFusion).
type Ranked struct {
	ID    string
	Score float64 // the list's own score, used only for max-pooling, not for RRF itself
}

// Fused is one output entry.
type Fused struct {
	ID        string
	RRFScore  float64
	ListCount int // number of input lists containing ID, used as a tie-break
}

// ReciprocalRankFusion computes rrf_score(c) = Σ 1/(k+rank_i(c)) over
// the given ranked lists and returns the top topK, sorted descending
// by rrf_score, tie-broken by (a) number of lists containing c
// (more is better), then (b) ascending id.
func ReciprocalRankFusion(lists [][]Ranked, k int, topK int) []Fused {
	if k <= 0 {
		k = 60
	}
	scores := make(map[string]float64)
	counts := make(map[string]int)

	for _, list := range lists {
		for rank, item := range list {
			scores[item.ID] += 1.0 / float64(k+rank+1)
			counts[item.ID]++
		}
	}

	out := make([]Fused, 0, len(scores))
	for id, score := range scores {
		out = append(out, Fused{ID: id, RRFScore: score, ListCount: counts[id]})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].ListCount != out[j].ListCount {
			return out[i].ListCount > out[j].ListCount
		}
		return out[i].ID < out[j].ID
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// MaxPool merges several ranked lists of the same kind of score
// (e.g. several dense-search result lists) by keeping, for each id,
// the maximum score across lists, then re-sorts descending by that
// pooled score (ties broken by ascending id). Applies equally to
// dense and lexical pooling.
func MaxPool(lists [][]Ranked) []Ranked {
	best := make(map[string]float64)
	order := make([]string, 0)
	for _, list := range lists {
		for _, item := range list {
			if cur, ok := best[item.ID]; !ok || item.Score > cur {
				if !ok {
					order = append(order, item.ID)
				}
				best[item.ID] = item.Score
			}
		}
	}
	out := make([]Ranked, 0, len(order))
	for _, id := range order {
		out = append(out, Ranked{ID: id, Score: best[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
