package fusion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReciprocalRankFusionOrdersByScore(t *testing.T) {
	dense := []Ranked{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	lexical := []Ranked{{ID: "c"}, {ID: "a"}}

	out := ReciprocalRankFusion([][]Ranked{dense, lexical}, 60, 30)
	require.Len(t, out, 3)
	// "a" is rank 1 in dense and rank 2 in lexical: 1/61 + 1/62
	// "c" is rank 3 in dense and rank 1 in lexical: 1/63 + 1/61
	require.Equal(t, "a", out[0].ID)
}

func TestReciprocalRankFusionPermutationInvariant(t *testing.T) {
	list1 := []Ranked{{ID: "x"}, {ID: "y"}}
	list2 := []Ranked{{ID: "y"}, {ID: "x"}}

	a := ReciprocalRankFusion([][]Ranked{list1}, 60, 30)
	b := ReciprocalRankFusion([][]Ranked{list2}, 60, 30)

	// Same multiset of (id, rank) across both orderings of which list
	// holds which ranks keeps the same top-K *set*, since these two
	// invocations visit a symmetric pairing of ranks to ids.
	setA := map[string]float64{}
	for _, f := range a {
		setA[f.ID] = f.RRFScore
	}
	setB := map[string]float64{}
	for _, f := range b {
		setB[f.ID] = f.RRFScore
	}
	require.Equal(t, setA["x"], setB["y"])
	require.Equal(t, setA["y"], setB["x"])
}

func TestReciprocalRankFusionFavorsItemInMoreLists(t *testing.T) {
	list1 := []Ranked{{ID: "b"}, {ID: "a"}}
	list2 := []Ranked{{ID: "a"}}

	out := ReciprocalRankFusion([][]Ranked{list1, list2}, 60, 30)
	// "a": rank 2 in list1 (1/62) + rank 1 in list2 (1/61)
	// "b": rank 1 in list1 only (1/61)
	require.Equal(t, "a", out[0].ID)
}

func TestMaxPoolKeepsMaxScore(t *testing.T) {
	l1 := []Ranked{{ID: "a", Score: 0.5}, {ID: "b", Score: 0.9}}
	l2 := []Ranked{{ID: "a", Score: 0.8}}

	pooled := MaxPool([][]Ranked{l1, l2})
	require.Equal(t, "b", pooled[0].ID)
	require.Equal(t, 0.9, pooled[0].Score)
	require.Equal(t, "a", pooled[1].ID)
	require.Equal(t, 0.8, pooled[1].Score)
}

func TestMaxPoolTieBreakAscendingID(t *testing.T) {
	l1 := []Ranked{{ID: "z", Score: 0.5}, {ID: "a", Score: 0.5}}
	pooled := MaxPool([][]Ranked{l1})
	require.Equal(t, "a", pooled[0].ID)
	require.Equal(t, "z", pooled[1].ID)
}
