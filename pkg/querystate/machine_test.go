package querystate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/apperr"
)

func TestRequireVectorStatusGate(t *testing.T) {
	q := &Query{State: StateCreated, VectorStatus: VecNone}
	err := RequireVectorStatus(q)
	require.Equal(t, apperr.PreconditionFailed, apperr.KindOf(err))

	q.VectorStatus = VecDone
	q.EmbeddingOriginal = []float32{0.1}
	require.NoError(t, RequireVectorStatus(q))
}

func TestTransitionToClearsDownstream(t *testing.T) {
	q := &Query{
		State:                 StateConsolidated,
		VectorStatus:          VecDone,
		EmbeddingOriginal:     []float32{1, 2},
		RetrievedContext:      []RetrievedChunk{{ChunkID: "c1"}},
		CleanRetrievalContext: []ConsolidatedGroup{{WorkID: "w1"}},
	}

	TransitionTo(q, StateRetrieved)
	require.Equal(t, StateRetrieved, q.State)
	require.NotNil(t, q.EmbeddingOriginal)
	require.NotEmpty(t, q.RetrievedContext)
	require.Nil(t, q.CleanRetrievalContext)

	TransitionTo(q, StateEmbedded)
	require.Nil(t, q.RetrievedContext)
	require.Equal(t, VecNone, q.VectorStatus)
}

func TestReached(t *testing.T) {
	require.True(t, Reached(StateAnswered, StateRetrieved))
	require.False(t, Reached(StateCreated, StateRetrieved))
}
