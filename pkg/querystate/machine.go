package querystate

import (
	"fmt"

	"github.com/ragcore/ragcore/pkg/apperr"
)

const component = "querystate"

// Require returns a PreconditionFailed error naming predicate if q is
// not at or beyond the given state, otherwise nil. Stages call this
// before doing any work.
func Require(q *Query, minState State, predicate string) error {
	if !Reached(q.State, minState) {
		return apperr.New(apperr.PreconditionFailed, component, "Require",
			fmt.Sprintf("predicate %q not satisfied (query is %q)", predicate, q.State), nil)
	}
	return nil
}

// RequireVectorStatus is the specific precondition the Retrieval
// Orchestrator checks: Query.vector_status = vec and an original
// embedding present.
func RequireVectorStatus(q *Query) error {
	if q.VectorStatus != VecDone || len(q.EmbeddingOriginal) == 0 {
		return apperr.New(apperr.PreconditionFailed, component, "RequireVectorStatus",
			"predicate \"vector_status = vec\" not satisfied", nil)
	}
	return nil
}

// RequireRetrieved is the Consolidator's precondition.
func RequireRetrieved(q *Query) error {
	if len(q.RetrievedContext) == 0 {
		return apperr.New(apperr.PreconditionFailed, component, "RequireRetrieved",
			"predicate \"retrieved_context non-empty\" not satisfied", nil)
	}
	return nil
}

// TransitionTo moves q to newState, clearing every field strictly
// downstream of newState. A transition to an
// earlier state is permitted (e.g. re-retrieve) and clears derived
// fields without deleting past Results, which are owned outside Query.
func TransitionTo(q *Query, newState State) {
	q.State = newState
	switch newState {
	case StateCreated:
		q.ExpandedQueries = nil
		q.HydeAnswer = ""
		q.Intent = ""
		q.Entities = nil
		q.ParseWarning = false
		clearEmbeddings(q)
		clearRetrieval(q)
		clearConsolidation(q)
	case StateExpanded:
		clearEmbeddings(q)
		clearRetrieval(q)
		clearConsolidation(q)
	case StateEmbedded:
		clearRetrieval(q)
		clearConsolidation(q)
	case StateRetrieved:
		clearConsolidation(q)
	case StateConsolidated, StateAnswered:
		// nothing further downstream to clear
	}
}

func clearEmbeddings(q *Query) {
	q.EmbeddingOriginal = nil
	q.EmbeddingsMQE = nil
	q.EmbeddingHyde = nil
	q.VectorStatus = VecNone
}

func clearRetrieval(q *Query) {
	q.RetrievedContext = nil
}

func clearConsolidation(q *Query) {
	q.CleanRetrievalContext = nil
}
