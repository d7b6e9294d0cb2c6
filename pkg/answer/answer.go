// Package answer implements the Answerer component: invokes the
// generative model at the configured tier with the built augmentation
// prompt and persists the response as a Result.
package answer

import (
	"context"

	"github.com/ragcore/ragcore/pkg/apperr"
	"github.com/ragcore/ragcore/pkg/genmodel"
	"github.com/ragcore/ragcore/pkg/querystate"
)

const component = "answer"

// ResultStore is the subset of querystate.Store the Answerer needs.
type ResultStore interface {
	CreateResult(ctx context.Context, queryID, responseText string) (*querystate.Result, error)
}

// Answerer invokes the generative model to produce a final answer and
// persists it as a Result.
type Answerer struct {
	models ModelRegistry
	store  ResultStore
}

// ModelRegistry is the subset of genmodel.Registry the Answerer needs.
type ModelRegistry interface {
	Get(tier genmodel.Tier) (genmodel.Model, error)
}

func New(models ModelRegistry, store ResultStore) *Answerer {
	return &Answerer{models: models, store: store}
}

const answerSystemPrompt = "You are a research assistant answering questions about a curated corpus of academic works, using only the sources you are given."

// Answer invokes the generative model with prompt and persists the
// response as a new Result tied to q.ID. useFullModel selects the
// FULL tier; otherwise FAST. It refuses to run if q's upstream vector
// embedding is in an error state, since the evidence the prompt was
// built from may be stale relative to that failure.
func (a *Answerer) Answer(ctx context.Context, q *querystate.Query, prompt string, useFullModel bool) (*querystate.Result, error) {
	if prompt == "" {
		return nil, apperr.New(apperr.PreconditionFailed, component, "Answer", "prompt is empty", nil)
	}
	if q.VectorStatus == querystate.VecErr {
		return nil, apperr.New(apperr.PreconditionFailed, component, "Answer", "query vector_status is vec_err", nil)
	}

	tier := genmodel.TierFull
	if !useFullModel {
		tier = genmodel.TierFast
	}
	model, err := a.models.Get(tier)
	if err != nil {
		return nil, err
	}

	responseText, err := model.Generate(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	result, err := a.store.CreateResult(ctx, q.ID, responseText)
	if err != nil {
		return nil, err
	}
	return result, nil
}
