package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/ragcore/ragcore/pkg/logger"
)

// searchTarget is one unit of fan-out work; GetID names it for error
// logging. Covers both embedding vectors (dense search) and lexical
// query strings under one generic fan-out helper.
type searchTarget interface {
	GetID() string
}

type searchResult[R any] struct {
	TargetID string
	Results  R
	Err      error
}

// parallelSearch runs fn over every target concurrently, recovering
// panics into errors so one bad target can't hang the others, and
// returns one result per target (order not guaranteed to match
// input order — callers that care, don't here: every caller reduces
// with fusion.MaxPool, which is order-independent).
func parallelSearch[T searchTarget, R any](ctx context.Context, targets []T, fn func(context.Context, T) (R, error)) []searchResult[R] {
	if len(targets) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	out := make(chan searchResult[R], len(targets))

	for _, target := range targets {
		wg.Add(1)
		go func(t T) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Component(component).Error("panic in parallel search", "target", t.GetID(), "panic", r)
					out <- searchResult[R]{TargetID: t.GetID(), Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			res, err := fn(ctx, t)
			out <- searchResult[R]{TargetID: t.GetID(), Results: res, Err: err}
		}(target)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]searchResult[R], 0, len(targets))
	for r := range out {
		results = append(results, r)
	}
	return results
}
