package genmodel

import "context"

// StubModel is a deterministic in-memory Model used by tests in
// pkg/expansion and pkg/answer that exercise prompt plumbing without
// a live genai credential.
type StubModel struct {
	Response string
	Err      error
	Calls    []StubCall
}

type StubCall struct {
	SystemPrompt string
	UserPrompt   string
}

func (s *StubModel) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.Calls = append(s.Calls, StubCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}

func (s *StubModel) Name() string { return "stub" }
func (s *StubModel) Close() error { return nil }

var _ Model = (*StubModel)(nil)
