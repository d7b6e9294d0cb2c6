package expansion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/pkg/genmodel"
)

type stubPrompts struct{}

func (stubPrompts) Render(_ context.Context, functionTag string, vars map[string]string) (string, error) {
	return "Expand: " + vars["original_query"], nil
}

func TestExpandParsesJSONResponse(t *testing.T) {
	model := &genmodel.StubModel{Response: `Here you go: {"expanded": ["a", "b", "A"], "hyde": "a passage", "intent": "mechanism", "entities": ["Dopamine", "dopamine"]}`}
	e := New(model, stubPrompts{})

	out, err := e.Expand(context.Background(), "what causes X")
	require.NoError(t, err)
	require.False(t, out.ParseWarning)
	require.Equal(t, []string{"a", "b"}, out.Expanded)
	require.Equal(t, "MECHANISM", out.Intent)
	require.Equal(t, []string{"Dopamine"}, out.Entities)
}

func TestExpandParsesLabeledResponse(t *testing.T) {
	model := &genmodel.StubModel{Response: "EXPANDED: query one | query two\nHYDE: hypothetical passage\nINTENT: comparison\nENTITIES: dopamine, serotonin"}
	e := New(model, stubPrompts{})

	out, err := e.Expand(context.Background(), "compare x and y")
	require.NoError(t, err)
	require.False(t, out.ParseWarning)
	require.Equal(t, "COMPARISON", out.Intent)
	require.Equal(t, []string{"query one", "query two"}, out.Expanded)
}

func TestExpandFallsBackToUnknownOnDoubleParseFailure(t *testing.T) {
	model := &genmodel.StubModel{Response: "not structured at all"}
	e := New(model, stubPrompts{})

	out, err := e.Expand(context.Background(), "anything")
	require.NoError(t, err)
	require.True(t, out.ParseWarning)
	require.Equal(t, "UNKNOWN", out.Intent)
	require.Empty(t, out.Expanded)
}

func TestExpandRejectsEmptyQuery(t *testing.T) {
	e := New(&genmodel.StubModel{}, stubPrompts{})
	_, err := e.Expand(context.Background(), "   ")
	require.Error(t, err)
}
