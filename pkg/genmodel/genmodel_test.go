package genmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistryRequiresAPIKey(t *testing.T) {
	_, err := NewRegistry(context.Background(), Config{})
	require.Error(t, err)
}

func TestStubModelRecordsCalls(t *testing.T) {
	m := &StubModel{Response: "an answer"}
	out, err := m.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	require.Equal(t, "an answer", out)
	require.Len(t, m.Calls, 1)
	require.Equal(t, "user", m.Calls[0].UserPrompt)
}
