package paramstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatic_HappyPath(t *testing.T) {
	s := NewStatic(map[string]string{"/chat-relay/gemini-api-key": "key-123"})
	v, err := s.GetParameter(context.Background(), "/chat-relay/gemini-api-key")
	require.NoError(t, err)
	require.Equal(t, "key-123", v)
}

func TestStatic_MissingParameter(t *testing.T) {
	s := NewStatic(nil)
	_, err := s.GetParameter(context.Background(), "/chat-relay/gemini-api-key")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestStatic_EmptyName(t *testing.T) {
	s := NewStatic(map[string]string{"": "v"})
	_, err := s.GetParameter(context.Background(), "  ")
	require.Error(t, err)
}

func TestStatic_CopiesInput(t *testing.T) {
	src := map[string]string{"/p": "before"}
	s := NewStatic(src)
	src["/p"] = "after"
	v, err := s.GetParameter(context.Background(), "/p")
	require.NoError(t, err)
	require.Equal(t, "before", v)
}
