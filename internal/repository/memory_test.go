package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_EmptyChat(t *testing.T) {
	m := NewMemory()
	turns, err := m.RecentTurns(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestMemory_SaveAndLoad(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "chat-1", "hello", "hey"))
	require.NoError(t, m.SaveTurn(ctx, "chat-1", "how are you", "fine"))

	turns, err := m.RecentTurns(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "hello", turns[0].Question)
	require.Equal(t, "hey", turns[0].Answer)
	require.Equal(t, statusComplete, turns[0].Status)
	require.Equal(t, "fine", turns[1].Answer)
	require.NotEmpty(t, turns[0].TurnID)
}

func TestMemory_LimitKeepsNewest(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.SaveTurn(ctx, "chat-1", fmt.Sprintf("q%d", i), "a"))
	}

	turns, err := m.RecentTurns(ctx, "chat-1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "q3", turns[0].Question)
	require.Equal(t, "q4", turns[1].Question)
}

func TestMemory_CapTrimsOldest(t *testing.T) {
	m := NewMemory(WithMaxTurns(3))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.SaveTurn(ctx, "chat-1", fmt.Sprintf("q%d", i), "a"))
	}

	turns, err := m.RecentTurns(ctx, "chat-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "q2", turns[0].Question)
}

func TestMemory_ChatsAreIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "chat-1", "q1", "a1"))
	require.NoError(t, m.SaveTurn(ctx, "chat-2", "q2", "a2"))

	turns, err := m.RecentTurns(ctx, "chat-2", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "q2", turns[0].Question)
}

func TestMemory_CleanupEvictsIdleChats(t *testing.T) {
	m := NewMemory(WithMemoryIdleTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "chat-1", "q", "a"))

	m.Cleanup(time.Now().Add(2 * time.Minute))

	turns, err := m.RecentTurns(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestMemory_CleanupKeepsActiveChats(t *testing.T) {
	m := NewMemory(WithMemoryIdleTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "chat-1", "q", "a"))

	m.Cleanup(time.Now())

	turns, err := m.RecentTurns(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
}

func TestMemory_ReturnedSliceIsACopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveTurn(ctx, "chat-1", "q", "a"))
	turns, err := m.RecentTurns(ctx, "chat-1", 10)
	require.NoError(t, err)

	turns[0].Question = "mutated"

	again, err := m.RecentTurns(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Equal(t, "q", again[0].Question)
}
