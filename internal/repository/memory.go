package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-relay/internal/domain"
)

// Memory keeps conversation history in process memory, one capped slice of
// turns per chat. Chats idle past the retention TTL are evicted by the
// janitor so the map does not grow forever.
type Memory struct {
	mu    sync.Mutex
	chats map[string]*chatHistory

	maxTurns     int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type chatHistory struct {
	turns    []domain.Turn
	lastSeen time.Time
}

type MemoryOption func(*Memory)

func WithMaxTurns(n int) MemoryOption {
	return func(m *Memory) { m.maxTurns = n }
}

func WithMemoryIdleTTL(d time.Duration) MemoryOption {
	return func(m *Memory) { m.idleTTL = d }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryOption {
	return func(m *Memory) { m.cleanupEvery = d }
}

const (
	defaultMaxTurns     = 50
	defaultIdleTTL      = 12 * time.Hour
	defaultCleanupEvery = 10 * time.Minute
)

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		chats:        make(map[string]*chatHistory),
		maxTurns:     defaultMaxTurns,
		idleTTL:      defaultIdleTTL,
		cleanupEvery: defaultCleanupEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxTurns <= 0 {
		m.maxTurns = defaultMaxTurns
	}
	return m
}

// RecentTurns returns up to limit most recent turns for the chat in
// chronological order.
func (m *Memory) RecentTurns(_ context.Context, chatKey string, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.chats[chatKey]
	if !ok {
		return nil, nil
	}

	turns := h.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// SaveTurn appends a completed turn, trimming the oldest entries past the
// per-chat cap.
func (m *Memory) SaveTurn(_ context.Context, chatKey, question, answer string) error {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.chats[chatKey]
	if !ok {
		h = &chatHistory{}
		m.chats[chatKey] = h
	}
	h.lastSeen = now

	h.turns = append(h.turns, domain.Turn{
		TurnID:   uuid.NewString(),
		ChatKey:  chatKey,
		Question: question,
		Answer:   answer,
		Status:   statusComplete,
	})
	if len(h.turns) > m.maxTurns {
		h.turns = h.turns[len(h.turns)-m.maxTurns:]
	}
	return nil
}

// Cleanup evicts chats that have not saved a turn within the idle TTL.
func (m *Memory) Cleanup(now time.Time) {
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, h := range m.chats {
		if h.lastSeen.Before(cutoff) {
			delete(m.chats, k)
		}
	}
}

// StartJanitor runs Cleanup on a ticker until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context) {
	if m.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(m.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Cleanup(time.Now())
			}
		}
	}()
}
