// Package usecase orchestrates one message turn: admission, context load,
// model call, persistence, reply.
package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/gate"
)

const (
	defaultMaxContextTurns = 20
	statusComplete         = "complete"
)

// Admitter decides whether a message should be processed at all. Rejections
// are silent: no reply, no downstream call.
type Admitter interface {
	Admit(id gate.Identity, now time.Time) gate.Verdict
}

// VerdictRecorder receives admission decisions for monitoring. Recording is
// best-effort and must not influence the message path.
type VerdictRecorder interface {
	Record(ctx context.Context, ev gate.Event) error
}

// LLMClient generates a reply for the assembled conversation.
type LLMClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// Messenger sends replies back to the chat.
type Messenger interface {
	SendMessage(chatID int64, text string) error
	SimulateTyping(ctx context.Context, chatID int64) error
}

// HistoryStore loads and persists completed conversation turns.
type HistoryStore interface {
	RecentTurns(ctx context.Context, chatKey string, limit int) ([]domain.Turn, error)
	SaveTurn(ctx context.Context, chatKey, question, answer string) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// RelayService relays inbound chat messages to the model and the reply back
// to the chat, with the abuse gate in front.
type RelayService struct {
	gate      Admitter
	llm       LLMClient
	messenger Messenger
	history   HistoryStore
	stats     VerdictRecorder

	maxContextTurns int
	typing          bool
	now             func() time.Time
}

// MessageInput is one inbound chat message. A zero ReceivedAt means "now".
type MessageInput struct {
	ChatID     int64
	Text       string
	ReceivedAt time.Time
}

type RelayOption func(*RelayService)

func WithMaxContextTurns(n int) RelayOption {
	return func(s *RelayService) { s.maxContextTurns = n }
}

// WithVerdictStats enables best-effort recording of admission decisions.
func WithVerdictStats(rec VerdictRecorder) RelayOption {
	return func(s *RelayService) { s.stats = rec }
}

// WithTyping toggles the typing simulation before replies.
func WithTyping(enabled bool) RelayOption {
	return func(s *RelayService) { s.typing = enabled }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RelayOption {
	return func(s *RelayService) { s.now = now }
}

func NewRelayService(g Admitter, llm LLMClient, m Messenger, h HistoryStore, opts ...RelayOption) (*RelayService, error) {
	if g == nil {
		return nil, errors.New("usecase: admitter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	s := &RelayService{
		gate:            g,
		llm:             llm,
		messenger:       m,
		history:         h,
		maxContextTurns: defaultMaxContextTurns,
		typing:          true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxContextTurns <= 0 {
		s.maxContextTurns = defaultMaxContextTurns
	}
	return s, nil
}

// HandleMessage runs one full turn. A gate rejection returns nil without any
// visible effect. An upstream model failure sends the fixed fallback text and
// returns the wrapped error.
func (s *RelayService) HandleMessage(ctx context.Context, in MessageInput) error {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return newError(ErrorInvalidInput, "empty_message", nil)
	}

	now := in.ReceivedAt
	if now.IsZero() {
		now = s.now()
	}

	id := gate.ChatIdentity(in.ChatID)
	verdict := s.gate.Admit(id, now)
	if s.stats != nil {
		_ = s.stats.Record(ctx, gate.Event{Identity: id, Verdict: verdict, At: now})
	}
	if verdict == gate.Reject {
		return nil
	}

	chatKey := string(id)
	history, err := s.history.RecentTurns(ctx, chatKey, s.maxContextTurns)
	if err != nil {
		return newError(ErrorInternal, "history_load_error", err)
	}

	raw, err := s.llm.Chat(ctx, buildPromptMessages(text, history))
	if err != nil {
		_ = s.messenger.SendMessage(in.ChatID, fallbackReply)
		if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
			return newError(ErrorRateLimited, "gemini_rate_limited", err)
		}
		return newError(ErrorUpstream, "gemini_error", err)
	}

	reply := strings.ToLower(strings.TrimSpace(raw))
	if reply == "" {
		reply = emptyReply
	}

	if err := s.history.SaveTurn(ctx, chatKey, text, reply); err != nil {
		return newError(ErrorInternal, "history_save_error", err)
	}

	if s.typing {
		// Typing failures do not block the reply.
		_ = s.messenger.SimulateTyping(ctx, in.ChatID)
	}

	if err := s.messenger.SendMessage(in.ChatID, reply); err != nil {
		return newError(ErrorUpstream, "telegram_send_error", err)
	}
	return nil
}

// HandleStart answers the /start command with the fixed greeting.
func (s *RelayService) HandleStart(_ context.Context, chatID int64) error {
	if err := s.messenger.SendMessage(chatID, startGreeting); err != nil {
		return newError(ErrorUpstream, "telegram_send_error", err)
	}
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
