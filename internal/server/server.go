// Package server is the HTTP front end: a health endpoint and the Telegram
// webhook intake. It also owns update dispatch, so the long-poll loop and
// the webhook route share one code path.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chat-relay/internal/integrations/telegram"
	"chat-relay/internal/usecase"
)

// Relay is the message-handling surface consumed by the server.
type Relay interface {
	HandleMessage(ctx context.Context, in usecase.MessageInput) error
	HandleStart(ctx context.Context, chatID int64) error
}

type Server struct {
	relay Relay

	// secretToken, when set, must match the X-Telegram-Bot-Api-Secret-Token
	// header on webhook deliveries.
	secretToken   string
	handleTimeout time.Duration
}

type Option func(*Server)

func WithSecretToken(token string) Option {
	return func(s *Server) { s.secretToken = token }
}

func WithHandleTimeout(d time.Duration) Option {
	return func(s *Server) { s.handleTimeout = d }
}

// defaultHandleTimeout covers the model call plus the typing simulation.
const defaultHandleTimeout = 2 * time.Minute

func New(relay Relay, opts ...Option) (*Server, error) {
	if relay == nil {
		return nil, errors.New("server: relay must not be nil")
	}
	s := &Server{
		relay:         relay,
		handleTimeout: defaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handleTimeout <= 0 {
		s.handleTimeout = defaultHandleTimeout
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/telegram/webhook", s.handleWebhook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if s.secretToken != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.secretToken {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	update, err := telegram.DecodeUpdate(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Telegram retries non-200 deliveries, so acknowledge first and handle
	// in the background.
	go s.Dispatch(*update)
	w.WriteHeader(http.StatusOK)
}

// Dispatch routes one update to the relay. Used by both the webhook route
// and the long-poll loop.
func (s *Server) Dispatch(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.handleTimeout)
	defer cancel()

	chatID := msg.Chat.ID

	if msg.IsCommand() {
		if msg.Command() == "start" {
			if err := s.relay.HandleStart(ctx, chatID); err != nil {
				slog.Error("start command failed", "chat", chatID, "err", err)
			}
		}
		return
	}

	if msg.Text == "" {
		return
	}

	in := usecase.MessageInput{
		ChatID:     chatID,
		Text:       msg.Text,
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	}
	if err := s.relay.HandleMessage(ctx, in); err != nil {
		slog.Error("message handling failed", "chat", chatID, "err", err)
	}
}
