// Package telegram wraps the Bot API client behind the small surface the
// relay needs: a long-poll update channel, plain-text sends, and the typing
// simulation used to pace replies.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the minimal Bot API interface required by Client.
// *tgbotapi.BotAPI satisfies this interface.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client wraps a Telegram bot for sending replies and receiving updates.
type Client struct {
	api botAPI

	// typingSpan is the total length of the typing simulation; typingEvery
	// is how often the chat action is refreshed (Telegram shows "typing..."
	// for about five seconds per action).
	typingSpan  time.Duration
	typingEvery time.Duration
}

type Option func(*Client)

func WithTypingSpan(d time.Duration) Option {
	return func(c *Client) { c.typingSpan = d }
}

func WithTypingEvery(d time.Duration) Option {
	return func(c *Client) { c.typingEvery = d }
}

const (
	defaultTypingSpan  = 45 * time.Second
	defaultTypingEvery = 5 * time.Second
)

// New creates a Client by authenticating against the Bot API with token.
func New(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: token must not be empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate bot: %w", err)
	}
	return NewWithAPI(api, opts...)
}

// NewWithAPI creates a Client over an existing Bot API implementation.
func NewWithAPI(api botAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	c := &Client{
		api:         api,
		typingSpan:  defaultTypingSpan,
		typingEvery: defaultTypingEvery,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.typingEvery <= 0 {
		c.typingEvery = defaultTypingEvery
	}
	return c, nil
}

// Updates returns the long-poll update channel. timeout is the long-poll
// timeout in seconds.
func (c *Client) Updates(timeout int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return c.api.GetUpdatesChan(u)
}

// StopPolling closes the long-poll update channel.
func (c *Client) StopPolling() {
	c.api.StopReceivingUpdates()
}

// SendMessage sends a plain-text message to the chat.
func (c *Client) SendMessage(chatID int64, text string) error {
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (c *Client) sendTyping(chatID int64) error {
	if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram: send chat action: %w", err)
	}
	return nil
}

// SimulateTyping shows the typing indicator for the configured span,
// refreshing the chat action on each tick. Returns early when ctx is done.
func (c *Client) SimulateTyping(ctx context.Context, chatID int64) error {
	rounds := int(c.typingSpan / c.typingEvery)
	for i := 0; i < rounds; i++ {
		if err := c.sendTyping(chatID); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.typingEvery):
		}
	}
	return nil
}

// DecodeUpdate parses a webhook request body into an Update.
func DecodeUpdate(r io.Reader) (*tgbotapi.Update, error) {
	var update tgbotapi.Update
	dec := json.NewDecoder(r)
	if err := dec.Decode(&update); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}
	return &update, nil
}
