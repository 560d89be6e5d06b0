// Package notify delivers operator messages.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ErrNotification wraps every delivery failure. Callers log it and move on.
var ErrNotification = errors.New("notification failed")

// Notifier sends a plain-text message.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Log writes messages to the logger instead of delivering them.
type Log struct{ log zerolog.Logger }

// NewLog returns a notifier that only logs.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "notify").Logger()}
}

func (l *Log) Send(_ context.Context, text string) error {
	l.log.Info().Str("text", text).Msg("notification")
	return nil
}

const defaultTelegramBaseURL = "https://api.telegram.org"

// Telegram sends alerts via the Telegram Bot API.
type Telegram struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
	log      zerolog.Logger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) {
		if u != "" {
			t.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegram creates a Telegram notifier for one chat.
func NewTelegram(botToken, chatID string, log zerolog.Logger, opts ...TelegramOption) (*Telegram, error) {
	if botToken == "" || chatID == "" {
		return nil, errors.New("telegram: bot token and chat id are required")
	}
	t := &Telegram{
		baseURL:  defaultTelegramBaseURL,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With().Str("component", "notify").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type sendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts text to the configured chat without markup.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessage{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("%w: telegram: encode: %w", ErrNotification, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: telegram: create request: %w", ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: telegram: send: %w", ErrNotification, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		var reply telegramReply
		_ = json.Unmarshal(raw, &reply)
		return fmt.Errorf("%w: telegram: unexpected status %d %s", ErrNotification, resp.StatusCode, reply.Description)
	}

	t.log.Debug().Int("len", len(text)).Msg("telegram message sent")
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
