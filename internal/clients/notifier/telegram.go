// Package notifier delivers human-facing run summaries over Telegram.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	// DefaultBaseURL is the Telegram bot API host.
	DefaultBaseURL = "https://api.telegram.org"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 15 * time.Second
)

// Telegram sends messages to a fixed chat. It satisfies interfaces.Notifier.
// Send failures are logged by callers and never fail a cycle.
type Telegram struct {
	baseURL    string
	botToken   string
	chatID     string
	httpClient *http.Client
	logger     arbor.ILogger
}

// TelegramOption configures the Telegram notifier.
type TelegramOption func(*Telegram)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) TelegramOption {
	return func(n *Telegram) {
		n.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) TelegramOption {
	return func(n *Telegram) {
		n.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) TelegramOption {
	return func(n *Telegram) {
		n.logger = logger
	}
}

// NewTelegram creates a Telegram notifier bound to one chat.
func NewTelegram(botToken, chatID string, opts ...TelegramOption) *Telegram {
	n := &Telegram{
		baseURL:  DefaultBaseURL,
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers one Markdown-formatted message to the configured chat.
func (n *Telegram) Send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram credentials missing")
	}

	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if n.logger != nil {
		n.logger.Debug().
			Int("length", len(text)).
			Msg("Telegram notification sent")
	}
	return nil
}
