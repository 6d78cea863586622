package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"btcpay-bridge/internal/logger"

	"go.uber.org/zap"
)

// Notifier delivers operational messages to the panel admins.
type Notifier interface {
	NotifyAdmins(ctx context.Context, text string) error
}

type telegram struct {
	apiURL     string
	token      string
	chatIDs    []string
	httpClient *http.Client
}

// NewTelegram returns Nop when no bot token or admin chat is configured.
func NewTelegram(apiURL, token string, chatIDs []string) Notifier {
	if token == "" || len(chatIDs) == 0 {
		return Nop{}
	}
	return &telegram{
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      token,
		chatIDs:    chatIDs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *telegram) NotifyAdmins(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range t.chatIDs {
		if err := t.send(ctx, chatID, text); err != nil {
			logger.FromCtx(ctx).Warn("Telegram send failed",
				zap.String("chat_id", chatID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *telegram) send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/bot"+t.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token.
		var ue *url.Error
		if errors.As(err, &ue) {
			return fmt.Errorf("telegram request failed: %w", ue.Err)
		}
		return errors.New("telegram request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var out sendMessageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	if !out.OK {
		return fmt.Errorf("telegram rejected message: %s", out.Description)
	}
	return nil
}

// Nop drops every message.
type Nop struct{}

func (Nop) NotifyAdmins(context.Context, string) error { return nil }
