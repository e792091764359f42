package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"StockInsight/pkg/logger"
)

// Update is an inbound chat message.
type Update struct {
	UpdateID int
	ChatID   int64
	Username string
	Text     string
}

// UpdateHandler receives each text update in order. It may block to apply
// backpressure to the polling loop.
type UpdateHandler func(ctx context.Context, u Update)

// telegramUpdate represents a Telegram update from long polling.
type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// GetUpdates performs one long-poll request starting at offset.
func (t *TelegramNotifier) GetUpdates(ctx context.Context, client *http.Client, offset int, timeout time.Duration) ([]Update, int, error) {
	apiURL := fmt.Sprintf("%s?offset=%d&timeout=%d", t.method("getUpdates"), offset, int(timeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, offset, fmt.Errorf("create polling request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, offset, fmt.Errorf("polling request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, offset, fmt.Errorf("read polling response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, offset, fmt.Errorf("polling: status %d", resp.StatusCode)
	}

	var result struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, offset, fmt.Errorf("decode polling response: %w", err)
	}

	var out []Update
	for _, update := range result.Result {
		offset = update.UpdateID + 1
		if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
			continue
		}
		u := Update{
			UpdateID: update.UpdateID,
			ChatID:   update.Message.Chat.ID,
			Text:     strings.TrimSpace(update.Message.Text),
		}
		if update.Message.From != nil {
			u.Username = update.Message.From.Username
		}
		out = append(out, u)
	}
	return out, offset, nil
}

// StartPolling begins long-polling for chat messages. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler UpdateHandler) {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	for {
		select {
		case <-ctx.Done():
			t.Log.Info("telegram polling stopped")
			return
		default:
		}

		updates, next, err := t.GetUpdates(ctx, client, offset, 30*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				t.Log.Info("telegram polling stopped")
				return
			}
			t.Log.Warn("polling failed", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}
		offset = next

		for _, u := range updates {
			t.Log.Debug("received message",
				logger.Int64("chat_id", u.ChatID),
				logger.String("text", u.Text),
			)
			handler(ctx, u)
		}
	}
}
