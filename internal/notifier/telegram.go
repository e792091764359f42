package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"StockInsight/pkg/logger"
)

// TelegramNotifier talks to the Telegram Bot API.
type TelegramNotifier struct {
	BotToken  string
	APIURL    string
	Client    *http.Client
	Log       *logger.Logger
	// RetryBase is the first SendWithRetry backoff; it doubles per attempt.
	RetryBase time.Duration
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, apiURL, proxyURL string, log *logger.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TelegramNotifier{
		BotToken: botToken,
		APIURL:   strings.TrimRight(apiURL, "/"),
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Log:       log,
		RetryBase: time.Second,
	}
}

func (t *TelegramNotifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.APIURL, t.BotToken, name)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func checkResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	var r apiResponse
	if err := json.Unmarshal(body, &r); err == nil && !r.OK {
		return fmt.Errorf("telegram API error: %s", r.Description)
	}
	return nil
}

// SendMessage sends an HTML-formatted message to chatID.
func (t *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

// SendPhoto uploads the PNG at path to chatID. Missing or empty files are
// rejected before any request is made.
func (t *TelegramNotifier) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("photo %s is empty", path)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendPhoto"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, chatID int64, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.SendMessage(ctx, chatID, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := time.Duration(1<<uint(i)) * t.RetryBase
		t.Log.Warn("telegram send failed",
			logger.Int64("chat_id", chatID),
			logger.Int("attempt", i+1),
			logger.Int("max_attempts", maxRetries+1),
			logger.Duration("retry_in_ms", backoff),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
