package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// Telegram posts videos to a chat or channel via the bot API.
type Telegram struct {
	endpoint string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Platform = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier.
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.telegram.org"
	}
	return &Telegram{
		endpoint: endpoint,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   newHTTPClient(60 * time.Second),
	}
}

func (t *Telegram) Name() string { return domain.PlatformTelegram }

func (t *Telegram) IsConfigured() bool {
	return t.botToken != "" && t.chatID != ""
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Publish sends the rendered video by URL with the caption.
func (t *Telegram) Publish(ctx context.Context, video domain.VideoArtifact, meta domain.PublishMetadata) (domain.PublishReceipt, error) {
	if !t.IsConfigured() {
		return domain.PublishReceipt{}, &domain.PublishError{Kind: domain.ErrorAuth, Platform: t.Name(), Message: "telegram bot is not configured"}
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendVideo", t.endpoint, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("video", video.DownloadURL)
	form.Set("caption", truncate(fmt.Sprintf("%s\n\n%s", meta.Title, caption(meta)), 1024))
	form.Set("supports_streaming", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body := readBody(resp)
	var out telegramResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return domain.PublishReceipt{}, statusError(t.Name(), resp, body)
		}
		return domain.PublishReceipt{}, fmt.Errorf("decode telegram response: %w", err)
	}
	if !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return domain.PublishReceipt{}, &domain.PublishError{
			Kind:       domain.KindForStatus(code),
			Platform:   t.Name(),
			Message:    out.Description,
			StatusCode: code,
			RetryAfter: time.Duration(out.Parameters.RetryAfter) * time.Second,
		}
	}

	receipt := domain.PublishReceipt{PostID: fmt.Sprint(out.Result.MessageID)}
	if channel, ok := strings.CutPrefix(t.chatID, "@"); ok {
		receipt.URL = fmt.Sprintf("https://t.me/%s/%d", channel, out.Result.MessageID)
	}
	return receipt, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
