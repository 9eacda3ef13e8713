package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

const providerName = "avatar"

// Client talks to a HeyGen-style asynchronous avatar video API.
type Client struct {
	endpoint string
	apiKey   string
	avatarID string
	voiceID  string
	width    int
	height   int
	http     *http.Client
}

var _ ports.AvatarRenderer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.AvatarConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		avatarID: cfg.AvatarID,
		voiceID:  cfg.VoiceID,
		width:    cfg.Width,
		height:   cfg.Height,
		http:     &http.Client{Timeout: timeout},
	}
}

// IsConfigured reports whether credentials and an avatar are set.
func (c *Client) IsConfigured() bool {
	return c.endpoint != "" && c.apiKey != "" && c.avatarID != ""
}

type character struct {
	Type     string `json:"type"`
	AvatarID string `json:"avatar_id"`
	Style    string `json:"avatar_style"`
}

type voice struct {
	Type      string `json:"type"`
	InputText string `json:"input_text"`
	VoiceID   string `json:"voice_id,omitempty"`
}

type videoInput struct {
	Character character `json:"character"`
	Voice     voice     `json:"voice"`
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type generateRequest struct {
	Title       string       `json:"title,omitempty"`
	VideoInputs []videoInput `json:"video_inputs"`
	Dimension   dimension    `json:"dimension"`
}

// Submit starts a render and returns the provider job id.
func (c *Client) Submit(ctx context.Context, req domain.RenderRequest) (string, error) {
	payload := generateRequest{
		Title: req.Title,
		VideoInputs: []videoInput{{
			Character: character{Type: "avatar", AvatarID: c.avatarID, Style: "normal"},
			Voice:     voice{Type: "text", InputText: req.Text, VoiceID: c.voiceID},
		}},
		Dimension: dimension{Width: c.width, Height: c.height},
	}

	var resp struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/video/generate", payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.VideoID, nil
}

// Status fetches the render state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (domain.RenderStatus, error) {
	var resp struct {
		Data struct {
			Status   string `json:"status"`
			VideoURL string `json:"video_url"`
			Error    *struct {
				Message string `json:"message"`
				Detail  string `json:"detail"`
			} `json:"error"`
		} `json:"data"`
	}
	path := "/v1/video_status.get?video_id=" + url.QueryEscape(jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return domain.RenderStatus{}, err
	}

	status := domain.RenderStatus{
		State:       renderState(resp.Data.Status),
		DownloadURL: resp.Data.VideoURL,
	}
	if resp.Data.Error != nil {
		status.Message = strings.TrimSpace(resp.Data.Error.Message + " " + resp.Data.Error.Detail)
	}
	return status, nil
}

func renderState(raw string) domain.RenderState {
	switch strings.ToLower(raw) {
	case "pending", "waiting":
		return domain.RenderQueued
	case "processing":
		return domain.RenderRendering
	case "completed":
		return domain.RenderReady
	case "failed":
		return domain.RenderFailed
	default:
		return domain.RenderState(raw)
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload any, v any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.NewProviderStatusError(providerName, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
