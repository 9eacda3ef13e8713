package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// TikTok publishes through the Content Posting API using PULL_FROM_URL.
type TikTok struct {
	endpoint     string
	accessToken  string
	privacyLevel string
	username     string
	client       *http.Client
}

var _ ports.Platform = (*TikTok)(nil)

func NewTikTok(cfg config.TikTokConfig) *TikTok {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://open.tiktokapis.com"
	}
	privacy := cfg.PrivacyLevel
	if privacy == "" {
		privacy = "PUBLIC_TO_EVERYONE"
	}
	return &TikTok{
		endpoint:     endpoint,
		accessToken:  cfg.AccessToken,
		privacyLevel: privacy,
		username:     strings.TrimPrefix(cfg.Username, "@"),
		client:       newHTTPClient(30 * time.Second),
	}
}

func (t *TikTok) Name() string { return domain.PlatformTikTok }

func (t *TikTok) IsConfigured() bool { return t.accessToken != "" }

type tiktokInit struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
}

type tiktokPostInfo struct {
	Title          string `json:"title"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
}

type tiktokSourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type tiktokResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		LogID   string `json:"log_id"`
	} `json:"error"`
}

// Publish asks TikTok to pull the rendered video from its download URL.
func (t *TikTok) Publish(ctx context.Context, video domain.VideoArtifact, meta domain.PublishMetadata) (domain.PublishReceipt, error) {
	body, err := json.Marshal(tiktokInit{
		PostInfo: tiktokPostInfo{
			Title:        truncate(caption(meta), 2200),
			PrivacyLevel: t.privacyLevel,
		},
		SourceInfo: tiktokSourceInfo{Source: "PULL_FROM_URL", VideoURL: video.DownloadURL},
	})
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("marshal tiktok payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/v2/post/publish/video/init/", bytes.NewReader(body))
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw := readBody(resp)
	var out tiktokResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return domain.PublishReceipt{}, statusError(t.Name(), resp, raw)
		}
		return domain.PublishReceipt{}, fmt.Errorf("decode tiktok response: %w", err)
	}

	if out.Error.Code != "" && out.Error.Code != "ok" {
		kind := tiktokErrorKind(out.Error.Code)
		if kind == domain.ErrorUnknown {
			kind = domain.KindForStatus(resp.StatusCode)
		}
		return domain.PublishReceipt{}, &domain.PublishError{
			Kind:       kind,
			Platform:   t.Name(),
			Message:    fmt.Sprintf("%s: %s", out.Error.Code, out.Error.Message),
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.PublishReceipt{}, statusError(t.Name(), resp, raw)
	}

	receipt := domain.PublishReceipt{PostID: out.Data.PublishID}
	if t.username != "" {
		receipt.URL = "https://www.tiktok.com/@" + t.username
	}
	return receipt, nil
}

func tiktokErrorKind(code string) domain.ErrorKind {
	switch code {
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed", "token_not_authorized_for_specified_deployment":
		return domain.ErrorAuth
	case "rate_limit_exceeded", "spam_risk_too_many_posts", "spam_risk_too_many_pending_share":
		return domain.ErrorRateLimit
	case "spam_risk_user_banned_from_posting", "unaudited_client_can_only_post_to_private_accounts", "privacy_level_option_mismatch":
		return domain.ErrorPolicy
	case "invalid_params", "url_ownership_unverified", "video_pull_failed":
		return domain.ErrorInvalid
	case "internal_error":
		return domain.ErrorNetwork
	default:
		return domain.ErrorUnknown
	}
}
