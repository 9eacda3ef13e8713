package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// Instagram publishes Reels through the Graph API: create container, wait for it, publish.
type Instagram struct {
	graphURL     string
	userID       string
	accessToken  string
	pollInterval time.Duration
	maxPolls     int
	clock        clock.Clock
	client       *http.Client
}

var _ ports.Platform = (*Instagram)(nil)

func NewInstagram(cfg config.InstagramConfig, clk clock.Clock) *Instagram {
	if clk == nil {
		clk = clock.Real{}
	}
	graph := strings.TrimRight(cfg.GraphURL, "/")
	if graph == "" {
		graph = "https://graph.facebook.com/v21.0"
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	polls := cfg.MaxPolls
	if polls <= 0 {
		polls = 24
	}
	return &Instagram{
		graphURL:     graph,
		userID:       cfg.UserID,
		accessToken:  cfg.AccessToken,
		pollInterval: interval,
		maxPolls:     polls,
		clock:        clk,
		client:       newHTTPClient(30 * time.Second),
	}
}

func (i *Instagram) Name() string { return domain.PlatformInstagram }

func (i *Instagram) IsConfigured() bool {
	return i.accessToken != "" && i.userID != ""
}

type graphError struct {
	Error *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

// Publish runs the three-step Reels flow.
func (i *Instagram) Publish(ctx context.Context, video domain.VideoArtifact, meta domain.PublishMetadata) (domain.PublishReceipt, error) {
	form := url.Values{}
	form.Set("media_type", "REELS")
	form.Set("video_url", video.DownloadURL)
	form.Set("caption", truncate(caption(meta), 2200))

	var container struct {
		ID string `json:"id"`
	}
	if err := i.call(ctx, http.MethodPost, "/"+i.userID+"/media", form, &container); err != nil {
		return domain.PublishReceipt{}, err
	}
	if container.ID == "" {
		return domain.PublishReceipt{}, &domain.PublishError{Kind: domain.ErrorUnknown, Platform: i.Name(), Message: "graph api returned no container id"}
	}

	if err := i.awaitContainer(ctx, container.ID); err != nil {
		return domain.PublishReceipt{}, err
	}

	publish := url.Values{}
	publish.Set("creation_id", container.ID)
	var media struct {
		ID string `json:"id"`
	}
	if err := i.call(ctx, http.MethodPost, "/"+i.userID+"/media_publish", publish, &media); err != nil {
		return domain.PublishReceipt{}, err
	}

	receipt := domain.PublishReceipt{PostID: media.ID}
	fields := url.Values{}
	fields.Set("fields", "permalink")
	var link struct {
		Permalink string `json:"permalink"`
	}
	if err := i.call(ctx, http.MethodGet, "/"+media.ID, fields, &link); err == nil {
		receipt.URL = link.Permalink
	}
	return receipt, nil
}

func (i *Instagram) awaitContainer(ctx context.Context, id string) error {
	fields := url.Values{}
	fields.Set("fields", "status_code,status")

	for poll := 0; poll < i.maxPolls; poll++ {
		var state struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := i.call(ctx, http.MethodGet, "/"+id, fields, &state); err != nil {
			return err
		}
		switch state.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return &domain.PublishError{Kind: domain.ErrorInvalid, Platform: i.Name(), Message: fmt.Sprintf("container %s: %s", state.StatusCode, state.Status)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-i.clock.After(i.pollInterval):
		}
	}
	return &domain.PublishError{Kind: domain.ErrorNetwork, Platform: i.Name(), Message: "media container was not ready in time"}
}

func (i *Instagram) call(ctx context.Context, method, path string, params url.Values, v any) error {
	params.Set("access_token", i.accessToken)

	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, i.graphURL+path+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, i.graphURL+path, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw := readBody(resp)
	if resp.StatusCode >= http.StatusBadRequest {
		var ge graphError
		if json.Unmarshal(raw, &ge) == nil && ge.Error != nil {
			return &domain.PublishError{
				Kind:       graphErrorKind(ge.Error.Code, resp.StatusCode),
				Platform:   i.Name(),
				Message:    ge.Error.Message,
				StatusCode: resp.StatusCode,
				RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			}
		}
		return statusError(i.Name(), resp, raw)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

func graphErrorKind(code, status int) domain.ErrorKind {
	switch code {
	case 190, 102, 10, 200:
		return domain.ErrorAuth
	case 4, 17, 32, 613:
		return domain.ErrorRateLimit
	case 368:
		return domain.ErrorPolicy
	case 100:
		return domain.ErrorInvalid
	case 1, 2:
		return domain.ErrorNetwork
	}
	return domain.KindForStatus(status)
}
