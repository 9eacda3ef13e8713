package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// YouTube uploads videos with the Data API using a stored refresh token.
type YouTube struct {
	cfg        config.YouTubeConfig
	download   *http.Client
	newService func(ctx context.Context) (*youtube.Service, error)
}

var _ ports.Platform = (*YouTube)(nil)

func NewYouTube(cfg config.YouTubeConfig) *YouTube {
	y := &YouTube{cfg: cfg, download: newHTTPClient(5 * time.Minute)}
	y.newService = y.service
	return y
}

func (y *YouTube) Name() string { return domain.PlatformYouTube }

func (y *YouTube) IsConfigured() bool {
	return y.cfg.ClientID != "" && y.cfg.ClientSecret != "" && y.cfg.RefreshToken != ""
}

func (y *YouTube) service(ctx context.Context) (*youtube.Service, error) {
	oauth := &oauth2.Config{
		ClientID:     y.cfg.ClientID,
		ClientSecret: y.cfg.ClientSecret,
		Endpoint:     googleEndpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	ts := oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: y.cfg.RefreshToken})
	return youtube.NewService(ctx, option.WithTokenSource(ts))
}

// Publish streams the rendered file from its download URL into a resumable upload.
func (y *YouTube) Publish(ctx context.Context, video domain.VideoArtifact, meta domain.PublishMetadata) (domain.PublishReceipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, video.DownloadURL, nil)
	if err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Kind: domain.ErrorInvalid, Platform: y.Name(), Message: err.Error()}
	}
	resp, err := y.download.Do(req)
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		perr := statusError(y.Name(), resp, readBody(resp))
		perr.Message = "download video: " + perr.Message
		return domain.PublishReceipt{}, perr
	}

	svc, err := y.newService(ctx)
	if err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Kind: domain.ErrorAuth, Platform: y.Name(), Message: err.Error()}
	}

	privacy := y.cfg.Privacy
	if privacy == "" {
		privacy = "public"
	}
	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncate(meta.Title, 100),
			Description: truncate(caption(meta), 5000),
			Tags:        meta.Tags,
			CategoryId:  y.cfg.CategoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: privacy},
	}

	created, err := svc.Videos.Insert([]string{"snippet", "status"}, upload).Media(resp.Body).Context(ctx).Do()
	if err != nil {
		return domain.PublishReceipt{}, classifyGoogleError(err)
	}
	return domain.PublishReceipt{
		PostID: created.Id,
		URL:    "https://www.youtube.com/watch?v=" + created.Id,
	}, nil
}

func classifyGoogleError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return &domain.PublishError{Kind: domain.ErrorAuth, Platform: domain.PlatformYouTube, Message: rerr.Error()}
		}
		return err
	}

	kind := domain.KindForStatus(gerr.Code)
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "uploadLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			kind = domain.ErrorRateLimit
		case "authError", "forbidden", "youtubeSignupRequired":
			kind = domain.ErrorAuth
		}
	}
	return &domain.PublishError{
		Kind:       kind,
		Platform:   domain.PlatformYouTube,
		Message:    gerr.Message,
		StatusCode: gerr.Code,
	}
}
