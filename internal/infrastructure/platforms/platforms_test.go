package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
)

var (
	readyVideo = domain.VideoArtifact{ID: "v1", Status: domain.VideoReady, DownloadURL: "https://cdn.example.com/v1.mp4"}
	meta       = domain.PublishMetadata{Title: "Discover Lamp - Trending Now!", Caption: "Check out Lamp", Tags: []string{"trending", "home"}}
)

func publishErr(t *testing.T, err error) *domain.PublishError {
	t.Helper()
	var pe *domain.PublishError
	require.ErrorAs(t, err, &pe)
	return pe
}

func TestTelegramPublish(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendVideo", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "@lampdeals", r.PostForm.Get("chat_id"))
		assert.Equal(t, readyVideo.DownloadURL, r.PostForm.Get("video"))
		assert.Contains(t, r.PostForm.Get("caption"), "#trending #home")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{Endpoint: srv.URL, BotToken: "TOKEN", ChatID: "@lampdeals"})
	require.True(t, tg.IsConfigured())

	receipt, err := tg.Publish(context.Background(), readyVideo, meta)
	require.NoError(t, err)
	assert.Equal(t, "77", receipt.PostID)
	assert.Equal(t, "https://t.me/lampdeals/77", receipt.URL)
}

func TestTelegramRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 12","parameters":{"retry_after":12}}`))
	}))
	defer srv.Close()

	_, err := NewTelegram(config.TelegramConfig{Endpoint: srv.URL, BotToken: "T", ChatID: "-100"}).Publish(context.Background(), readyVideo, meta)
	pe := publishErr(t, err)
	assert.Equal(t, domain.ErrorRateLimit, pe.Kind)
	assert.Equal(t, 12*time.Second, pe.RetryAfter)
	assert.True(t, pe.Retryable())
}

func TestTikTokPublish(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/post/publish/video/init/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body tiktokInit
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PULL_FROM_URL", body.SourceInfo.Source)
		assert.Equal(t, readyVideo.DownloadURL, body.SourceInfo.VideoURL)
		assert.Equal(t, "SELF_ONLY", body.PostInfo.PrivacyLevel)

		_, _ = w.Write([]byte(`{"data":{"publish_id":"v_pub_1"},"error":{"code":"ok","message":"","log_id":"x"}}`))
	}))
	defer srv.Close()

	tt := NewTikTok(config.TikTokConfig{Endpoint: srv.URL, AccessToken: "tok", PrivacyLevel: "SELF_ONLY", Username: "@shop"})
	receipt, err := tt.Publish(context.Background(), readyVideo, meta)
	require.NoError(t, err)
	assert.Equal(t, "v_pub_1", receipt.PostID)
	assert.Equal(t, "https://www.tiktok.com/@shop", receipt.URL)
}

func TestTikTokErrorCodes(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		code   string
		want   domain.ErrorKind
	}{
		"expired token": {http.StatusUnauthorized, "access_token_invalid", domain.ErrorAuth},
		"rate limited":  {http.StatusTooManyRequests, "rate_limit_exceeded", domain.ErrorRateLimit},
		"banned":        {http.StatusForbidden, "spam_risk_user_banned_from_posting", domain.ErrorPolicy},
		"bad params":    {http.StatusBadRequest, "invalid_params", domain.ErrorInvalid},
		"unknown code":  {http.StatusServiceUnavailable, "brand_new_code", domain.ErrorNetwork},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": tc.code, "message": "nope"}})
			}))
			defer srv.Close()

			_, err := NewTikTok(config.TikTokConfig{Endpoint: srv.URL, AccessToken: "tok"}).Publish(context.Background(), readyVideo, meta)
			pe := publishErr(t, err)
			assert.Equal(t, tc.want, pe.Kind)
			assert.Equal(t, tc.status, pe.StatusCode)
		})
	}
}

func TestInstagramPublish(t *testing.T) {
	t.Parallel()

	var statusPolls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ig-user/media", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "REELS", r.PostForm.Get("media_type"))
		assert.Equal(t, readyVideo.DownloadURL, r.PostForm.Get("video_url"))
		assert.Equal(t, "ig-token", r.PostForm.Get("access_token"))
		_, _ = w.Write([]byte(`{"id":"container-1"}`))
	})
	mux.HandleFunc("GET /container-1", func(w http.ResponseWriter, _ *http.Request) {
		if statusPolls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status_code":"FINISHED"}`))
	})
	mux.HandleFunc("POST /ig-user/media_publish", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "container-1", r.PostForm.Get("creation_id"))
		_, _ = w.Write([]byte(`{"id":"media-9"}`))
	})
	mux.HandleFunc("GET /media-9", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"permalink":"https://www.instagram.com/reel/abc/"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	clk := clock.NewFake(time.Unix(0, 0))
	ig := NewInstagram(config.InstagramConfig{GraphURL: srv.URL, UserID: "ig-user", AccessToken: "ig-token", PollInterval: 5 * time.Second}, clk)

	receipt, err := ig.Publish(context.Background(), readyVideo, meta)
	require.NoError(t, err)
	assert.Equal(t, "media-9", receipt.PostID)
	assert.Equal(t, "https://www.instagram.com/reel/abc/", receipt.URL)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clk.Waits())
}

func TestInstagramGraphErrors(t *testing.T) {
	t.Parallel()

	cases := map[int]domain.ErrorKind{
		190: domain.ErrorAuth,
		4:   domain.ErrorRateLimit,
		613: domain.ErrorRateLimit,
		368: domain.ErrorPolicy,
		100: domain.ErrorInvalid,
	}

	for code, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "graph says no", "code": code}})
		}))

		ig := NewInstagram(config.InstagramConfig{GraphURL: srv.URL, UserID: "u", AccessToken: "t"}, clock.NewFake(time.Unix(0, 0)))
		_, err := ig.Publish(context.Background(), readyVideo, meta)
		srv.Close()

		pe := publishErr(t, err)
		assert.Equal(t, want, pe.Kind, "code %d", code)
		assert.Equal(t, "graph says no", pe.Message)
	}
}

func TestInstagramContainerError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /u/media", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c"}`))
	})
	mux.HandleFunc("GET /c", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status_code":"ERROR","status":"unsupported codec"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ig := NewInstagram(config.InstagramConfig{GraphURL: srv.URL, UserID: "u", AccessToken: "t"}, clock.NewFake(time.Unix(0, 0)))
	_, err := ig.Publish(context.Background(), readyVideo, meta)
	pe := publishErr(t, err)
	assert.Equal(t, domain.ErrorInvalid, pe.Kind)
	assert.Contains(t, pe.Message, "unsupported codec")
}

func TestYouTubeIsConfigured(t *testing.T) {
	t.Parallel()

	assert.False(t, NewYouTube(config.YouTubeConfig{ClientID: "id"}).IsConfigured())
	assert.True(t, NewYouTube(config.YouTubeConfig{ClientID: "id", ClientSecret: "s", RefreshToken: "r"}).IsConfigured())
}

func TestYouTubeDownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	yt := NewYouTube(config.YouTubeConfig{ClientID: "id", ClientSecret: "s", RefreshToken: "r"})
	yt.newService = func(context.Context) (*youtube.Service, error) {
		t.Fatal("service must not be created when the download fails")
		return nil, nil
	}

	video := readyVideo
	video.DownloadURL = srv.URL + "/missing.mp4"
	_, err := yt.Publish(context.Background(), video, meta)
	pe := publishErr(t, err)
	assert.Equal(t, domain.ErrorInvalid, pe.Kind)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestClassifyGoogleError(t *testing.T) {
	t.Parallel()

	quota := &googleapi.Error{Code: http.StatusForbidden, Message: "quota", Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}
	assert.Equal(t, domain.ErrorRateLimit, publishErr(t, classifyGoogleError(quota)).Kind)

	auth := &googleapi.Error{Code: http.StatusUnauthorized, Message: "invalid credentials"}
	assert.Equal(t, domain.ErrorAuth, publishErr(t, classifyGoogleError(auth)).Kind)

	server := &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "backend"}
	assert.Equal(t, domain.ErrorNetwork, publishErr(t, classifyGoogleError(server)).Kind)

	plain := errors.New("socket closed")
	assert.Equal(t, plain, classifyGoogleError(plain))
}
