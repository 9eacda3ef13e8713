package domain

import "time"

// Platform names known to the publisher. Other names may be registered.
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
	PlatformTelegram  = "telegram"
)

// PublishStatus is the state of one PublishAttempt.
type PublishStatus string

const (
	PublishPending PublishStatus = "pending"
	PublishSuccess PublishStatus = "success"
	PublishFailed  PublishStatus = "failed"
)

// PublishMetadata travels with the video to every platform.
type PublishMetadata struct {
	Title      string   `json:"title"`
	Caption    string   `json:"caption"`
	Tags       []string `json:"tags,omitempty"`
	ProductURL string   `json:"product_url,omitempty"`
}

// PublishReceipt is what a platform returns on success.
type PublishReceipt struct {
	PostID string
	URL    string
}

// PublishAttempt records one push of a VideoArtifact to one platform.
type PublishAttempt struct {
	ID         string        `json:"id"`
	VideoRef   string        `json:"video_ref"`
	Platform   string        `json:"platform"`
	Status     PublishStatus `json:"status"`
	PostID     string        `json:"platform_post_id,omitempty"`
	PostURL    string        `json:"post_url,omitempty"`
	Error      *PublishError `json:"error_detail,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Succeeded is a convenience for aggregations.
func (a PublishAttempt) Succeeded() bool {
	return a.Status == PublishSuccess
}
