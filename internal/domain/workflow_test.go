package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stages(script, video, publish StageState) []StageOutcome {
	out := []StageOutcome{{Stage: StageScript, State: script}}
	if video != "" {
		out = append(out, StageOutcome{Stage: StageVideo, State: video})
	}
	if publish != "" {
		out = append(out, StageOutcome{Stage: StagePublish, State: publish})
	}
	return out
}

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	ok := PublishAttempt{Platform: "a", Status: PublishSuccess}
	bad := PublishAttempt{Platform: "b", Status: PublishFailed}

	assert.Equal(t, StatusFailed, DeriveStatus(stages(StageFailed, "", ""), nil))
	assert.Equal(t, StatusFailed, DeriveStatus(stages(StageSucceeded, StageFailed, ""), nil))
	assert.Equal(t, StatusCompleted, DeriveStatus(stages(StageSucceeded, StageSucceeded, StageSucceeded), []PublishAttempt{ok}))
	assert.Equal(t, StatusPartial, DeriveStatus(stages(StageSucceeded, StageSucceeded, StageFailed), []PublishAttempt{ok, bad}))
	assert.Equal(t, StatusPartial, DeriveStatus(stages(StageSucceeded, StageSucceeded, StageSkipped), nil))
	assert.Equal(t, StatusFailed, DeriveStatus(stages(StageSucceeded, StageSucceeded, StageFailed), []PublishAttempt{bad}))
}

func TestVideoArtifactAdvance(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := VideoArtifact{Status: VideoQueued}

	a, ok := a.Advance(VideoRendering, now)
	assert.True(t, ok)
	assert.Equal(t, VideoRendering, a.Status)

	_, ok = a.Advance(VideoQueued, now)
	assert.False(t, ok, "backwards transition must be refused")

	a, ok = a.Advance(VideoTimedOut, now)
	assert.True(t, ok)

	for _, to := range []VideoStatus{VideoQueued, VideoRendering, VideoReady, VideoFailed} {
		next, moved := a.Advance(to, now)
		assert.False(t, moved)
		assert.Equal(t, VideoTimedOut, next.Status)
	}
}

func TestProductValidateAndListing(t *testing.T) {
	t.Parallel()

	p := Product{ExternalID: QualifiedID("fakestore", "1"), Name: "Widget", Price: ParsePrice("$1", "USD")}
	assert.NoError(t, p.Validate())
	assert.Equal(t, "fakestore:1", p.ExternalID)

	p2 := p
	p2.ID = "other"
	p2.DiscoveredAt = time.Now()
	assert.True(t, p.SameListing(p2))

	p2.Price = ParsePrice("$2", "USD")
	assert.False(t, p.SameListing(p2))

	err := Product{ExternalID: "x:1"}.Validate()
	assert.True(t, errors.Is(err, ErrMalformedProduct))
}

func TestDiscoveryReportErr(t *testing.T) {
	t.Parallel()

	report := DiscoveryReport{Sources: 2, Failures: []SourceFailure{{Source: "a", Reason: "boom"}}}
	assert.NoError(t, report.Err())

	report.Failures = append(report.Failures, SourceFailure{Source: "b", Reason: "down"})
	var derr *DiscoveryError
	assert.ErrorAs(t, report.Err(), &derr)
	assert.Len(t, derr.Failures, 2)
	assert.Equal(t, []string{"a: boom", "b: down"}, report.Warnings())
}

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorAuth, KindForStatus(401))
	assert.Equal(t, ErrorRateLimit, KindForStatus(429))
	assert.Equal(t, ErrorNetwork, KindForStatus(503))
	assert.Equal(t, ErrorPolicy, KindForStatus(422))
	assert.Equal(t, ErrorInvalid, KindForStatus(400))
	assert.True(t, (&PublishError{Kind: ErrorRateLimit}).Retryable())
	assert.False(t, (&PublishError{Kind: ErrorPolicy}).Retryable())
}
