package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// Producer submits scripts to the avatar provider and observes render jobs.
// It never waits for completion itself; polling cadence belongs to the caller.
type Producer struct {
	renderer ports.AvatarRenderer
	clock    clock.Clock
	ceiling  time.Duration
	logger   *slog.Logger
}

// NewProducer wires the provider; ceiling is the wall-clock budget of one render.
func NewProducer(renderer ports.AvatarRenderer, clk clock.Clock, ceiling time.Duration, logger *slog.Logger) *Producer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Producer{renderer: renderer, clock: clk, ceiling: ceiling, logger: logger}
}

// Ceiling is the configured render timeout.
func (p *Producer) Ceiling() time.Duration {
	return p.ceiling
}

// Submit performs one submit round trip. Failures return a failed artifact without a job id.
func (p *Producer) Submit(ctx context.Context, script domain.Script) domain.VideoArtifact {
	now := p.clock.Now().UTC()
	artifact := domain.VideoArtifact{
		ID:          uuid.NewString(),
		ScriptRef:   script.ID,
		Status:      domain.VideoQueued,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	if p.renderer == nil || !p.renderer.IsConfigured() {
		return fail(artifact, domain.ReasonNotConfigured, "avatar provider not configured", false)
	}

	jobID, err := p.renderer.Submit(ctx, domain.RenderRequest{Title: script.ProductRef, Text: script.Text})
	if err != nil {
		p.debug("render submit failed", "script", script.ID, "error", err)
		return fail(artifact, domain.ReasonSubmitFailed, err.Error(), domain.IsRetryable(err) && !errors.Is(err, context.Canceled))
	}
	if jobID == "" {
		return fail(artifact, domain.ReasonSubmitFailed, "provider returned no job id", true)
	}

	artifact.JobID = jobID
	p.debug("render submitted", "script", script.ID, "job", jobID)
	return artifact
}

// Poll performs at most one status round trip. Terminal artifacts are returned unchanged and
// artifacts past the ceiling become timed_out without contacting the provider.
func (p *Producer) Poll(ctx context.Context, artifact domain.VideoArtifact) domain.VideoArtifact {
	if artifact.Status.IsTerminal() {
		return artifact
	}

	now := p.clock.Now().UTC()
	if p.ceiling > 0 && now.Sub(artifact.SubmittedAt) >= p.ceiling {
		timedOut, _ := artifact.Advance(domain.VideoTimedOut, now)
		timedOut.Reason = domain.ReasonTimeout
		timedOut.Detail = fmt.Sprintf("render did not finish within %s", p.ceiling)
		return timedOut
	}

	artifact.Attempts++
	status, err := p.renderer.Status(ctx, artifact.JobID)
	if err != nil {
		artifact.LastError = err.Error()
		artifact.UpdatedAt = now
		p.debug("render poll failed", "job", artifact.JobID, "attempt", artifact.Attempts, "error", err)
		return artifact
	}
	artifact.LastError = ""

	next, ok := domain.VideoStatusFor(status.State)
	if !ok {
		artifact.LastError = fmt.Sprintf("unknown render state %q", status.State)
		return artifact
	}

	if next == domain.VideoReady && status.DownloadURL == "" {
		return fail(artifact, domain.ReasonFailed, "provider reported ready without a download url", false)
	}

	moved, changed := artifact.Advance(next, now)
	if !changed {
		return moved
	}
	switch next {
	case domain.VideoReady:
		moved.DownloadURL = status.DownloadURL
	case domain.VideoFailed:
		moved.Reason = domain.ReasonFailed
		moved.Detail = status.Message
	}
	return moved
}

func fail(a domain.VideoArtifact, reason, detail string, retryable bool) domain.VideoArtifact {
	failed, _ := a.Advance(domain.VideoFailed, a.UpdatedAt)
	failed.Reason = reason
	failed.Detail = detail
	failed.Retryable = retryable
	return failed
}

func (p *Producer) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
