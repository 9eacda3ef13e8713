package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"

	"github.com/google/uuid"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// Registry keeps platforms by name.
type Registry struct {
	platforms map[string]ports.Platform
}

// NewRegistry builds a registry holding the given platforms.
func NewRegistry(platforms ...ports.Platform) *Registry {
	r := &Registry{platforms: map[string]ports.Platform{}}
	for _, p := range platforms {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a platform implementation.
func (r *Registry) Register(p ports.Platform) {
	r.platforms[p.Name()] = p
}

// Resolve returns a platform by name.
func (r *Registry) Resolve(name string) (ports.Platform, bool) {
	p, ok := r.platforms[name]
	return p, ok
}

// Configured reports is_configured for every registered platform.
func (r *Registry) Configured() map[string]bool {
	out := make(map[string]bool, len(r.platforms))
	for name, p := range r.platforms {
		out[name] = p.IsConfigured()
	}
	return out
}

// Names lists registered platform names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Publisher turns platform calls into recorded PublishAttempts.
type Publisher struct {
	clock  clock.Clock
	logger *slog.Logger
}

// NewPublisher builds a publisher.
func NewPublisher(clk clock.Clock, logger *slog.Logger) *Publisher {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Publisher{clock: clk, logger: logger}
}

// Publish uploads the artifact to one platform. Failures are captured in the attempt, never returned.
func (p *Publisher) Publish(ctx context.Context, artifact domain.VideoArtifact, platform ports.Platform, meta domain.PublishMetadata) domain.PublishAttempt {
	attempt := domain.PublishAttempt{
		ID:        uuid.NewString(),
		VideoRef:  artifact.ID,
		Platform:  platform.Name(),
		Status:    domain.PublishPending,
		StartedAt: p.clock.Now().UTC(),
	}

	receipt, err := safePublish(ctx, platform, artifact, meta)
	attempt.FinishedAt = p.clock.Now().UTC()
	if err != nil {
		attempt.Status = domain.PublishFailed
		attempt.Error = Classify(platform.Name(), err)
		p.log(slog.LevelWarn, "publish failed", "platform", platform.Name(), "video", artifact.ID, "kind", attempt.Error.Kind, "error", err)
		return attempt
	}
	if receipt.PostID == "" {
		attempt.Status = domain.PublishFailed
		attempt.Error = &domain.PublishError{Kind: domain.ErrorUnknown, Platform: platform.Name(), Message: "platform returned no post id"}
		return attempt
	}

	attempt.Status = domain.PublishSuccess
	attempt.PostID = receipt.PostID
	attempt.PostURL = receipt.URL
	p.log(slog.LevelInfo, "published", "platform", platform.Name(), "video", artifact.ID, "post", receipt.PostID)
	return attempt
}

// Refused records an attempt that never reached the platform because its call budget was unavailable.
func (p *Publisher) Refused(artifact domain.VideoArtifact, platform string, err error) domain.PublishAttempt {
	now := p.clock.Now().UTC()
	p.log(slog.LevelWarn, "publish budget unavailable", "platform", platform, "video", artifact.ID, "error", err)
	return domain.PublishAttempt{
		ID:         uuid.NewString(),
		VideoRef:   artifact.ID,
		Platform:   platform,
		Status:     domain.PublishFailed,
		Error:      &domain.PublishError{Kind: domain.ErrorRateLimit, Platform: platform, Message: "call budget unavailable: " + err.Error()},
		StartedAt:  now,
		FinishedAt: now,
	}
}

func safePublish(ctx context.Context, platform ports.Platform, artifact domain.VideoArtifact, meta domain.PublishMetadata) (receipt domain.PublishReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("platform panic: %v", r)
		}
	}()
	return platform.Publish(ctx, artifact, meta)
}

// Classify converts any platform error into a typed PublishError.
func Classify(platform string, err error) *domain.PublishError {
	var pe *domain.PublishError
	if errors.As(err, &pe) {
		out := *pe
		if out.Platform == "" {
			out.Platform = platform
		}
		return &out
	}

	kind := domain.ErrorUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = domain.ErrorNetwork
	case errors.As(err, &netErr):
		kind = domain.ErrorNetwork
	}
	return &domain.PublishError{Kind: kind, Platform: platform, Message: err.Error()}
}

func (p *Publisher) log(level slog.Level, msg string, args ...any) {
	if p.logger != nil {
		p.logger.Log(context.Background(), level, msg, args...)
	}
}
