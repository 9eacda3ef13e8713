package ports

import (
	"context"
	"time"

	"ContentFactory/internal/domain"
)

// ProductSource discovers products from every configured upstream feed.
type ProductSource interface {
	Discover(ctx context.Context) (domain.DiscoveryReport, error)
}

// ProductRepository persists discovery records for idempotent discovery.
type ProductRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (domain.Product, bool, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	Save(ctx context.Context, product domain.Product) (domain.Product, error)
	ListActive(ctx context.Context, limit int) ([]domain.Product, error)
}

// TextGenerator turns a prompt into narration text (OpenAI, Anthropic, ...).
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}

// AvatarRenderer talks to an asynchronous avatar video provider.
type AvatarRenderer interface {
	IsConfigured() bool
	Submit(ctx context.Context, req domain.RenderRequest) (string, error)
	Status(ctx context.Context, jobID string) (domain.RenderStatus, error)
}

// Platform is the capability set every social platform exposes.
type Platform interface {
	Name() string
	IsConfigured() bool
	Publish(ctx context.Context, video domain.VideoArtifact, meta domain.PublishMetadata) (domain.PublishReceipt, error)
}

// ResultRecorder receives finalized workflow results (database, event bus, archive).
type ResultRecorder interface {
	Record(ctx context.Context, result domain.WorkflowResult) error
}

// Limiter is an admission point for calls to one external provider.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Budgets hands out the shared limiter for a provider name.
type Budgets interface {
	For(provider string) Limiter
}

// Scheduler controls when recurring runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
