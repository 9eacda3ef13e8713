package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/infrastructure/ratelimit"
	"ContentFactory/internal/ports"
	"ContentFactory/internal/publish"
)

// Budget names shared by all per-product tasks. Platforms use their own name.
const (
	ProviderTextGen = "textgen"
	ProviderAvatar  = "avatar"
)

// ReasonBudgetUnavailable marks a stage that could not acquire its provider budget.
const ReasonBudgetUnavailable = "budget_unavailable"

// ScriptGenerator produces narration for a product.
type ScriptGenerator interface {
	Generate(ctx context.Context, product domain.Product) (domain.Script, error)
}

// VideoProducer submits and observes avatar renders.
type VideoProducer interface {
	Submit(ctx context.Context, script domain.Script) domain.VideoArtifact
	Poll(ctx context.Context, artifact domain.VideoArtifact) domain.VideoArtifact
	Ceiling() time.Duration
}

// Policy holds the orchestrator tuning knobs.
type Policy struct {
	MaxConcurrency int
	SubmitAttempts int
	SubmitBackoff  time.Duration
	PollInitial    time.Duration
	PollMax        time.Duration
	PollMultiplier float64
}

func (p Policy) withDefaults() Policy {
	if p.MaxConcurrency < 1 {
		p.MaxConcurrency = 1
	}
	if p.SubmitAttempts < 1 {
		p.SubmitAttempts = 1
	}
	if p.SubmitBackoff <= 0 {
		p.SubmitBackoff = time.Second
	}
	if p.PollInitial <= 0 {
		p.PollInitial = 2 * time.Second
	}
	if p.PollMax < p.PollInitial {
		p.PollMax = p.PollInitial
	}
	if p.PollMultiplier < 1 {
		p.PollMultiplier = 2
	}
	return p
}

// OrchestratorDeps wires all collaborators into the orchestrator.
type OrchestratorDeps struct {
	Scripts   ScriptGenerator
	Videos    VideoProducer
	Publisher *publish.Publisher
	Platforms *publish.Registry
	Enabled   []string
	Products  ports.ProductRepository
	Discovery *Discovery
	Budgets   ports.Budgets
	Recorders []ports.ResultRecorder
	Clock     clock.Clock
	Logger    *slog.Logger
	Policy    Policy
}

// Orchestrator drives products through script, video and publish stages.
type Orchestrator struct {
	scripts   ScriptGenerator
	videos    VideoProducer
	publisher *publish.Publisher
	platforms *publish.Registry
	enabled   []string
	products  ports.ProductRepository
	discovery *Discovery
	budgets   ports.Budgets
	recorders []ports.ResultRecorder
	clock     clock.Clock
	logger    *slog.Logger
	policy    Policy
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Budgets == nil {
		deps.Budgets = ratelimit.Unlimited()
	}
	if deps.Platforms == nil {
		deps.Platforms = publish.NewRegistry()
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.NewPublisher(deps.Clock, deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		scripts:   deps.Scripts,
		videos:    deps.Videos,
		publisher: deps.Publisher,
		platforms: deps.Platforms,
		enabled:   deps.Enabled,
		products:  deps.Products,
		discovery: deps.Discovery,
		budgets:   deps.Budgets,
		recorders: deps.Recorders,
		clock:     deps.Clock,
		logger:    deps.Logger,
		policy:    deps.Policy.withDefaults(),
	}
}

// Platforms exposes the configured flags of every registered platform.
func (o *Orchestrator) Platforms() map[string]bool {
	return o.platforms.Configured()
}

// ProcessKnown runs the pipeline for a product already stored by discovery.
func (o *Orchestrator) ProcessKnown(ctx context.Context, productID string) (domain.WorkflowResult, error) {
	if o.products == nil {
		return domain.WorkflowResult{}, errors.New("product repository is not configured")
	}
	product, err := o.products.Get(ctx, productID)
	if err != nil {
		return domain.WorkflowResult{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	return o.ProcessProduct(ctx, product), nil
}

// DiscoverAndProcess discovers up to limit products and processes them as one batch.
// Only configuration-level discovery errors are returned.
func (o *Orchestrator) DiscoverAndProcess(ctx context.Context, limit int) (domain.BatchResult, error) {
	if o.discovery == nil {
		return domain.BatchResult{}, domain.ErrNoSources
	}

	outcome, err := o.discovery.Discover(ctx, limit)
	if err != nil {
		return domain.BatchResult{}, err
	}

	batch := o.ProcessBatch(ctx, outcome.Products)
	batch.Warnings = outcome.Warnings
	if outcome.Err != nil {
		batch.DiscoveryError = outcome.Err.Error()
	}
	return batch, nil
}

// ProcessBatch processes products concurrently, bounded by MaxConcurrency.
// Every unique product yields exactly one WorkflowResult; results arrive in completion order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, products []domain.Product) domain.BatchResult {
	unique, duplicates := dedupe(products)
	collector := newCollector(len(unique))

	var g errgroup.Group
	g.SetLimit(o.policy.MaxConcurrency)
	for _, product := range unique {
		if ctx.Err() != nil {
			collector.add(o.cancelled(ctx, product))
			continue
		}
		g.Go(func() error {
			collector.add(o.safeProcess(ctx, product))
			return nil
		})
	}
	_ = g.Wait()

	results := collector.results()
	o.logger.Info("batch finished", "products", len(unique), "duplicates", len(duplicates))
	return domain.BatchResult{
		Results:    results,
		Duplicates: duplicates,
		Summary:    Summarize(results),
	}
}

// ProcessProduct runs one product through all stages and records the finalized result.
func (o *Orchestrator) ProcessProduct(ctx context.Context, product domain.Product) domain.WorkflowResult {
	result := o.process(ctx, product)
	o.record(ctx, result)
	return result
}

func (o *Orchestrator) safeProcess(ctx context.Context, product domain.Product) (result domain.WorkflowResult) {
	if ctx.Err() != nil {
		return o.cancelled(ctx, product)
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("product task panicked", "product", product.ExternalID, "panic", r)
			b := newResultBuilder(product, o.now())
			b.abort(fmt.Sprintf("unexpected error: %v", r))
			result = b.finalize(o.now())
		}
	}()
	return o.ProcessProduct(ctx, product)
}

func (o *Orchestrator) process(ctx context.Context, product domain.Product) (result domain.WorkflowResult) {
	b := newResultBuilder(product, o.now())
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("product pipeline panicked", "product", product.ExternalID, "stage", b.current, "panic", r)
			b.abort(fmt.Sprintf("unexpected error: %v", r))
			result = b.finalize(o.now())
		}
	}()

	o.runStages(ctx, b, product)
	return b.finalize(o.now())
}

func (o *Orchestrator) runStages(ctx context.Context, b *resultBuilder, product domain.Product) {
	log := o.logger.With("product", product.ExternalID)

	b.begin(domain.StageScript)
	if o.scripts == nil {
		b.fail(domain.StageScript, "script generator is not configured", "not_configured")
		return
	}
	script, err := o.scripts.Generate(ctx, product)
	if err != nil {
		reason := "error"
		if errors.Is(err, domain.ErrMalformedProduct) {
			reason = "malformed_product"
		}
		log.Warn("script stage failed", "error", err)
		b.fail(domain.StageScript, err.Error(), reason)
		return
	}
	b.setScript(script)
	b.succeed(domain.StageScript, fmt.Sprintf("generated via %s", script.Method))

	b.begin(domain.StageVideo)
	if ctx.Err() != nil {
		b.cancel()
		return
	}
	if o.videos == nil {
		b.fail(domain.StageVideo, "video producer is not configured", domain.ReasonNotConfigured)
		return
	}
	artifact, err := o.produceVideo(ctx, script)
	b.setVideo(artifact)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("video stage interrupted", "error", err)
			b.cancel()
			return
		}
		log.Warn("avatar budget unavailable", "error", err)
		b.fail(domain.StageVideo, err.Error(), ReasonBudgetUnavailable)
		return
	}
	if artifact.Status != domain.VideoReady {
		log.Warn("video stage failed", "status", artifact.Status, "reason", artifact.Reason, "detail", artifact.Detail)
		b.fail(domain.StageVideo, videoDetail(artifact), artifact.Reason)
		return
	}
	b.succeed(domain.StageVideo, fmt.Sprintf("rendered after %d polls", artifact.Attempts))

	b.begin(domain.StagePublish)
	o.publishAll(ctx, b, product, artifact)
	log.Info("product processed", "publish_attempts", len(b.result.Attempts))
}

func (o *Orchestrator) produceVideo(ctx context.Context, script domain.Script) (domain.VideoArtifact, error) {
	artifact, err := o.submitWithRetry(ctx, script)
	if err != nil || artifact.Status.IsTerminal() {
		return artifact, err
	}
	return o.awaitVideo(ctx, artifact)
}

// submitWithRetry retries retryable submit failures with exponential backoff.
func (o *Orchestrator) submitWithRetry(ctx context.Context, script domain.Script) (domain.VideoArtifact, error) {
	schedule := newSchedule(o.policy.SubmitBackoff, o.policy.PollMax, 2)

	var artifact domain.VideoArtifact
	for attempt := 1; ; attempt++ {
		release, err := o.budgets.For(ProviderAvatar).Acquire(ctx)
		if err != nil {
			return artifact, err
		}
		artifact = o.videos.Submit(ctx, script)
		release()

		if artifact.Status != domain.VideoFailed || !artifact.Retryable || attempt >= o.policy.SubmitAttempts {
			return artifact, nil
		}
		o.logger.Warn("render submit failed, retrying", "script", script.ID, "attempt", attempt, "detail", artifact.Detail)
		if err := o.sleep(ctx, schedule.NextBackOff()); err != nil {
			return artifact, err
		}
	}
}

// awaitVideo polls with increasing backoff until the artifact is terminal.
// Waits are clamped so the ceiling is observed on time.
func (o *Orchestrator) awaitVideo(ctx context.Context, artifact domain.VideoArtifact) (domain.VideoArtifact, error) {
	schedule := newSchedule(o.policy.PollInitial, o.policy.PollMax, o.policy.PollMultiplier)

	for !artifact.Status.IsTerminal() {
		wait := schedule.NextBackOff()
		if ceiling := o.videos.Ceiling(); ceiling > 0 {
			remaining := ceiling - o.clock.Now().Sub(artifact.SubmittedAt)
			if remaining < wait {
				wait = max(remaining, 0)
			}
		}
		if err := o.sleep(ctx, wait); err != nil {
			return artifact, err
		}

		release, err := o.budgets.For(ProviderAvatar).Acquire(ctx)
		if err != nil {
			return artifact, err
		}
		artifact = o.videos.Poll(ctx, artifact)
		release()
	}
	return artifact, nil
}

func (o *Orchestrator) publishAll(ctx context.Context, b *resultBuilder, product domain.Product, artifact domain.VideoArtifact) {
	var targets []ports.Platform
	for _, name := range o.enabled {
		platform, ok := o.platforms.Resolve(name)
		if !ok {
			o.logger.Warn("enabled platform is not registered", "platform", name)
			continue
		}
		if !platform.IsConfigured() {
			o.logger.Debug("platform not configured, skipping", "platform", name)
			continue
		}
		targets = append(targets, platform)
	}
	if len(targets) == 0 {
		b.skip(domain.StagePublish, "no platform configured")
		return
	}

	meta := BuildMetadata(product)
	attempts := make([]*domain.PublishAttempt, len(targets))

	var g errgroup.Group
	for i, platform := range targets {
		g.Go(func() error {
			release, err := o.budgets.For(platform.Name()).Acquire(ctx)
			if err != nil {
				if ctx.Err() == nil {
					attempt := o.publisher.Refused(artifact, platform.Name(), err)
					attempts[i] = &attempt
				}
				return nil
			}
			defer release()
			attempt := o.publisher.Publish(ctx, artifact, platform, meta)
			attempts[i] = &attempt
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	made := 0
	for _, attempt := range attempts {
		if attempt == nil {
			continue
		}
		made++
		b.addAttempt(*attempt)
		if !attempt.Succeeded() {
			failed = append(failed, attempt.Platform)
		}
	}

	switch {
	case ctx.Err() != nil && (made < len(targets) || len(failed) > 0):
		b.cancel()
	case len(failed) == 0:
		b.succeed(domain.StagePublish, fmt.Sprintf("published to %d platform(s)", made))
	default:
		b.fail(domain.StagePublish, fmt.Sprintf("%d of %d platform(s) failed: %s", len(failed), made, strings.Join(failed, ", ")), "")
	}
}

// cancelled builds the result of a product that never started because the batch was cancelled.
func (o *Orchestrator) cancelled(ctx context.Context, product domain.Product) domain.WorkflowResult {
	b := newResultBuilder(product, o.now())
	b.begin(domain.StageScript)
	b.cancel()
	result := b.finalize(o.now())
	o.record(ctx, result)
	return result
}

// record hands the result to every recorder. Recording is not subject to batch cancellation.
func (o *Orchestrator) record(ctx context.Context, result domain.WorkflowResult) {
	if len(o.recorders) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	for _, recorder := range o.recorders {
		if err := recorder.Record(rctx, result); err != nil {
			o.logger.Error("record workflow result", "result", result.ID, "error", err)
		}
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.clock.After(d):
		return nil
	}
}

func (o *Orchestrator) now() time.Time {
	return o.clock.Now().UTC()
}

func newSchedule(initial, maxInterval time.Duration, multiplier float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func videoDetail(a domain.VideoArtifact) string {
	if a.Detail != "" {
		return fmt.Sprintf("video %s: %s", a.Status, a.Detail)
	}
	return fmt.Sprintf("video %s", a.Status)
}

// dedupe drops products sharing an external id, keeping the first occurrence.
func dedupe(products []domain.Product) ([]domain.Product, []string) {
	seen := make(map[string]struct{}, len(products))
	unique := make([]domain.Product, 0, len(products))
	var duplicates []string
	for _, p := range products {
		key := p.ExternalID
		if key != "" {
			if _, ok := seen[key]; ok {
				duplicates = append(duplicates, key)
				continue
			}
			seen[key] = struct{}{}
		}
		unique = append(unique, p)
	}
	return unique, duplicates
}
