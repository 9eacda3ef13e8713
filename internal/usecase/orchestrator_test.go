package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
	"ContentFactory/internal/publish"
	"ContentFactory/internal/script"
	"ContentFactory/internal/video"
)

type fakeRenderer struct {
	mu         sync.Mutex
	readyAfter int
	never      bool
	submitErrs []error
	submits    int
	polls      map[string]int
}

func (r *fakeRenderer) IsConfigured() bool { return true }

func (r *fakeRenderer) Submit(context.Context, domain.RenderRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits++
	if len(r.submitErrs) > 0 {
		err := r.submitErrs[0]
		r.submitErrs = r.submitErrs[1:]
		return "", err
	}
	return fmt.Sprintf("job-%d", r.submits), nil
}

func (r *fakeRenderer) Status(_ context.Context, jobID string) (domain.RenderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.polls == nil {
		r.polls = map[string]int{}
	}
	r.polls[jobID]++
	if r.never || r.polls[jobID] < r.readyAfter {
		return domain.RenderStatus{State: domain.RenderRendering}, nil
	}
	return domain.RenderStatus{State: domain.RenderReady, DownloadURL: "https://cdn.example.com/" + jobID + ".mp4"}, nil
}

func (r *fakeRenderer) totalPolls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.polls {
		n += v
	}
	return n
}

type fakePlatform struct {
	name       string
	configured bool
	err        error
	calls      atomic.Int32
}

func (p *fakePlatform) Name() string       { return p.name }
func (p *fakePlatform) IsConfigured() bool { return p.configured }

func (p *fakePlatform) Publish(_ context.Context, v domain.VideoArtifact, _ domain.PublishMetadata) (domain.PublishReceipt, error) {
	n := p.calls.Add(1)
	if p.err != nil {
		return domain.PublishReceipt{}, p.err
	}
	return domain.PublishReceipt{PostID: fmt.Sprintf("%s-%d", p.name, n), URL: "https://" + p.name + ".example.com/" + v.JobID}, nil
}

type stubText struct {
	err  error
	text string
}

func (s stubText) Name() string { return "stub" }

func (s stubText) Generate(context.Context, domain.Prompt) (string, error) {
	return s.text, s.err
}

type panickingScripts struct {
	inner   ScriptGenerator
	panicOn string
}

func (p panickingScripts) Generate(ctx context.Context, product domain.Product) (domain.Script, error) {
	if product.ExternalID == p.panicOn {
		panic("boom")
	}
	return p.inner.Generate(ctx, product)
}

type recorderFunc func(domain.WorkflowResult) error

func (f recorderFunc) Record(_ context.Context, r domain.WorkflowResult) error { return f(r) }

// exhaustedBudgets refuses the named providers and admits everything else.
type exhaustedBudgets map[string]error

func (b exhaustedBudgets) For(provider string) ports.Limiter {
	return exhaustedLimiter{err: b[provider]}
}

type exhaustedLimiter struct{ err error }

func (l exhaustedLimiter) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

type fixture struct {
	clock     *clock.Fake
	renderer  *fakeRenderer
	platforms map[string]*fakePlatform
	deps      OrchestratorDeps
}

func newFixture(platformErrs map[string]error) *fixture {
	clk := clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	renderer := &fakeRenderer{readyAfter: 2}

	f := &fixture{clock: clk, renderer: renderer, platforms: map[string]*fakePlatform{}}
	registry := publish.NewRegistry()
	var enabled []string
	for _, name := range []string{domain.PlatformTikTok, domain.PlatformInstagram, domain.PlatformYouTube} {
		p := &fakePlatform{name: name, configured: true, err: platformErrs[name]}
		f.platforms[name] = p
		registry.Register(p)
		enabled = append(enabled, name)
	}

	f.deps = OrchestratorDeps{
		Scripts: script.NewGenerator(script.Options{
			Provider: stubText{text: words(80)},
			MinWords: 60,
			MaxWords: 300,
			Clock:    clk,
		}),
		Videos:    video.NewProducer(renderer, clk, 300*time.Second, nil),
		Platforms: registry,
		Enabled:   enabled,
		Clock:     clk,
		Policy: Policy{
			MaxConcurrency: 2,
			SubmitAttempts: 3,
			SubmitBackoff:  2 * time.Second,
			PollInitial:    2 * time.Second,
			PollMax:        30 * time.Second,
			PollMultiplier: 2,
		},
	}
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(f.deps)
}

func words(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("w%d", i)
	}
	return out
}

func product(id string) domain.Product {
	return domain.Product{
		ID:          "db-" + id,
		Source:      "fakestore",
		ExternalID:  domain.QualifiedID("fakestore", id),
		Name:        "Widget " + id,
		Description: "A great widget",
		Price:       domain.ParsePrice("$19.99", "USD"),
		SourceURL:   "https://shop.example.com/" + id,
		Category:    "Home & Garden",
	}
}

func TestProcessProductCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusCompleted, r.Status)
	assert.False(t, r.Cancelled)
	require.Len(t, r.Stages, 3)
	for i, stage := range []string{domain.StageScript, domain.StageVideo, domain.StagePublish} {
		assert.Equal(t, stage, r.Stages[i].Stage)
		assert.Equal(t, domain.StageSucceeded, r.Stages[i].State)
	}
	require.NotNil(t, r.Script)
	assert.Equal(t, domain.MethodLLM, r.Script.Method)
	require.NotNil(t, r.Video)
	assert.Equal(t, domain.VideoReady, r.Video.Status)
	assert.Len(t, r.Attempts, 3)
	for _, a := range r.Attempts {
		assert.True(t, a.Succeeded())
		assert.Equal(t, r.Video.ID, a.VideoRef)
	}
	assert.Equal(t, "db-1", r.ProductRef)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))
}

func TestProcessProductFallsBackToTemplate(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.deps.Scripts = script.NewGenerator(script.Options{
		Provider: stubText{err: errors.New("401 invalid api key")},
		MinWords: 60,
		MaxWords: 300,
		Clock:    f.clock,
	})

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusCompleted, r.Status)
	require.NotNil(t, r.Script)
	assert.Equal(t, domain.MethodTemplate, r.Script.Method)
	assert.Contains(t, r.Script.Text, "Widget 1")
	assert.Contains(t, r.Script.Text, "$19.99")
}

func TestProcessProductVideoTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.renderer.never = true

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusFailed, r.Status)
	video, ok := r.Stage(domain.StageVideo)
	require.True(t, ok)
	assert.Equal(t, domain.StageFailed, video.State)
	assert.Equal(t, domain.ReasonTimeout, video.Reason)
	require.NotNil(t, r.Video)
	assert.Equal(t, domain.VideoTimedOut, r.Video.Status)

	publishStage, _ := r.Stage(domain.StagePublish)
	assert.Equal(t, domain.StageSkipped, publishStage.State)
	assert.Empty(t, r.Attempts)
	for _, p := range f.platforms {
		assert.Zero(t, p.calls.Load())
	}

	var total time.Duration
	for _, w := range f.clock.Waits() {
		assert.LessOrEqual(t, w, 30*time.Second)
		total += w
	}
	assert.Equal(t, 300*time.Second, total, "polling stops exactly at the ceiling")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, f.clock.Waits()[:3])
}

func TestProcessProductRetriesSubmit(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.renderer.submitErrs = []error{
		domain.NewProviderStatusError("avatar", 503, "busy"),
		domain.NewProviderStatusError("avatar", 502, "bad gateway"),
	}

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusCompleted, r.Status)
	assert.Equal(t, 3, f.renderer.submits)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.clock.Waits()[:2])
}

func TestProcessProductSubmitNotRetriedOnAuthError(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.renderer.submitErrs = []error{domain.NewProviderStatusError("avatar", 401, "bad key")}

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusFailed, r.Status)
	assert.Equal(t, 1, f.renderer.submits)
	video, _ := r.Stage(domain.StageVideo)
	assert.Equal(t, domain.ReasonSubmitFailed, video.Reason)
}

func TestProcessProductPartialPublish(t *testing.T) {
	t.Parallel()

	f := newFixture(map[string]error{
		domain.PlatformInstagram: &domain.PublishError{Kind: domain.ErrorAuth, Platform: domain.PlatformInstagram, Message: "token expired", StatusCode: 401},
	})

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusPartial, r.Status)
	require.Len(t, r.Attempts, 3)

	byPlatform := map[string]domain.PublishAttempt{}
	for _, a := range r.Attempts {
		byPlatform[a.Platform] = a
	}
	assert.True(t, byPlatform[domain.PlatformTikTok].Succeeded())
	assert.True(t, byPlatform[domain.PlatformYouTube].Succeeded())
	failed := byPlatform[domain.PlatformInstagram]
	assert.Equal(t, domain.PublishFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, domain.ErrorAuth, failed.Error.Kind)

	stage, _ := r.Stage(domain.StagePublish)
	assert.Equal(t, domain.StageFailed, stage.State)
	assert.Contains(t, stage.Detail, domain.PlatformInstagram)
}

func TestProcessProductAllPlatformsFail(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	f := newFixture(map[string]error{
		domain.PlatformTikTok:    down,
		domain.PlatformInstagram: down,
		domain.PlatformYouTube:   down,
	})

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusFailed, r.Status)
	assert.Len(t, r.Attempts, 3)
}

func TestProcessProductNoPlatformConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	for _, p := range f.platforms {
		p.configured = false
	}

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusPartial, r.Status)
	stage, _ := r.Stage(domain.StagePublish)
	assert.Equal(t, domain.StageSkipped, stage.State)
	assert.Empty(t, r.Attempts)
}

func TestProcessProductSkipsUnconfiguredPlatform(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.platforms[domain.PlatformInstagram].configured = false

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusCompleted, r.Status)
	assert.Zero(t, f.platforms[domain.PlatformInstagram].calls.Load())
	require.Len(t, r.Attempts, 2)
	for _, a := range r.Attempts {
		assert.NotEqual(t, domain.PlatformInstagram, a.Platform)
		assert.True(t, a.Succeeded())
	}
	stage, _ := r.Stage(domain.StagePublish)
	assert.Equal(t, domain.StageSucceeded, stage.State)
}

func TestProcessProductUnconfiguredPlatformWithFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(map[string]error{domain.PlatformTikTok: errors.New("connection refused")})
	f.platforms[domain.PlatformInstagram].configured = false

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusPartial, r.Status)
	assert.Zero(t, f.platforms[domain.PlatformInstagram].calls.Load())
	assert.Len(t, r.Attempts, 2)
}

func TestProcessProductPlatformBudgetUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.deps.Budgets = exhaustedBudgets{domain.PlatformInstagram: errors.New("redis: connection refused")}

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusPartial, r.Status)
	assert.False(t, r.Cancelled)
	assert.Zero(t, f.platforms[domain.PlatformInstagram].calls.Load())
	require.Len(t, r.Attempts, 3)

	byPlatform := map[string]domain.PublishAttempt{}
	for _, a := range r.Attempts {
		byPlatform[a.Platform] = a
	}
	refused := byPlatform[domain.PlatformInstagram]
	assert.Equal(t, domain.PublishFailed, refused.Status)
	require.NotNil(t, refused.Error)
	assert.Equal(t, domain.ErrorRateLimit, refused.Error.Kind)
	assert.Contains(t, refused.Error.Message, "redis: connection refused")
	assert.Equal(t, r.Video.ID, refused.VideoRef)
	assert.True(t, byPlatform[domain.PlatformTikTok].Succeeded())
	assert.True(t, byPlatform[domain.PlatformYouTube].Succeeded())

	stage, _ := r.Stage(domain.StagePublish)
	assert.Equal(t, domain.StageFailed, stage.State)
	assert.Contains(t, stage.Detail, domain.PlatformInstagram)
}

func TestProcessProductAvatarBudgetUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.deps.Budgets = exhaustedBudgets{ProviderAvatar: errors.New("redis: connection refused")}

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusFailed, r.Status)
	assert.False(t, r.Cancelled)
	assert.Zero(t, f.renderer.submits)

	stage, ok := r.Stage(domain.StageVideo)
	require.True(t, ok)
	assert.Equal(t, domain.StageFailed, stage.State)
	assert.Equal(t, ReasonBudgetUnavailable, stage.Reason)
	assert.Contains(t, stage.Detail, "redis: connection refused")

	publishStage, _ := r.Stage(domain.StagePublish)
	assert.Equal(t, domain.StageSkipped, publishStage.State)
	assert.Empty(t, r.Attempts)
}

func TestProcessProductMalformed(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	r := f.orchestrator().ProcessProduct(context.Background(), domain.Product{ExternalID: "fakestore:9"})

	assert.Equal(t, domain.StatusFailed, r.Status)
	stage, _ := r.Stage(domain.StageScript)
	assert.Equal(t, domain.StageFailed, stage.State)
	assert.Equal(t, "malformed_product", stage.Reason)
	assert.Zero(t, f.renderer.submits)
}

func TestProcessProductRecorderFailureDoesNotChangeResult(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	var recorded []domain.WorkflowResult
	f.deps.Recorders = []ports.ResultRecorder{
		recorderFunc(func(domain.WorkflowResult) error { return errors.New("db down") }),
		recorderFunc(func(r domain.WorkflowResult) error { recorded = append(recorded, r); return nil }),
	}

	r := f.orchestrator().ProcessProduct(context.Background(), product("1"))

	assert.Equal(t, domain.StatusCompleted, r.Status)
	require.Len(t, recorded, 1)
	assert.Equal(t, r.ID, recorded[0].ID)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.deps.Scripts = panickingScripts{inner: f.deps.Scripts, panicOn: domain.QualifiedID("fakestore", "3")}

	products := []domain.Product{product("1"), product("2"), product("3"), product("4"), product("5")}
	batch := f.orchestrator().ProcessBatch(context.Background(), products)

	require.Len(t, batch.Results, 5)
	seen := map[string]domain.OverallStatus{}
	for _, r := range batch.Results {
		seen[r.Product.ExternalID] = r.Status
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, domain.StatusFailed, seen[domain.QualifiedID("fakestore", "3")])
	for _, id := range []string{"1", "2", "4", "5"} {
		assert.Equal(t, domain.StatusCompleted, seen[domain.QualifiedID("fakestore", id)], id)
	}

	assert.Equal(t, 5, batch.Summary.Total)
	assert.Equal(t, 4, batch.Summary.Completed)
	assert.Equal(t, 1, batch.Summary.Failed)
	assert.Equal(t, 12, batch.Summary.PostsPublished)
	assert.Equal(t, 4*(10000+5000+3000), batch.Summary.PotentialReach)
	assert.Equal(t, float64(100), batch.Summary.SuccessRate)
}

type gatedScripts struct {
	inner   ScriptGenerator
	current atomic.Int32
	peak    atomic.Int32
}

func (g *gatedScripts) Generate(ctx context.Context, p domain.Product) (domain.Script, error) {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return g.inner.Generate(ctx, p)
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.renderer.readyAfter = 1
	gate := &gatedScripts{inner: f.deps.Scripts}
	f.deps.Scripts = gate

	var products []domain.Product
	for i := 0; i < 8; i++ {
		products = append(products, product(fmt.Sprint(i)))
	}
	batch := f.orchestrator().ProcessBatch(context.Background(), products)

	assert.Len(t, batch.Results, 8)
	assert.LessOrEqual(t, gate.peak.Load(), int32(2))
}

func TestProcessBatchReportsDuplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	batch := f.orchestrator().ProcessBatch(context.Background(), []domain.Product{product("1"), product("1"), product("2")})

	assert.Len(t, batch.Results, 2)
	assert.Equal(t, []string{domain.QualifiedID("fakestore", "1")}, batch.Duplicates)
}

func TestProcessBatchCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := f.orchestrator().ProcessBatch(ctx, []domain.Product{product("1"), product("2")})

	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.True(t, r.Cancelled)
		assert.Equal(t, domain.StatusFailed, r.Status)
		stage, _ := r.Stage(domain.StageScript)
		assert.Equal(t, domain.DetailCancelled, stage.Detail)
	}
	assert.Equal(t, 2, batch.Summary.Cancelled)
	assert.Zero(t, f.renderer.submits)
}

func TestProcessBatchCancelledWhilePolling(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.renderer.never = true
	ctx, cancel := context.WithCancel(context.Background())

	var cancelOnce sync.Once
	f.deps.Videos = cancellingProducer{VideoProducer: f.deps.Videos, cancel: func() { cancelOnce.Do(cancel) }}

	batch := f.orchestrator().ProcessBatch(ctx, []domain.Product{product("1")})

	require.Len(t, batch.Results, 1)
	r := batch.Results[0]
	assert.True(t, r.Cancelled)
	stage, _ := r.Stage(domain.StageVideo)
	assert.Equal(t, domain.DetailCancelled, stage.Detail)
	assert.Less(t, f.renderer.totalPolls(), 3)
}

type cancellingProducer struct {
	VideoProducer
	cancel func()
}

func (c cancellingProducer) Poll(ctx context.Context, a domain.VideoArtifact) domain.VideoArtifact {
	out := c.VideoProducer.Poll(ctx, a)
	c.cancel()
	return out
}

type memoryProducts struct {
	items map[string]domain.Product
}

func (m memoryProducts) FindByExternalID(context.Context, string) (domain.Product, bool, error) {
	return domain.Product{}, false, nil
}

func (m memoryProducts) Get(_ context.Context, id string) (domain.Product, error) {
	p, ok := m.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (m memoryProducts) Save(_ context.Context, p domain.Product) (domain.Product, error) {
	return p, nil
}

func (m memoryProducts) ListActive(context.Context, int) ([]domain.Product, error) {
	return nil, nil
}

func TestProcessKnown(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	p := product("7")
	f.deps.Products = memoryProducts{items: map[string]domain.Product{p.ID: p}}
	o := f.orchestrator()

	r, err := o.ProcessKnown(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, r.Status)

	_, err = o.ProcessKnown(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

type reportSource struct {
	report domain.DiscoveryReport
	err    error
}

func (s reportSource) Discover(context.Context) (domain.DiscoveryReport, error) {
	return s.report, s.err
}

func TestDiscoverAndProcess(t *testing.T) {
	t.Parallel()

	t.Run("processes ranked products", func(t *testing.T) {
		f := newFixture(nil)
		f.deps.Discovery = NewDiscovery(reportSource{report: domain.DiscoveryReport{
			Products: []domain.Product{product("1"), product("2"), product("3")},
			Failures: []domain.SourceFailure{{Source: "etsy", Reason: "401"}},
			Sources:  2,
		}}, nil, 1, nil)

		batch, err := f.orchestrator().DiscoverAndProcess(context.Background(), 2)
		require.NoError(t, err)
		assert.Len(t, batch.Results, 2)
		assert.Equal(t, []string{"etsy: 401"}, batch.Warnings)
		assert.Empty(t, batch.DiscoveryError)
	})

	t.Run("all sources failed", func(t *testing.T) {
		f := newFixture(nil)
		f.deps.Discovery = NewDiscovery(reportSource{report: domain.DiscoveryReport{
			Failures: []domain.SourceFailure{{Source: "etsy", Reason: "timeout"}},
			Sources:  1,
		}}, nil, 0, nil)

		batch, err := f.orchestrator().DiscoverAndProcess(context.Background(), 5)
		require.NoError(t, err)
		assert.Empty(t, batch.Results)
		assert.NotEmpty(t, batch.DiscoveryError)
		assert.Equal(t, 0, batch.Summary.Total)
	})

	t.Run("no sources configured", func(t *testing.T) {
		f := newFixture(nil)
		f.deps.Discovery = NewDiscovery(reportSource{err: domain.ErrNoSources}, nil, 0, nil)

		_, err := f.orchestrator().DiscoverAndProcess(context.Background(), 5)
		assert.ErrorIs(t, err, domain.ErrNoSources)
	})
}
