package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/httpserver"
	"ContentFactory/internal/infrastructure/avatar"
	"ContentFactory/internal/infrastructure/events"
	"ContentFactory/internal/infrastructure/llm"
	"ContentFactory/internal/infrastructure/platforms"
	"ContentFactory/internal/infrastructure/ratelimit"
	"ContentFactory/internal/infrastructure/scheduler"
	"ContentFactory/internal/infrastructure/sources"
	"ContentFactory/internal/infrastructure/storage"
	"ContentFactory/internal/logging"
	"ContentFactory/internal/ports"
	"ContentFactory/internal/publish"
	"ContentFactory/internal/script"
	"ContentFactory/internal/source"
	"ContentFactory/internal/usecase"
	"ContentFactory/internal/video"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	products     ports.ProductRepository
	discovery    *usecase.Discovery
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	server       *httpserver.Server
	closers      []func() error
}

// New builds every collaborator from configuration. Optional backends (Postgres,
// Redis, Kafka, S3) are only dialled when configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}
	clk := clock.Real{}

	products, recorders, err := a.stores(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.products = products

	more, err := a.eventSinks(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	recorders = append(recorders, more...)

	budgets := a.budgets(clk)

	registry := source.NewRegistry()
	registry.Register(sources.NewFakeStore(nil))
	registry.Register(sources.NewShopify(nil))
	registry.Register(sources.NewEBay(nil))
	registry.Register(sources.NewEtsy(nil))
	registry.Register(sources.NewStorefront(nil))

	feeds := sources.NewStrategySource(registry, cfg.Sources, clk, baseLogger.With("component", "source"))
	a.discovery = usecase.NewDiscovery(feeds, products, cfg.Ranking.TrendingTop, baseLogger.With("component", "discovery"))

	scripts := script.NewGenerator(script.Options{
		Provider:     textProvider(cfg.Script),
		Limiter:      budgets.For(usecase.ProviderTextGen),
		SystemPrompt: cfg.Script.OpenAI.SystemPrompt,
		MinWords:     cfg.Script.MinWords,
		MaxWords:     cfg.Script.MaxWords,
		Clock:        clk,
		Logger:       baseLogger.With("component", "script"),
	})

	videos := video.NewProducer(avatar.NewClient(cfg.Avatar), clk, cfg.Workflow.Poll.Timeout, baseLogger.With("component", "video"))

	platformRegistry := publish.NewRegistry(
		platforms.NewTikTok(cfg.Platforms.TikTok),
		platforms.NewInstagram(cfg.Platforms.Instagram, clk),
		platforms.NewYouTube(cfg.Platforms.YouTube),
		platforms.NewTelegram(cfg.Platforms.Telegram),
	)

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Scripts:   scripts,
		Videos:    videos,
		Publisher: publish.NewPublisher(clk, baseLogger.With("component", "publish")),
		Platforms: platformRegistry,
		Enabled:   cfg.Workflow.Platforms,
		Products:  products,
		Discovery: a.discovery,
		Budgets:   budgets,
		Recorders: recorders,
		Clock:     clk,
		Logger:    baseLogger.With("component", "orchestrator"),
		Policy: usecase.Policy{
			MaxConcurrency: cfg.Workflow.MaxConcurrency,
			SubmitAttempts: cfg.Workflow.SubmitAttempts,
			SubmitBackoff:  cfg.Workflow.SubmitBackoff,
			PollInitial:    cfg.Workflow.Poll.InitialInterval,
			PollMax:        cfg.Workflow.Poll.MaxInterval,
			PollMultiplier: cfg.Workflow.Poll.Multiplier,
		},
	})

	if expr := strings.TrimSpace(cfg.Scheduler.CronExpression); expr != "" {
		driver, err := scheduler.NewCronScheduler(expr, cfg.Scheduler.Location(), baseLogger.With("component", "cron"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.scheduler = usecase.NewScheduler(driver, a.orchestrator, cfg.Scheduler.ProductLimit, baseLogger.With("component", "scheduler"))
	}

	a.server = httpserver.New(cfg.HTTP, a.orchestrator, products, cfg.Workflow.DefaultLimit, baseLogger.With("component", "http"))
	return a, nil
}

func (a *Application) stores(ctx context.Context) (ports.ProductRepository, []ports.ResultRecorder, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database configured, using in-memory stores")
		return storage.NewMemoryProducts(), []ports.ResultRecorder{storage.NewMemoryResults()}, nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		return nil, nil, err
	}
	return storage.NewPostgresProducts(db), []ports.ResultRecorder{storage.NewPostgresResults(db)}, nil
}

func (a *Application) eventSinks(ctx context.Context) ([]ports.ResultRecorder, error) {
	var recorders []ports.ResultRecorder

	if len(a.cfg.Events.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(a.cfg.Events.Kafka)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		recorders = append(recorders, publisher)
	}

	if a.cfg.Events.S3.Bucket != "" {
		archive, err := events.NewS3Archive(ctx, a.cfg.Events.S3)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, archive)
	}

	return recorders, nil
}

func (a *Application) budgets(clk clock.Clock) ports.Budgets {
	if strings.EqualFold(a.cfg.RateLimits.Backend, "redis") && a.cfg.RateLimits.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.cfg.RateLimits.RedisAddr})
		a.closers = append(a.closers, client.Close)
		return ratelimit.NewRedisBudgets(client, a.cfg.RateLimits, clk)
	}
	return ratelimit.NewBudgets(a.cfg.RateLimits)
}

// textProvider picks the configured text generator; nil selects template-only scripts.
func textProvider(cfg config.ScriptConfig) ports.TextGenerator {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		if cfg.Anthropic.APIKey != "" {
			return llm.NewAnthropicClient(cfg.Anthropic)
		}
	case "openai", "":
		if cfg.OpenAI.APIKey != "" {
			return llm.NewOpenAIClient(cfg.OpenAI)
		}
	}
	return nil
}

// Serve runs the HTTP API and, when configured, the cron trigger until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.scheduler != nil {
		if err := a.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return a.scheduler.Stop(context.WithoutCancel(gctx))
		})
	}

	g.Go(func() error {
		return a.server.Run(gctx)
	})

	return g.Wait()
}

// RunOnce discovers and processes up to limit products.
func (a *Application) RunOnce(ctx context.Context, limit int) (domain.BatchResult, error) {
	return a.orchestrator.DiscoverAndProcess(ctx, a.limit(limit))
}

// ProcessProduct runs the pipeline for a stored product.
func (a *Application) ProcessProduct(ctx context.Context, productID string) (domain.WorkflowResult, error) {
	return a.orchestrator.ProcessKnown(ctx, productID)
}

// Discover runs discovery only and returns the ranked candidates.
func (a *Application) Discover(ctx context.Context, limit int) (usecase.DiscoveryOutcome, error) {
	return a.discovery.Discover(ctx, a.limit(limit))
}

func (a *Application) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	return a.cfg.Workflow.DefaultLimit
}

// Close releases backend connections in reverse order of creation.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
