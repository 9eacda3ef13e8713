package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "CONTENT_FACTORY_CONFIG"
	logLevelEnv     = "LOG_LEVEL"
	httpAddrEnv     = "HTTP_ADDR"
	jwtSecretEnv    = "API_JWT_SECRET"
	databaseDSNEnv  = "DATABASE_DSN"
	redisAddrEnv    = "REDIS_ADDR"
	kafkaBrokersEnv = "KAFKA_BROKERS"
	s3BucketEnv     = "RESULTS_S3_BUCKET"

	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	avatarAPIKeyEnv    = "AVATAR_API_KEY"

	tiktokTokenEnv         = "TIKTOK_ACCESS_TOKEN"
	instagramTokenEnv      = "INSTAGRAM_ACCESS_TOKEN"
	instagramUserEnv       = "INSTAGRAM_USER_ID"
	youtubeClientIDEnv     = "YOUTUBE_CLIENT_ID"
	youtubeClientSecretEnv = "YOUTUBE_CLIENT_SECRET"
	youtubeRefreshEnv      = "YOUTUBE_REFRESH_TOKEN"
	telegramTokenEnv       = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv      = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig   `yaml:"logging"`
	HTTP       HTTPConfig      `yaml:"http"`
	Database   DatabaseConfig  `yaml:"database"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Workflow   WorkflowConfig  `yaml:"workflow"`
	Script     ScriptConfig    `yaml:"script"`
	Avatar     AvatarConfig    `yaml:"avatar"`
	Platforms  PlatformsConfig `yaml:"platforms"`
	RateLimits RateLimitConfig `yaml:"rateLimits"`
	Events     EventsConfig    `yaml:"events"`
	Sources    []SourceConfig  `yaml:"sources"`
	Ranking    RankingConfig   `yaml:"ranking"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig configures the trigger API.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	JWTSecret       string        `yaml:"jwtSecret"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects in-memory stores.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when scheduled runs happen. An empty expression disables scheduling.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	ProductLimit   int            `yaml:"productLimit"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// WorkflowConfig is the orchestrator configuration surface.
type WorkflowConfig struct {
	Platforms      []string      `yaml:"platforms"`
	MaxConcurrency int           `yaml:"maxConcurrency"`
	SubmitAttempts int           `yaml:"submitAttempts"`
	SubmitBackoff  time.Duration `yaml:"submitBackoff"`
	Poll           PollConfig    `yaml:"poll"`
	DefaultLimit   int           `yaml:"defaultLimit"`
}

// PollConfig controls the video status poll loop.
type PollConfig struct {
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Multiplier      float64       `yaml:"multiplier"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ScriptConfig selects the text provider and length bounds (in words).
type ScriptConfig struct {
	Provider  string          `yaml:"provider"`
	MinWords  int             `yaml:"minWords"`
	MaxWords  int             `yaml:"maxWords"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig defines how to contact an OpenAI-compatible chat API.
type OpenAIConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AnthropicConfig defines the Anthropic Messages settings.
type AnthropicConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

// AvatarConfig points at the avatar rendering service.
type AvatarConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	AvatarID string        `yaml:"avatarId"`
	VoiceID  string        `yaml:"voiceId"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PlatformsConfig groups credentials for each social platform.
type PlatformsConfig struct {
	TikTok    TikTokConfig    `yaml:"tiktok"`
	Instagram InstagramConfig `yaml:"instagram"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// TikTokConfig wires the Content Posting API.
type TikTokConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessToken  string `yaml:"accessToken"`
	PrivacyLevel string `yaml:"privacyLevel"`
	Username     string `yaml:"username"`
}

// InstagramConfig wires the Graph API for Reels.
type InstagramConfig struct {
	GraphURL     string        `yaml:"graphUrl"`
	UserID       string        `yaml:"userId"`
	AccessToken  string        `yaml:"accessToken"`
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxPolls     int           `yaml:"maxPolls"`
}

// YouTubeConfig wires the Data API upload with an OAuth refresh token.
type YouTubeConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`
	CategoryID   string `yaml:"categoryId"`
	Privacy      string `yaml:"privacy"`
}

// TelegramConfig wires all data required to post videos to a channel.
type TelegramConfig struct {
	Endpoint string `yaml:"endpoint"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// RateLimitConfig describes per-provider budgets.
type RateLimitConfig struct {
	Backend   string                   `yaml:"backend"`
	RedisAddr string                   `yaml:"redisAddr"`
	Default   ProviderLimit            `yaml:"default"`
	Providers map[string]ProviderLimit `yaml:"providers"`
}

// ProviderLimit bounds calls per second and in-flight calls for one provider.
type ProviderLimit struct {
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
	MaxInFlight   int     `yaml:"maxInFlight"`
}

// EventsConfig enables result fan-out to Kafka and S3.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
	S3    S3Config    `yaml:"s3"`
}

// KafkaConfig describes the results topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// S3Config describes the results archive bucket.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// SourceConfig describes a single product feed.
type SourceConfig struct {
	Name     string            `yaml:"name"`
	Kind     string            `yaml:"kind"`
	URL      string            `yaml:"url"`
	APIKey   string            `yaml:"apiKey"`
	Query    string            `yaml:"query"`
	Limit    int               `yaml:"limit"`
	Currency string            `yaml:"currency"`
	Options  map[string]string `yaml:"options"`
}

// RankingConfig tunes product selection.
type RankingConfig struct {
	TrendingTop int `yaml:"trendingTop"`
}

// Load reads YAML configuration (if present) over defaults and applies environment overrides.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the orchestrator relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Workflow.MaxConcurrency < 1 {
		errs = append(errs, errors.New("workflow.maxConcurrency must be at least 1"))
	}
	if c.Workflow.Poll.Timeout <= 0 {
		errs = append(errs, errors.New("workflow.poll.timeout must be positive"))
	}
	if c.Workflow.Poll.InitialInterval <= 0 || c.Workflow.Poll.MaxInterval < c.Workflow.Poll.InitialInterval {
		errs = append(errs, errors.New("workflow.poll intervals must be positive and maxInterval >= initialInterval"))
	}
	if c.Script.MinWords < 1 || c.Script.MaxWords < c.Script.MinWords {
		errs = append(errs, errors.New("script.minWords must be positive and not above script.maxWords"))
	}
	for i, src := range c.Sources {
		if src.Name == "" || src.Kind == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name and kind are required", i))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.HTTP.Addr, httpAddrEnv)
	setString(&c.HTTP.JWTSecret, jwtSecretEnv)
	setString(&c.Database.DSN, databaseDSNEnv)
	setString(&c.RateLimits.RedisAddr, redisAddrEnv)
	setString(&c.Events.S3.Bucket, s3BucketEnv)

	setString(&c.Script.OpenAI.APIKey, openAIAPIKeyEnv)
	setString(&c.Script.OpenAI.Model, openAIModelEnv)
	setString(&c.Script.Anthropic.APIKey, anthropicAPIKeyEnv)
	setString(&c.Avatar.APIKey, avatarAPIKeyEnv)

	setString(&c.Platforms.TikTok.AccessToken, tiktokTokenEnv)
	setString(&c.Platforms.Instagram.AccessToken, instagramTokenEnv)
	setString(&c.Platforms.Instagram.UserID, instagramUserEnv)
	setString(&c.Platforms.YouTube.ClientID, youtubeClientIDEnv)
	setString(&c.Platforms.YouTube.ClientSecret, youtubeClientSecretEnv)
	setString(&c.Platforms.YouTube.RefreshToken, youtubeRefreshEnv)
	setString(&c.Platforms.Telegram.BotToken, telegramTokenEnv)
	setString(&c.Platforms.Telegram.ChatID, telegramChatIDEnv)

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Events.Kafka.Brokers = splitList(v)
	}

	// Per-source keys: SOURCE_<NAME>_API_KEY, e.g. SOURCE_SHOPIFY_API_KEY.
	for i := range c.Sources {
		key := "SOURCE_" + strings.ToUpper(strings.ReplaceAll(c.Sources[i].Name, "-", "_")) + "_API_KEY"
		setString(&c.Sources[i].APIKey, key)
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RequestTimeout:  15 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Scheduler: SchedulerConfig{Timezone: defaultTimezone, ProductLimit: 3, location: tz},
		Workflow: WorkflowConfig{
			Platforms:      []string{"tiktok", "instagram", "youtube", "telegram"},
			MaxConcurrency: 4,
			SubmitAttempts: 3,
			SubmitBackoff:  2 * time.Second,
			Poll: PollConfig{
				InitialInterval: 2 * time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2,
				Timeout:         300 * time.Second,
			},
			DefaultLimit: 5,
		},
		Script: ScriptConfig{
			Provider: "openai",
			MinWords: 60,
			MaxWords: 300,
			OpenAI: OpenAIConfig{
				Endpoint:     "https://api.openai.com/v1/chat/completions",
				Model:        "gpt-4o-mini",
				SystemPrompt: "You write upbeat, spoken video scripts for short product videos.",
				Timeout:      30 * time.Second,
			},
			Anthropic: AnthropicConfig{
				Model:       "claude-3-5-haiku-latest",
				MaxTokens:   800,
				Temperature: 0.7,
			},
		},
		Avatar: AvatarConfig{
			Endpoint: "https://api.heygen.com",
			Width:    1080,
			Height:   1920,
			Timeout:  20 * time.Second,
		},
		Platforms: PlatformsConfig{
			TikTok:    TikTokConfig{Endpoint: "https://open.tiktokapis.com", PrivacyLevel: "PUBLIC_TO_EVERYONE"},
			Instagram: InstagramConfig{GraphURL: "https://graph.facebook.com/v21.0", PollInterval: 5 * time.Second, MaxPolls: 24},
			YouTube:   YouTubeConfig{CategoryID: "22", Privacy: "public"},
			Telegram:  TelegramConfig{Endpoint: "https://api.telegram.org"},
		},
		RateLimits: RateLimitConfig{
			Backend: "memory",
			Default: ProviderLimit{RatePerSecond: 2, Burst: 2, MaxInFlight: 4},
			Providers: map[string]ProviderLimit{
				"textgen": {RatePerSecond: 1, Burst: 2, MaxInFlight: 2},
				"avatar":  {RatePerSecond: 1, Burst: 1, MaxInFlight: 2},
			},
		},
		Events: EventsConfig{Kafka: KafkaConfig{Topic: "content.workflow.results"}, S3: S3Config{Prefix: "content-factory"}},
		Sources: []SourceConfig{
			{Name: "fakestore", Kind: "fakestore", URL: "https://fakestoreapi.com/products", Limit: 20, Currency: "USD"},
		},
		Ranking: RankingConfig{TrendingTop: 3},
	}
}
