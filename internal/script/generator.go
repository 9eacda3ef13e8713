package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

var (
	errNoProvider = errors.New("no text provider configured")
	errEmptyText  = errors.New("provider returned empty text")
)

// Options wires the generator collaborators. MinWords/MaxWords bound every script.
type Options struct {
	Provider     ports.TextGenerator
	Limiter      ports.Limiter
	SystemPrompt string
	MinWords     int
	MaxWords     int
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Generator turns products into narration, preferring the text provider and
// falling back to a local template.
type Generator struct {
	provider     ports.TextGenerator
	limiter      ports.Limiter
	systemPrompt string
	minWords     int
	maxWords     int
	clock        clock.Clock
	logger       *slog.Logger
}

// NewGenerator builds a generator; a nil provider means every script uses the template.
func NewGenerator(opts Options) *Generator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.MinWords < 1 {
		opts.MinWords = 1
	}
	if opts.MaxWords < opts.MinWords {
		opts.MaxWords = opts.MinWords
	}
	return &Generator{
		provider:     opts.Provider,
		limiter:      opts.Limiter,
		systemPrompt: opts.SystemPrompt,
		minWords:     opts.MinWords,
		maxWords:     opts.MaxWords,
		clock:        opts.Clock,
		logger:       opts.Logger,
	}
}

// Generate returns a new Script for the product. The only error is ErrMalformedProduct.
func (g *Generator) Generate(ctx context.Context, product domain.Product) (domain.Script, error) {
	if err := product.Validate(); err != nil {
		return domain.Script{}, err
	}

	text, err := g.primary(ctx, product)
	if err == nil {
		return g.newScript(product, text, domain.MethodLLM, g.provider.Name(), ""), nil
	}

	g.warn("script generation fell back to template", "product", product.ExternalID, "error", err)
	return g.newScript(product, Template(product, g.minWords, g.maxWords), domain.MethodTemplate, "", err.Error()), nil
}

func (g *Generator) primary(ctx context.Context, product domain.Product) (string, error) {
	if g.provider == nil {
		return "", errNoProvider
	}

	if g.limiter != nil {
		release, err := g.limiter.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("acquire text budget: %w", err)
		}
		defer release()
	}

	raw, err := g.provider.Generate(ctx, BuildPrompt(product, g.systemPrompt, g.minWords, g.maxWords))
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.provider.Name(), err)
	}

	text := cleanText(raw)
	if text == "" {
		return "", errEmptyText
	}
	text = Fit(text, g.minWords, g.maxWords)
	if n := WordCount(text); n < g.minWords {
		return "", fmt.Errorf("provider text below floor: %d words < %d", n, g.minWords)
	}
	return text, nil
}

func (g *Generator) newScript(product domain.Product, text string, method domain.GenerationMethod, provider, reason string) domain.Script {
	return domain.Script{
		ID:             uuid.NewString(),
		ProductRef:     productRef(product),
		Text:           text,
		Method:         method,
		Provider:       provider,
		FallbackReason: reason,
		CreatedAt:      g.clock.Now().UTC(),
	}
}

// BuildPrompt renders the deterministic prompt for a product.
func BuildPrompt(product domain.Product, system string, minWords, maxWords int) domain.Prompt {
	if strings.TrimSpace(system) == "" {
		system = "You write upbeat, spoken video scripts for short product videos."
	}
	description := strings.TrimSpace(product.Description)
	if description == "" {
		description = "(no description provided)"
	}

	user := fmt.Sprintf(`Write a spoken script of %d to %d words for a short vertical product video.
Product: %s
Description: %s
Price: %s
Mention the product name and the price. Return only the narration text, without headings, stage directions or hashtags.`,
		minWords, maxWords, strings.TrimSpace(product.Name), description, product.Price.String())

	return domain.Prompt{System: system, User: user}
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Fit truncates text to maxWords, preferring to stop at a sentence end that keeps at least minWords.
// Text within bounds is returned unchanged.
func Fit(text string, minWords, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}

	cut := words[:maxWords]
	for i := len(cut) - 1; i+1 >= minWords && i >= 0; i-- {
		if endsSentence(cut[i]) {
			return strings.Join(cut[:i+1], " ")
		}
	}
	return strings.Join(cut, " ")
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')”`)
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

func cleanText(raw string) string {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	text = strings.Trim(text, "\"“”")
	return strings.TrimSpace(text)
}

func productRef(p domain.Product) string {
	if p.ID != "" {
		return p.ID
	}
	return p.ExternalID
}

func (g *Generator) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
