package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"ContentFactory/internal/clock"
	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
	"ContentFactory/internal/source"
)

// StrategySource implements ProductSource via registered source strategies.
type StrategySource struct {
	registry *source.Registry
	feeds    []config.SourceConfig
	clock    clock.Clock
	logger   *slog.Logger
}

var _ ports.ProductSource = (*StrategySource)(nil)

// NewStrategySource wires the source registry with config-defined feeds.
func NewStrategySource(reg *source.Registry, feeds []config.SourceConfig, clk clock.Clock, log *slog.Logger) *StrategySource {
	if clk == nil {
		clk = clock.Real{}
	}
	return &StrategySource{
		registry: reg,
		feeds:    feeds,
		clock:    clk,
		logger:   log,
	}
}

// Discover queries every configured feed concurrently. A failing feed becomes a
// SourceFailure and never aborts the others.
func (s *StrategySource) Discover(ctx context.Context) (domain.DiscoveryReport, error) {
	if s.registry == nil || len(s.feeds) == 0 {
		return domain.DiscoveryReport{}, domain.ErrNoSources
	}

	s.debug("discover", "feeds", len(s.feeds))

	found := make([][]domain.Product, len(s.feeds))
	failures := make([]*domain.SourceFailure, len(s.feeds))

	var g errgroup.Group
	for i, feed := range s.feeds {
		g.Go(func() error {
			products, err := s.fetch(ctx, feed)
			if err != nil {
				s.warn("source failed", "source", feed.Name, "kind", feed.Kind, "error", err)
				failures[i] = &domain.SourceFailure{Source: feed.Name, Reason: err.Error()}
				return nil
			}
			s.debug("source produced products", "source", feed.Name, "count", len(products))
			found[i] = products
			return nil
		})
	}
	_ = g.Wait()

	report := domain.DiscoveryReport{Sources: len(s.feeds)}
	for i := range s.feeds {
		report.Products = append(report.Products, found[i]...)
		if failures[i] != nil {
			report.Failures = append(report.Failures, *failures[i])
		}
	}

	s.debug("strategy source done", "total_products", len(report.Products), "failures", len(report.Failures))
	return report, nil
}

func (s *StrategySource) fetch(ctx context.Context, feed config.SourceConfig) (products []domain.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			products, err = nil, fmt.Errorf("source panic: %v", r)
		}
	}()

	strategy, err := s.registry.Resolve(feed.Kind)
	if err != nil {
		return nil, err
	}

	req := source.Request{
		Name:     feed.Name,
		Kind:     feed.Kind,
		URL:      feed.URL,
		APIKey:   feed.APIKey,
		Query:    feed.Query,
		Limit:    feed.Limit,
		Currency: feed.Currency,
		Options:  feed.Options,
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if checker, ok := strategy.(source.CredentialChecker); ok && !checker.IsConfigured(req) {
		return nil, fmt.Errorf("missing credentials for %s", feed.Kind)
	}

	fetched, err := strategy.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	out := make([]domain.Product, 0, len(fetched))
	for _, p := range fetched {
		if p.Source == "" {
			p.Source = feed.Kind
		}
		if p.ExternalID != "" && !strings.HasPrefix(p.ExternalID, p.Source+":") {
			p.ExternalID = domain.QualifiedID(p.Source, p.ExternalID)
		}
		if p.DiscoveredAt.IsZero() {
			p.DiscoveredAt = now
		}
		out = append(out, p)
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
