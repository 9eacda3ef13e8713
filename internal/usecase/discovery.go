package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// DiscoveryOutcome is a ranked, persisted and limited set of candidates.
type DiscoveryOutcome struct {
	Products []domain.Product
	Warnings []string
	// Err is set when every configured source failed.
	Err error
}

// Discovery runs the source adapter and turns its report into processable products.
type Discovery struct {
	source      ports.ProductSource
	repo        ports.ProductRepository
	trendingTop int
	logger      *slog.Logger

	// persist serializes the lookup and save of overlapping runs.
	persist sync.Mutex
}

// NewDiscovery builds the discovery use case. repo may be nil, which disables persistence.
func NewDiscovery(source ports.ProductSource, repo ports.ProductRepository, trendingTop int, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Discovery{source: source, repo: repo, trendingTop: trendingTop, logger: logger}
}

// Discover queries every source once. Only configuration errors are returned.
func (d *Discovery) Discover(ctx context.Context, limit int) (DiscoveryOutcome, error) {
	if d.source == nil {
		return DiscoveryOutcome{}, domain.ErrNoSources
	}
	report, err := d.source.Discover(ctx)
	if err != nil {
		return DiscoveryOutcome{}, fmt.Errorf("discover products: %w", err)
	}

	outcome := DiscoveryOutcome{Warnings: report.Warnings(), Err: report.Err()}
	candidates := uniqueCandidates(report.Products)

	stored := make([]domain.Product, 0, len(candidates))
	d.persist.Lock()
	for _, p := range candidates {
		saved, err := d.remember(ctx, p)
		if err != nil {
			d.logger.Warn("persist discovered product", "product", p.ExternalID, "error", err)
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("persist %s: %v", p.ExternalID, err))
			saved = p
		}
		stored = append(stored, saved)
	}
	d.persist.Unlock()

	ranked := Rank(stored)
	for i := range ranked {
		ranked[i].Trending = i < d.trendingTop
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	d.logger.Info("discovery finished",
		"sources", report.Sources,
		"failures", len(report.Failures),
		"candidates", len(candidates),
		"selected", len(ranked))
	outcome.Products = ranked
	return outcome, nil
}

// remember reuses the stored record for an unchanged listing and stores a new one otherwise.
func (d *Discovery) remember(ctx context.Context, p domain.Product) (domain.Product, error) {
	if d.repo == nil || p.Validate() != nil {
		return p, nil
	}
	existing, found, err := d.repo.FindByExternalID(ctx, p.ExternalID)
	if err != nil {
		return p, fmt.Errorf("lookup: %w", err)
	}
	if found && existing.SameListing(p) {
		return existing, nil
	}
	return d.repo.Save(ctx, p)
}

// uniqueCandidates drops in-run duplicates by external id, then by normalized name.
func uniqueCandidates(products []domain.Product) []domain.Product {
	byID := make(map[string]struct{}, len(products))
	byName := make(map[string]struct{}, len(products))
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.ExternalID != "" {
			if _, ok := byID[p.ExternalID]; ok {
				continue
			}
			byID[p.ExternalID] = struct{}{}
		}
		if name := p.NormalizedName(); name != "" {
			if _, ok := byName[name]; ok {
				continue
			}
			byName[name] = struct{}{}
		}
		out = append(out, p)
	}
	return out
}

var sourceBonus = map[string]float64{
	"amazon":     25,
	"shopify":    20,
	"etsy":       18,
	"ebay":       15,
	"storefront": 12,
	"fakestore":  10,
}

var (
	bandLow  = decimal.NewFromInt(10)
	bandMid  = decimal.NewFromInt(100)
	bandHigh = decimal.NewFromInt(500)
)

// Score is the trending score used to order candidates.
func Score(p domain.Product) float64 {
	score := p.Rating * 10
	switch {
	case !p.Price.Known:
		score += 5
	case p.Price.Amount.GreaterThanOrEqual(bandLow) && p.Price.Amount.LessThanOrEqual(bandMid):
		score += 20
	case p.Price.Amount.GreaterThan(bandMid) && p.Price.Amount.LessThanOrEqual(bandHigh):
		score += 15
	default:
		score += 5
	}
	return score + sourceBonus[p.Source]
}

// Rank orders products by descending score. Ties keep discovery order.
func Rank(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)
	sort.SliceStable(out, func(i, j int) bool {
		return Score(out[i]) > Score(out[j])
	})
	return out
}
