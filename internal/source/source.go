package source

import (
	"context"
	"fmt"
	"sort"

	"ContentFactory/internal/domain"
)

// Request carries everything a source adapter needs for one fetch.
type Request struct {
	Name     string
	Kind     string
	URL      string
	APIKey   string
	Query    string
	Limit    int
	Currency string
	Options  map[string]string
}

// Option returns an adapter specific option or the fallback.
func (r Request) Option(key, fallback string) string {
	if v, ok := r.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Source captures a single e-commerce feed implementation (FakeStore, Shopify, ...).
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.Product, error)
}

// CredentialChecker is implemented by sources that need credentials before fetching.
type CredentialChecker interface {
	IsConfigured(req Request) bool
}

// Registry keeps a mapping from source kinds to their implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(src Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[src.Name()] = src
}

// Resolve returns a source by kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Source, error) {
	if src, ok := r.sources[kind]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("source %s is not registered", kind)
}

// Kinds lists registered source kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.sources))
	for k := range r.sources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
