package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// MemoryProducts is the product repository used when no database is configured.
type MemoryProducts struct {
	mu      sync.RWMutex
	records []domain.Product
}

var _ ports.ProductRepository = (*MemoryProducts)(nil)

func NewMemoryProducts() *MemoryProducts {
	return &MemoryProducts{}
}

func (m *MemoryProducts) FindByExternalID(_ context.Context, externalID string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].ExternalID == externalID {
			return m.records[i], true, nil
		}
	}
	return domain.Product{}, false, nil
}

func (m *MemoryProducts) Get(_ context.Context, id string) (domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.records {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
}

func (m *MemoryProducts) Save(_ context.Context, product domain.Product) (domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, product)
	return product, nil
}

// ListActive returns the latest record per listing, newest first.
func (m *MemoryProducts) ListActive(_ context.Context, limit int) ([]domain.Product, error) {
	m.mu.RLock()
	latest := make(map[string]domain.Product, len(m.records))
	for _, p := range m.records {
		latest[p.ExternalID] = p
	}
	m.mu.RUnlock()

	out := make([]domain.Product, 0, len(latest))
	for _, p := range latest {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].DiscoveredAt.After(out[j].DiscoveredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryResults keeps recorded results in process.
type MemoryResults struct {
	mu      sync.Mutex
	results []domain.WorkflowResult
}

var _ ports.ResultRecorder = (*MemoryResults)(nil)

func NewMemoryResults() *MemoryResults {
	return &MemoryResults{}
}

func (m *MemoryResults) Record(_ context.Context, result domain.WorkflowResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

// Results returns a copy of everything recorded so far.
func (m *MemoryResults) Results() []domain.WorkflowResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.WorkflowResult(nil), m.results...)
}
