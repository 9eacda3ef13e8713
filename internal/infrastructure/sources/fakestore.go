package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/source"
)

const fakeStoreURL = "https://fakestoreapi.com/products"

// FakeStore reads the public FakeStore catalogue. No credentials needed.
type FakeStore struct {
	client *http.Client
}

func NewFakeStore(client *http.Client) *FakeStore {
	return &FakeStore{client: newClient(client)}
}

func (f *FakeStore) Name() string { return "fakestore" }

type fakeStoreItem struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

func (f *FakeStore) Fetch(ctx context.Context, req source.Request) ([]domain.Product, error) {
	base := req.URL
	if base == "" {
		base = fakeStoreURL
	}
	target, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 {
		q := target.Query()
		q.Set("limit", strconv.Itoa(req.Limit))
		target.RawQuery = q.Encode()
	}

	var items []fakeStoreItem
	if err := getJSON(ctx, f.client, f.Name(), target.String(), nil, &items); err != nil {
		return nil, err
	}

	site := strings.TrimSuffix(base, "/")
	products := make([]domain.Product, 0, len(items))
	for _, it := range items {
		id := strconv.FormatInt(it.ID, 10)
		products = append(products, domain.Product{
			Source:      f.Name(),
			ExternalID:  domain.QualifiedID(f.Name(), id),
			Name:        strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.Description),
			Price:       domain.PriceFromFloat(it.Price, req.Currency),
			SourceURL:   site + "/" + id,
			ImageURL:    it.Image,
			Category:    it.Category,
			Rating:      it.Rating.Rate,
		})
	}
	return products, nil
}
