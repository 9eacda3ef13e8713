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

const etsyURL = "https://openapi.etsy.com"

// Etsy reads active listings through Open API v3.
type Etsy struct {
	client *http.Client
}

func NewEtsy(client *http.Client) *Etsy {
	return &Etsy{client: newClient(client)}
}

func (e *Etsy) Name() string { return "etsy" }

func (e *Etsy) IsConfigured(req source.Request) bool {
	return req.APIKey != ""
}

type etsyListing struct {
	ListingID   int64  `json:"listing_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Price       struct {
		Amount       int64  `json:"amount"`
		Divisor      int64  `json:"divisor"`
		CurrencyCode string `json:"currency_code"`
	} `json:"price"`
	TaxonomyPath []string `json:"taxonomy_path"`
}

func (e *Etsy) Fetch(ctx context.Context, req source.Request) ([]domain.Product, error) {
	base := req.URL
	if base == "" {
		base = etsyURL
	}
	q := url.Values{}
	if req.Query != "" {
		q.Set("keywords", req.Query)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	q.Set("sort_on", req.Option("sortOn", "score"))
	target := strings.TrimSuffix(base, "/") + "/v3/application/listings/active?" + q.Encode()

	var payload struct {
		Count   int           `json:"count"`
		Results []etsyListing `json:"results"`
	}
	if err := getJSON(ctx, e.client, e.Name(), target, map[string]string{"x-api-key": req.APIKey}, &payload); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(payload.Results))
	for _, l := range payload.Results {
		currency := l.Price.CurrencyCode
		if currency == "" {
			currency = req.Currency
		}
		product := domain.Product{
			Source:      e.Name(),
			ExternalID:  domain.QualifiedID(e.Name(), strconv.FormatInt(l.ListingID, 10)),
			Name:        strings.TrimSpace(l.Title),
			Description: strings.TrimSpace(l.Description),
			Price:       domain.PriceFromMinorUnits(l.Price.Amount, l.Price.Divisor, currency),
			SourceURL:   l.URL,
		}
		if n := len(l.TaxonomyPath); n > 0 {
			product.Category = l.TaxonomyPath[n-1]
		}
		products = append(products, product)
	}
	return products, nil
}
