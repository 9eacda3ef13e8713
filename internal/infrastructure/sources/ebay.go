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

const ebayURL = "https://api.ebay.com"

// EBay searches listings through the Browse API with an application token.
type EBay struct {
	client *http.Client
}

func NewEBay(client *http.Client) *EBay {
	return &EBay{client: newClient(client)}
}

func (e *EBay) Name() string { return "ebay" }

func (e *EBay) IsConfigured(req source.Request) bool {
	return req.APIKey != "" && req.Query != ""
}

type ebayItem struct {
	ItemID           string `json:"itemId"`
	Title            string `json:"title"`
	ShortDescription string `json:"shortDescription"`
	Price            struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	Image struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	ItemWebURL string `json:"itemWebUrl"`
	Categories []struct {
		CategoryName string `json:"categoryName"`
	} `json:"categories"`
}

func (e *EBay) Fetch(ctx context.Context, req source.Request) ([]domain.Product, error) {
	base := req.URL
	if base == "" {
		base = ebayURL
	}
	q := url.Values{}
	q.Set("q", req.Query)
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	target := strings.TrimSuffix(base, "/") + "/buy/browse/v1/item_summary/search?" + q.Encode()

	var payload struct {
		ItemSummaries []ebayItem `json:"itemSummaries"`
	}
	headers := map[string]string{
		"Authorization":           "Bearer " + req.APIKey,
		"X-EBAY-C-MARKETPLACE-ID": req.Option("marketplace", "EBAY_US"),
	}
	if err := getJSON(ctx, e.client, e.Name(), target, headers, &payload); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(payload.ItemSummaries))
	for _, it := range payload.ItemSummaries {
		currency := it.Price.Currency
		if currency == "" {
			currency = req.Currency
		}
		product := domain.Product{
			Source:      e.Name(),
			ExternalID:  domain.QualifiedID(e.Name(), it.ItemID),
			Name:        strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.ShortDescription),
			Price:       domain.ParsePrice(strings.TrimSpace(it.Price.Value+" "+currency), currency),
			SourceURL:   it.ItemWebURL,
			ImageURL:    it.Image.ImageURL,
		}
		if len(it.Categories) > 0 {
			product.Category = it.Categories[0].CategoryName
		}
		products = append(products, product)
	}
	return products, nil
}
