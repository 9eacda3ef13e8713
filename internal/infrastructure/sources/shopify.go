package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/source"
)

const shopifyAPIVersion = "2024-10"

// Shopify reads products from a store through the Admin REST API.
type Shopify struct {
	client    *http.Client
	converter *md.Converter
}

func NewShopify(client *http.Client) *Shopify {
	return &Shopify{client: newClient(client), converter: md.NewConverter("", true, nil)}
}

func (s *Shopify) Name() string { return "shopify" }

func (s *Shopify) IsConfigured(req source.Request) bool {
	return req.URL != "" && req.APIKey != ""
}

type shopifyProduct struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	BodyHTML    string `json:"body_html"`
	Handle      string `json:"handle"`
	ProductType string `json:"product_type"`
	Status      string `json:"status"`
	Variants    []struct {
		Price string `json:"price"`
	} `json:"variants"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
}

func (s *Shopify) Fetch(ctx context.Context, req source.Request) ([]domain.Product, error) {
	shop := strings.TrimSuffix(req.URL, "/")
	if !strings.HasPrefix(shop, "http") {
		shop = "https://" + shop
	}
	q := url.Values{}
	q.Set("status", "active")
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	version := req.Option("apiVersion", shopifyAPIVersion)
	target := fmt.Sprintf("%s/admin/api/%s/products.json?%s", shop, version, q.Encode())

	var payload struct {
		Products []shopifyProduct `json:"products"`
	}
	headers := map[string]string{"X-Shopify-Access-Token": req.APIKey}
	if err := getJSON(ctx, s.client, s.Name(), target, headers, &payload); err != nil {
		return nil, err
	}

	storefront := req.Option("storefrontUrl", shop)
	products := make([]domain.Product, 0, len(payload.Products))
	for _, p := range payload.Products {
		product := domain.Product{
			Source:      s.Name(),
			ExternalID:  domain.QualifiedID(s.Name(), strconv.FormatInt(p.ID, 10)),
			Name:        strings.TrimSpace(p.Title),
			Description: s.plainText(p.BodyHTML),
			Price:       domain.UnknownPrice(""),
			Category:    p.ProductType,
		}
		if len(p.Variants) > 0 {
			product.Price = domain.ParsePrice(p.Variants[0].Price, req.Currency)
		}
		if len(p.Images) > 0 {
			product.ImageURL = p.Images[0].Src
		}
		if p.Handle != "" {
			product.SourceURL = strings.TrimSuffix(storefront, "/") + "/products/" + p.Handle
		}
		products = append(products, product)
	}
	return products, nil
}

// plainText converts product HTML into markdown suitable for prompts.
func (s *Shopify) plainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	text, err := s.converter.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(text)
}
