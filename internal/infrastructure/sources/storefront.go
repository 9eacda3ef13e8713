package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/source"
)

// Selector option keys and their defaults.
const (
	optItem        = "item"
	optName        = "name"
	optPrice       = "price"
	optLink        = "link"
	optImage       = "image"
	optDescription = "description"
	optCategory    = "category"
	optRating      = "rating"
	optIDAttr      = "idAttr"
	optPages       = "pages"
	optPageParam   = "pageParam"
)

var selectorDefaults = map[string]string{
	optItem:        ".product",
	optName:        ".product-title",
	optPrice:       ".price",
	optLink:        "a[href]",
	optImage:       "img",
	optDescription: ".description",
	optCategory:    ".category",
	optRating:      "[data-rating]",
	optIDAttr:      "data-product-id",
	optPages:       "1",
	optPageParam:   "page",
}

// Storefront scrapes product tiles from HTML listing pages using CSS selectors.
type Storefront struct {
	client *http.Client
}

// NewStorefront wires an HTTP client; nil selects a 20s timeout client.
func NewStorefront(client *http.Client) *Storefront {
	return &Storefront{client: newClient(client)}
}

// Name identifies the strategy inside the registry.
func (s *Storefront) Name() string {
	return "storefront"
}

// IsConfigured requires a listing URL.
func (s *Storefront) IsConfigured(req source.Request) bool {
	return req.URL != ""
}

// Fetch walks listing pages until the limit, the page budget or an empty page is reached.
func (s *Storefront) Fetch(ctx context.Context, req source.Request) ([]domain.Product, error) {
	pages, err := strconv.Atoi(option(req, optPages))
	if err != nil || pages < 1 {
		pages = 1
	}

	results := make([]domain.Product, 0)
	seen := map[string]struct{}{}

	for page := 1; page <= pages; page++ {
		pageURL, err := buildPageURL(req.URL, option(req, optPageParam), page)
		if err != nil {
			return nil, err
		}

		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		pageProducts := extractProducts(doc, req)
		if len(pageProducts) == 0 {
			break
		}
		for _, product := range pageProducts {
			if _, ok := seen[product.ExternalID]; ok {
				continue
			}
			seen[product.ExternalID] = struct{}{}
			results = append(results, product)
			if req.Limit > 0 && len(results) >= req.Limit {
				return results, nil
			}
		}
	}

	return results, nil
}

func (s *Storefront) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewProviderStatusError("storefront", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractProducts(doc *goquery.Document, req source.Request) []domain.Product {
	base, _ := url.Parse(req.URL)

	var collected []domain.Product
	doc.Find(option(req, optItem)).Each(func(_ int, item *goquery.Selection) {
		product, err := parseTile(item, base, req)
		if err != nil {
			return
		}
		collected = append(collected, product)
	})
	return collected
}

func parseTile(item *goquery.Selection, base *url.URL, req source.Request) (domain.Product, error) {
	name := strings.TrimSpace(item.Find(option(req, optName)).First().Text())
	if name == "" {
		return domain.Product{}, fmt.Errorf("tile without name")
	}

	href, _ := item.Find(option(req, optLink)).First().Attr("href")
	link := resolve(base, href)

	id, _ := item.Attr(option(req, optIDAttr))
	if id == "" {
		id = link
	}
	if id == "" {
		return domain.Product{}, fmt.Errorf("tile %q without id or link", name)
	}

	image := item.Find(option(req, optImage)).First()
	src, ok := image.Attr("src")
	if !ok {
		src, _ = image.Attr("data-src")
	}

	var rating float64
	if raw, ok := item.Find(option(req, optRating)).First().Attr("data-rating"); ok {
		rating, _ = strconv.ParseFloat(strings.TrimSpace(raw), 64)
	}

	return domain.Product{
		Source:      "storefront",
		ExternalID:  domain.QualifiedID("storefront", id),
		Name:        name,
		Description: strings.Join(strings.Fields(item.Find(option(req, optDescription)).First().Text()), " "),
		Price:       domain.ParsePrice(item.Find(option(req, optPrice)).First().Text(), req.Currency),
		SourceURL:   link,
		ImageURL:    resolve(base, src),
		Category:    strings.TrimSpace(item.Find(option(req, optCategory)).First().Text()),
		Rating:      rating,
	}, nil
}

func option(req source.Request, key string) string {
	return req.Option(key, selectorDefaults[key])
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

func buildPageURL(base, param string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}
	if page <= 1 {
		return parsed.String(), nil
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
