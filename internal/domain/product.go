package domain

import (
	"fmt"
	"strings"
	"time"
)

// Product is a candidate item for content creation, as discovered from a source.
type Product struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	ExternalID   string    `json:"external_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        Price     `json:"price"`
	SourceURL    string    `json:"source_url,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Category     string    `json:"category,omitempty"`
	Rating       float64   `json:"rating,omitempty"`
	Trending     bool      `json:"trending"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// QualifiedID builds the source-qualified external identifier.
func QualifiedID(source, raw string) string {
	return fmt.Sprintf("%s:%s", source, strings.TrimSpace(raw))
}

// Validate reports ErrMalformedProduct when required fields are absent.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrMalformedProduct)
	}
	if strings.TrimSpace(p.ExternalID) == "" {
		return fmt.Errorf("%w: missing external id", ErrMalformedProduct)
	}
	return nil
}

// SameListing reports whether two discovery records describe the same listing state.
// Identity fields (ID, DiscoveredAt, Trending) are ignored.
func (p Product) SameListing(other Product) bool {
	return p.ExternalID == other.ExternalID &&
		p.Name == other.Name &&
		p.Description == other.Description &&
		p.Price.Equal(other.Price) &&
		p.SourceURL == other.SourceURL &&
		p.ImageURL == other.ImageURL &&
		p.Category == other.Category &&
		p.Rating == other.Rating
}

// NormalizedName is used for cross-source duplicate detection.
func (p Product) NormalizedName() string {
	return strings.Join(strings.Fields(strings.ToLower(p.Name)), " ")
}

// SourceFailure records a single source that could not be read during discovery.
type SourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// DiscoveryReport is the outcome of one pass over all configured sources.
type DiscoveryReport struct {
	Products []Product       `json:"products"`
	Failures []SourceFailure `json:"failures,omitempty"`
	Sources  int             `json:"sources"`
}

// Err returns a DiscoveryError when every configured source failed.
func (r DiscoveryReport) Err() error {
	if r.Sources == 0 || len(r.Failures) < r.Sources {
		return nil
	}
	return &DiscoveryError{Failures: r.Failures}
}

// Warnings flattens failures into human readable lines.
func (r DiscoveryReport) Warnings() []string {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, fmt.Sprintf("%s: %s", f.Source, f.Reason))
	}
	return out
}
