package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"ContentFactory/internal/domain"
)

var platformReach = map[string]int{
	domain.PlatformTikTok:    10000,
	domain.PlatformInstagram: 5000,
	domain.PlatformYouTube:   3000,
	domain.PlatformTelegram:  2000,
}

const defaultReach = 1000

// EstimatedReach is the audience estimate for one successful post.
func EstimatedReach(platform string) int {
	if reach, ok := platformReach[platform]; ok {
		return reach
	}
	return defaultReach
}

// Summarize aggregates batch results into headline numbers.
func Summarize(results []domain.WorkflowResult) domain.BatchSummary {
	summary := domain.BatchSummary{Total: len(results), PlatformsReached: []string{}}
	reached := map[string]struct{}{}

	for _, r := range results {
		switch r.Status {
		case domain.StatusCompleted:
			summary.Completed++
		case domain.StatusPartial:
			summary.Partial++
		default:
			summary.Failed++
		}
		if r.Cancelled {
			summary.Cancelled++
		}
		for _, a := range r.Attempts {
			if !a.Succeeded() {
				summary.PostsFailed++
				continue
			}
			summary.PostsPublished++
			summary.PotentialReach += EstimatedReach(a.Platform)
			reached[a.Platform] = struct{}{}
		}
	}

	for name := range reached {
		summary.PlatformsReached = append(summary.PlatformsReached, name)
	}
	sort.Strings(summary.PlatformsReached)

	if attempts := summary.PostsPublished + summary.PostsFailed; attempts > 0 {
		rate := float64(summary.PostsPublished) / float64(attempts) * 100
		summary.SuccessRate = math.Round(rate*100) / 100
	}
	return summary
}

const captionDescriptionLimit = 300

// BuildMetadata derives the title, caption and tags shared by every platform.
func BuildMetadata(p domain.Product) domain.PublishMetadata {
	caption := fmt.Sprintf("Check out %s %s!", p.Name, p.Price.Phrase())
	if desc := truncateRunes(strings.TrimSpace(p.Description), captionDescriptionLimit); desc != "" {
		caption += " " + desc
	}
	if p.SourceURL != "" {
		caption += " Get yours at " + p.SourceURL
	}

	tags := []string{"trending", "musthave", "shopping"}
	if tag := slugTag(p.Category); tag != "" {
		tags = append(tags, tag)
	}
	if p.Source != "" {
		tags = append(tags, slugTag(p.Source))
	}

	return domain.PublishMetadata{
		Title:      fmt.Sprintf("Discover %s - Trending Now!", p.Name),
		Caption:    caption,
		Tags:       tags,
		ProductURL: p.SourceURL,
	}
}

func slugTag(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
