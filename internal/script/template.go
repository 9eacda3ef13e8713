package script

import (
	"fmt"
	"strings"

	"ContentFactory/internal/domain"
)

var fillers = []string{
	"It is simple to use and fits right into your everyday routine.",
	"Shoppers everywhere are already checking it out.",
	"Quality like this at this price does not come around often.",
	"Save this video so you do not forget about it.",
	"Share it with a friend who would love the %s too.",
	"Once you try it, you will wonder how you managed without it.",
}

// Template renders a deterministic script from local product fields only.
// The result always has between minWords and maxWords words.
func Template(product domain.Product, minWords, maxWords int) string {
	name := strings.TrimSpace(product.Name)

	sentences := []string{
		"Stop scrolling for a second, because this one is worth it.",
		fmt.Sprintf("Meet the %s.", name),
	}
	if desc := sentence(product.Description, maxWords/3); desc != "" {
		sentences = append(sentences, desc)
	}
	sentences = append(sentences, fmt.Sprintf("Right now you can grab it %s.", product.Price.Phrase()))
	if category := strings.TrimSpace(product.Category); category != "" {
		sentences = append(sentences, fmt.Sprintf("If you love %s, this belongs on your list.", strings.ToLower(category)))
	}
	sentences = append(sentences,
		"It is one of the products people keep talking about, and it is easy to see why.",
		fmt.Sprintf("Tap the link, check out the %s, and see it for yourself.", name),
	)

	text := strings.Join(sentences, " ")
	for i := 0; WordCount(text) < minWords; i++ {
		filler := fillers[i%len(fillers)]
		if strings.Contains(filler, "%s") {
			filler = fmt.Sprintf(filler, name)
		}
		text += " " + filler
	}

	return Fit(text, minWords, maxWords)
}

// sentence trims free text to at most limit words and closes it with a period.
func sentence(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	out := strings.Join(words, " ")
	if !endsSentence(out) {
		out = strings.TrimRight(out, ",;:") + "."
	}
	return out
}
