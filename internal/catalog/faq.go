package catalog

import (
	"regexp"
	"strings"
)

// FAQ is a single question/answer pair from a product page.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var reFAQFragment = regexp.MustCompile(
	`(?s)\{[^{}]*?["']question["']\s*:\s*["'](.*?)["']\s*,\s*["']answer["']\s*:\s*["'](.*?)["']\s*(?:,[^{}]*)?\}`,
)

// ExtractFAQs recovers question/answer pairs from FAQ text that would not
// parse as JSON, in the order they appear. Fragments that do not look like
// a question/answer object are skipped.
func ExtractFAQs(raw string) []FAQ {
	matches := reFAQFragment.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	faqs := make([]FAQ, 0, len(matches))
	for _, m := range matches {
		q := strings.TrimSpace(m[1])
		a := strings.TrimSpace(m[2])
		if q == "" && a == "" {
			continue
		}
		faqs = append(faqs, FAQ{Question: q, Answer: a})
	}
	return faqs
}
