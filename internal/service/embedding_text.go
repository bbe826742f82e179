package service

import (
	"strings"

	"github.com/timmy/catalogetl/internal/domain"
)

const maxDescriptionEmbeddingRunes = 512

func normalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func compactDescription(text string) string {
	cleaned := normalizeWhitespace(strings.TrimSpace(text))
	if cleaned == "" {
		return ""
	}

	runes := []rune(cleaned)
	if len(runes) <= maxDescriptionEmbeddingRunes {
		return cleaned
	}
	return string(runes[:maxDescriptionEmbeddingRunes])
}

func field(s *string) string {
	if s == nil {
		return ""
	}
	return normalizeWhitespace(strings.TrimSpace(*s))
}

// BuildEmbeddingText composes the text embedded for item: labelled name,
// brand and attribute segments, one per line, with empty segments omitted.
func BuildEmbeddingText(item *domain.CatalogItem) string {
	if item == nil {
		return ""
	}

	segments := make([]string, 0, 8)
	add := func(label, value string) {
		if value != "" {
			segments = append(segments, label+":"+value)
		}
	}

	add("name", field(item.Name))
	add("brand", field(item.Brand))
	add("model", field(item.Model))
	if cats := dedupeStrings(item.Categories); len(cats) > 0 {
		add("categories", strings.Join(cats, " "))
	}
	attrs := dedupeStrings([]string{field(item.Color), field(item.Size), field(item.Material)})
	if len(attrs) > 0 {
		add("attributes", strings.Join(attrs, " "))
	}
	if item.Description != nil {
		add("desc", compactDescription(*item.Description))
	}
	return strings.Join(segments, "\n")
}

// embeddingInputsChanged reports whether the stored row kept a name,
// description, brand or category list other than the one just written.
func embeddingInputsChanged(input, stored *domain.CatalogItem) bool {
	if field(input.Name) != field(stored.Name) ||
		field(input.Description) != field(stored.Description) ||
		field(input.Brand) != field(stored.Brand) {
		return true
	}
	a, b := dedupeStrings(input.Categories), dedupeStrings(stored.Categories)
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
