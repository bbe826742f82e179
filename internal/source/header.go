package source

import "strings"

const utf8BOM = "\uFEFF"

// HeaderIndex maps a column name to its position in a record.
type HeaderIndex map[string]int

// NewHeaderIndex builds a HeaderIndex from the header record's cells. A
// leading byte-order mark is dropped and names are trimmed. When a name
// repeats, the first column wins.
func NewHeaderIndex(fields []string) HeaderIndex {
	idx := make(HeaderIndex, len(fields))
	for i, name := range fields {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(strings.Trim(strings.TrimSpace(name), `"'`))
		if name == "" {
			continue
		}
		if _, exists := idx[name]; !exists {
			idx[name] = i
		}
	}
	return idx
}

// Cell returns the raw value of column name in fields, or "" when the
// column is missing from the header or the record is short.
func (h HeaderIndex) Cell(fields []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// Has reports whether the header declares column name.
func (h HeaderIndex) Has(name string) bool {
	_, ok := h[name]
	return ok
}
