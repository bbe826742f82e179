package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	rePythonNone  = regexp.MustCompile(`\bNone\b`)
	rePythonTrue  = regexp.MustCompile(`\bTrue\b`)
	rePythonFalse = regexp.MustCompile(`\bFalse\b`)

	reSingleQuotedKey   = regexp.MustCompile(`'([^'\\]*)'(\s*):`)
	reSingleQuotedValue = regexp.MustCompile(`(?s)([:\[,]\s*)'((?:[^'\\]|\\.)*)'`)
	reHexEscape         = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
	reTrailingComma     = regexp.MustCompile(`,(\s*[}\]])`)

	smartQuotes = strings.NewReplacer(
		"\u201c", `"`, "\u201d", `"`, "\u201e", `"`,
		"\u2018", "'", "\u2019", "'",
	)
)

// NormalizeJSON rewrites Python-literal and loosely quoted JSON-like text
// into strict JSON where it can. Valid JSON is returned unchanged. The result
// is not guaranteed to parse; callers go through ParseJSONValue.
func NormalizeJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || json.Valid([]byte(s)) {
		return s
	}

	s = rePythonNone.ReplaceAllString(s, "null")
	s = rePythonTrue.ReplaceAllString(s, "true")
	s = rePythonFalse.ReplaceAllString(s, "false")

	s = smartQuotes.Replace(s)

	s = reSingleQuotedKey.ReplaceAllString(s, `"$1"$2:`)
	s = reSingleQuotedValue.ReplaceAllStringFunc(s, func(m string) string {
		sub := reSingleQuotedValue.FindStringSubmatch(m)
		return sub[1] + requote(sub[2])
	})

	s = reHexEscape.ReplaceAllStringFunc(s, decodeHexEscape)
	s = escapeStrayBackslashes(s)
	s = reTrailingComma.ReplaceAllString(s, "$1")
	return s
}

// requote turns the body of a single-quoted literal into a double-quoted
// JSON string body. Backslashes are left alone here; escapeStrayBackslashes
// deals with the ones that are not valid JSON escapes.
func requote(inner string) string {
	inner = strings.ReplaceAll(inner, `\'`, `'`)

	var b strings.Builder
	b.Grow(len(inner) + 2)
	b.WriteByte('"')
	escaped := false
	for _, r := range inner {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if r == '"' && !escaped {
			b.WriteString(`\"`)
		} else {
			b.WriteRune(r)
		}
		escaped = r == '\\' && !escaped
	}
	b.WriteByte('"')
	return b.String()
}

func decodeHexEscape(m string) string {
	v, err := strconv.ParseUint(m[2:], 16, 8)
	if err != nil {
		return m
	}
	r := rune(v)
	if r < 0x20 || r == '"' || r == '\\' || r == 0x7f {
		return fmt.Sprintf(`\u%04x`, r)
	}
	return string(r)
}

func escapeStrayBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) {
			switch next := s[i+1]; next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				b.WriteByte(c)
				b.WriteByte(next)
				i++
				continue
			case 'u':
				if i+6 <= len(s) && isHex(s[i+2:i+6]) {
					b.WriteString(s[i : i+6])
					i += 5
					continue
				}
			}
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// ParseJSONValue normalizes raw and parses it. ok is false when the text is
// empty or still not valid JSON after normalization.
func ParseJSONValue(raw string) (value interface{}, ok bool) {
	normalized := NormalizeJSON(raw)
	if normalized == "" {
		return nil, false
	}
	if err := json.Unmarshal([]byte(normalized), &value); err != nil {
		return nil, false
	}
	return value, true
}

// ParseJSONArray returns the parsed array, or an empty array on any failure.
func ParseJSONArray(raw string) []interface{} {
	if v, ok := ParseJSONValue(raw); ok {
		if arr, ok := v.([]interface{}); ok {
			return arr
		}
	}
	return []interface{}{}
}

// ParseJSONObject returns the parsed object, or an empty object on any failure.
func ParseJSONObject(raw string) map[string]interface{} {
	if v, ok := ParseJSONValue(raw); ok {
		if obj, ok := v.(map[string]interface{}); ok {
			return obj
		}
	}
	return map[string]interface{}{}
}
