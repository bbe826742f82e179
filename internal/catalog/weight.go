package catalog

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	gramsPerOunce    = 28.35
	gramsPerPound    = 453.592
	gramsPerKilogram = 1000
)

var reLeadingNumber = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// NormalizeWeight converts a vendor weight cell into grams and reports the
// unit it was given in. The unit comes from unitHint, or from raw itself
// when no hint is supplied. Values that are not finite and positive yield
// (nil, nil).
func NormalizeWeight(raw, unitHint string) (*float64, *string) {
	value, ok := parseLeadingFloat(stripQuotes(raw))
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return nil, nil
	}

	hint := strings.ToLower(strings.TrimSpace(stripQuotes(unitHint)))
	if hint == "" {
		hint = strings.ToLower(raw)
	}

	var grams float64
	var unit string
	switch {
	case strings.Contains(hint, "oz"):
		grams, unit = math.Round(value*gramsPerOunce), "oz"
	case strings.Contains(hint, "lb"):
		grams, unit = math.Round(value*gramsPerPound), "lb"
	case strings.Contains(hint, "kg"):
		grams, unit = value*gramsPerKilogram, "kg"
	default:
		grams, unit = value, "g"
	}
	return &grams, &unit
}

// parseLeadingFloat reads the number at the start of s, ignoring whatever
// follows it ("12.5 lbs" → 12.5).
func parseLeadingFloat(s string) (float64, bool) {
	m := reLeadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// weightFromTechs looks for a "Claimed Weight" or "weight" entry in a
// parsed techs value (an object, or an array of objects).
func weightFromTechs(techs interface{}) (*float64, *string) {
	switch t := techs.(type) {
	case map[string]interface{}:
		return weightFromSpecMap(t)
	case []interface{}:
		for _, entry := range t {
			if m, ok := entry.(map[string]interface{}); ok {
				if w, u := weightFromSpecMap(m); w != nil {
					return w, u
				}
			}
		}
	}
	return nil, nil
}

func weightFromSpecMap(m map[string]interface{}) (*float64, *string) {
	for _, key := range []string{"Claimed Weight", "weight"} {
		v, ok := m[key]
		if !ok {
			continue
		}
		var raw string
		switch val := v.(type) {
		case string:
			raw = val
		case float64:
			raw = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			continue
		}
		if w, u := NormalizeWeight(raw, ""); w != nil {
			return w, u
		}
	}
	return nil, nil
}
