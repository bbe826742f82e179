package catalog

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/source"
)

// Column names expected in vendor catalog headers.
const (
	ColName         = "name"
	ColDescription  = "description"
	ColProductURL   = "productUrl"
	ColSKU          = "sku"
	ColProductSKU   = "productSku"
	ColSeller       = "seller"
	ColWeight       = "weight"
	ColWeightUnit   = "weightUnit"
	ColPrice        = "price"
	ColCurrency     = "currency"
	ColRatingValue  = "ratingValue"
	ColReviewCount  = "reviewCount"
	ColAvailability = "availability"
	ColBrand        = "brand"
	ColModel        = "model"
	ColColor        = "color"
	ColSize         = "size"
	ColMaterial     = "material"
	ColCondition    = "condition"
	ColCategories   = "categories"
	ColImages       = "images"
	ColVariants     = "variants"
	ColTechs        = "techs"
	ColLinks        = "links"
	ColReviews      = "reviews"
	ColQAs          = "qas"
	ColFAQs         = "faqs"
)

var (
	reLineBreaks    = regexp.MustCompile(`[\r\n]+`)
	reNonPriceChars = regexp.MustCompile(`[^0-9.]`)
	reLeadingInt    = regexp.MustCompile(`^[+-]?\d+`)
)

type row struct {
	fields []string
	header source.HeaderIndex
}

func (r row) raw(col string) string {
	return r.header.Cell(r.fields, col)
}

// text returns the trimmed, quote-stripped cell, or nil when it is empty.
func (r row) text(col string) *string {
	s := stripQuotes(r.raw(col))
	if s == "" {
		return nil
	}
	return &s
}

// MapRow turns one decoded CSV record into a catalog item. It returns nil
// when header is nil, which is the case while the header record itself is
// being read. Cells that fail to parse leave their field unset; MapRow
// never fails.
func MapRow(fields []string, header source.HeaderIndex) *domain.CatalogItem {
	if header == nil {
		return nil
	}
	r := row{fields: fields, header: header}

	item := &domain.CatalogItem{
		Name:       r.text(ColName),
		ProductURL: r.text(ColProductURL),
		ProductSKU: r.text(ColProductSKU),
		Seller:     r.text(ColSeller),
		Currency:   r.text(ColCurrency),
		Brand:      r.text(ColBrand),
		Model:      r.text(ColModel),
		Color:      r.text(ColColor),
		Size:       r.text(ColSize),
		Material:   r.text(ColMaterial),
		Condition:  r.text(ColCondition),
		Categories: parseList(r.raw(ColCategories)),
		Images:     parseList(r.raw(ColImages)),
		Variants:   jsonArrayColumn(r.raw(ColVariants)),
		Links:      jsonArrayColumn(r.raw(ColLinks)),
		Reviews:    jsonArrayColumn(r.raw(ColReviews)),
		QAs:        jsonArrayColumn(r.raw(ColQAs)),
		FAQs:       faqColumn(r.raw(ColFAQs)),
	}

	if sku := r.text(ColSKU); sku != nil {
		item.SKU = *sku
	}
	if desc := r.text(ColDescription); desc != nil {
		collapsed := strings.TrimSpace(reLineBreaks.ReplaceAllString(*desc, " "))
		item.Description = &collapsed
	}
	if a := r.text(ColAvailability); a != nil {
		availability := domain.Availability(*a)
		item.Availability = &availability
	}

	if raw := strings.TrimSpace(r.raw(ColReviewCount)); raw != "" {
		n := parseLeadingInt(stripQuotes(raw))
		item.ReviewCount = &n
	}
	item.Price = parsePrice(r.raw(ColPrice))
	if v, ok := parseLeadingFloat(stripQuotes(r.raw(ColRatingValue))); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
		item.RatingValue = &v
	}

	weightCell := stripQuotes(r.raw(ColWeight))
	if weightCell != "" {
		item.Weight, item.WeightUnit = NormalizeWeight(weightCell, r.raw(ColWeightUnit))
	}

	if techs, ok := ParseJSONValue(r.raw(ColTechs)); ok && !isEmptyJSON(techs) {
		item.Techs = marshalColumn(techs)
		if weightCell == "" {
			item.Weight, item.WeightUnit = weightFromTechs(techs)
		}
	}

	return item
}

func stripQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

// parseList reads a list cell: a JSON array when it starts with "[",
// otherwise a comma separated string.
func parseList(raw string) domain.StringList {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	var parts []string
	if strings.HasPrefix(s, "[") {
		for _, v := range ParseJSONArray(s) {
			switch val := v.(type) {
			case string:
				parts = append(parts, val)
			case float64:
				parts = append(parts, strconv.FormatFloat(val, 'f', -1, 64))
			}
		}
	} else {
		parts = strings.Split(s, ",")
	}

	var out domain.StringList
	for _, p := range parts {
		if p = stripQuotes(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePrice(raw string) *float64 {
	cleaned := reNonPriceChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parseLeadingInt(s string) int {
	m := reLeadingInt.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func jsonArrayColumn(raw string) datatypes.JSON {
	arr := ParseJSONArray(raw)
	if len(arr) == 0 {
		return nil
	}
	return marshalColumn(arr)
}

func faqColumn(raw string) datatypes.JSON {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if v, ok := ParseJSONValue(raw); ok {
		if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
			return marshalColumn(arr)
		}
		return nil
	}
	if faqs := ExtractFAQs(raw); len(faqs) > 0 {
		return marshalColumn(faqs)
	}
	return nil
}

func isEmptyJSON(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

func marshalColumn(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
