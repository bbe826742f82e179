package catalog

import (
	"strings"

	"gorm.io/datatypes"

	"github.com/timmy/catalogetl/internal/domain"
)

// MergeBySKU collapses items sharing a SKU into one record per SKU, in the
// order each SKU was first seen. A later occurrence only overrides the
// fields it actually supplies. Items with an empty SKU are dropped and the
// input items are left untouched.
func MergeBySKU(items []*domain.CatalogItem) []*domain.CatalogItem {
	order := make([]string, 0, len(items))
	merged := make(map[string]*domain.CatalogItem, len(items))

	for _, it := range items {
		if it == nil {
			continue
		}
		sku := strings.TrimSpace(it.SKU)
		if sku == "" {
			continue
		}
		if cur, ok := merged[sku]; ok {
			overlay(cur, it)
			continue
		}
		cp := it.Clone()
		cp.SKU = sku
		merged[sku] = cp
		order = append(order, sku)
	}

	out := make([]*domain.CatalogItem, 0, len(order))
	for _, sku := range order {
		out = append(out, merged[sku])
	}
	return out
}

func overlay(dst, src *domain.CatalogItem) {
	dst.Name = pickString(dst.Name, src.Name)
	dst.Description = pickString(dst.Description, src.Description)
	dst.ProductURL = pickString(dst.ProductURL, src.ProductURL)
	dst.ProductSKU = pickString(dst.ProductSKU, src.ProductSKU)
	dst.Seller = pickString(dst.Seller, src.Seller)
	dst.WeightUnit = pickString(dst.WeightUnit, src.WeightUnit)
	dst.Currency = pickString(dst.Currency, src.Currency)
	dst.Brand = pickString(dst.Brand, src.Brand)
	dst.Model = pickString(dst.Model, src.Model)
	dst.Color = pickString(dst.Color, src.Color)
	dst.Size = pickString(dst.Size, src.Size)
	dst.Material = pickString(dst.Material, src.Material)
	dst.Condition = pickString(dst.Condition, src.Condition)

	if src.Availability != nil && *src.Availability != "" {
		dst.Availability = src.Availability
	}
	if src.Weight != nil {
		dst.Weight = src.Weight
	}
	if src.Price != nil {
		dst.Price = src.Price
	}
	if src.RatingValue != nil {
		dst.RatingValue = src.RatingValue
	}
	if src.ReviewCount != nil {
		dst.ReviewCount = src.ReviewCount
	}

	if len(src.Categories) > 0 {
		dst.Categories = src.Categories
	}
	if len(src.Images) > 0 {
		dst.Images = src.Images
	}
	if len(src.Embedding) > 0 {
		dst.Embedding = src.Embedding
	}

	dst.Variants = pickJSON(dst.Variants, src.Variants)
	dst.Techs = pickJSON(dst.Techs, src.Techs)
	dst.Links = pickJSON(dst.Links, src.Links)
	dst.Reviews = pickJSON(dst.Reviews, src.Reviews)
	dst.QAs = pickJSON(dst.QAs, src.QAs)
	dst.FAQs = pickJSON(dst.FAQs, src.FAQs)
}

func pickString(cur, next *string) *string {
	if next != nil && strings.TrimSpace(*next) != "" {
		return next
	}
	return cur
}

func pickJSON(cur, next datatypes.JSON) datatypes.JSON {
	if HasJSON(next) {
		return next
	}
	return cur
}

// HasJSON reports whether a JSON column carries a value. Columns read back
// from the database hold the literal null when the row has no value.
func HasJSON(j datatypes.JSON) bool {
	s := strings.TrimSpace(string(j))
	return s != "" && s != "null"
}
