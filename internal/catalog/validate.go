package catalog

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/timmy/catalogetl/internal/domain"
)

var validate = validator.New()

// ValidationResult is the outcome of checking one mapped row.
type ValidationResult struct {
	Item    *domain.CatalogItem
	IsValid bool
	Errors  []domain.FieldError
}

type checker struct {
	errs []domain.FieldError
}

// rule records an error for field when value fails tag.
func (c *checker) rule(field string, value interface{}, tag, reason string) bool {
	if err := validate.Var(value, tag); err != nil {
		c.errs = append(c.errs, domain.FieldError{Field: field, Reason: reason, Value: value})
		return false
	}
	return true
}

func (c *checker) missing(field, reason string) {
	c.errs = append(c.errs, domain.FieldError{Field: field, Reason: reason})
}

// Validate checks item against the catalog row rules. A nil item is
// reported as missing every required field.
func Validate(item *domain.CatalogItem) ValidationResult {
	if item == nil {
		item = &domain.CatalogItem{}
	}
	c := &checker{}

	if item.Name == nil {
		c.missing(ColName, "name is required")
	} else {
		c.rule(ColName, strings.TrimSpace(*item.Name), "required", "name is required")
	}

	c.rule(ColSKU, strings.TrimSpace(item.SKU), "required", "sku is required")

	if item.ProductURL == nil {
		c.missing(ColProductURL, "productUrl is required")
	} else if u := strings.TrimSpace(*item.ProductURL); c.rule(ColProductURL, u, "required", "productUrl is required") {
		c.rule(ColProductURL, u, "url", "invalid URL format")
	}

	if item.Weight == nil {
		c.missing(ColWeight, "weight is required")
	} else {
		c.rule(ColWeight, *item.Weight, "gt=0", "weight must be greater than 0")
	}

	if item.WeightUnit == nil {
		c.missing(ColWeightUnit, "weightUnit is required")
	} else {
		c.rule(ColWeightUnit, strings.TrimSpace(*item.WeightUnit), "required", "weightUnit is required")
	}

	if item.Price != nil {
		c.rule(ColPrice, *item.Price, "gte=0", "price must be greater than or equal to 0")
	}
	if item.Availability != nil && !item.Availability.Known() {
		c.errs = append(c.errs, domain.FieldError{
			Field:  ColAvailability,
			Reason: "availability must be one of in_stock, out_of_stock, preorder, backorder, discontinued, limited, unknown",
			Value:  string(*item.Availability),
		})
	}
	if item.RatingValue != nil {
		c.rule(ColRatingValue, *item.RatingValue, "gte=0,lte=5", "ratingValue must be between 0 and 5")
	}

	return ValidationResult{
		Item:    item,
		IsValid: len(c.errs) == 0,
		Errors:  c.errs,
	}
}
