package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Availability is the stock state reported by a vendor feed.
type Availability string

const (
	AvailabilityInStock      Availability = "in_stock"
	AvailabilityOutOfStock   Availability = "out_of_stock"
	AvailabilityPreorder     Availability = "preorder"
	AvailabilityBackorder    Availability = "backorder"
	AvailabilityDiscontinued Availability = "discontinued"
	AvailabilityLimited      Availability = "limited"
	AvailabilityUnknown      Availability = "unknown"
)

// Known reports whether a is one of the enumerated availability states.
func (a Availability) Known() bool {
	switch a {
	case AvailabilityInStock, AvailabilityOutOfStock, AvailabilityPreorder,
		AvailabilityBackorder, AvailabilityDiscontinued, AvailabilityLimited, AvailabilityUnknown:
		return true
	}
	return false
}

// StringList stores a string slice as a JSON column. A nil list is written
// as NULL so the upsert can tell "not supplied" from "supplied empty".
type StringList []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string, or nil for a nil list.
//   - error: non-nil if marshaling fails.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (l *StringList) Scan(value interface{}) error {
	raw, err := scanBytes(value, "StringList")
	if err != nil || raw == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// Vector is an embedding stored as a JSON array of floats.
type Vector []float32

// Value implements the driver.Valuer interface.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (v *Vector) Scan(value interface{}) error {
	raw, err := scanBytes(value, "Vector")
	if err != nil || raw == nil {
		*v = nil
		return err
	}
	return json.Unmarshal(raw, (*[]float32)(v))
}

func scanBytes(value interface{}, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("failed to scan " + typeName)
	}
}

// CatalogItem is one product row of the unified catalog, keyed by SKU.
// Descriptive fields are pointers (or nil-able JSON) so that a column the
// source did not supply is stored as NULL.
type CatalogItem struct {
	ID           string         `gorm:"type:text;primaryKey" json:"id,omitempty"`
	SKU          string         `gorm:"column:sku;type:text;not null;uniqueIndex:idx_catalog_items_sku" json:"sku"`
	Name         *string        `gorm:"type:text" json:"name,omitempty"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	ProductURL   *string        `gorm:"column:product_url;type:text" json:"product_url,omitempty"`
	ProductSKU   *string        `gorm:"column:product_sku;type:text" json:"product_sku,omitempty"`
	Seller       *string        `gorm:"type:text" json:"seller,omitempty"`
	Weight       *float64       `json:"weight,omitempty"`
	WeightUnit   *string        `gorm:"column:weight_unit;type:text" json:"weight_unit,omitempty"`
	Price        *float64       `json:"price,omitempty"`
	Currency     *string        `gorm:"type:text" json:"currency,omitempty"`
	RatingValue  *float64       `gorm:"column:rating_value" json:"rating_value,omitempty"`
	ReviewCount  *int           `gorm:"column:review_count" json:"review_count,omitempty"`
	Availability *Availability  `gorm:"type:text" json:"availability,omitempty"`
	Brand        *string        `gorm:"type:text;index:idx_catalog_items_brand" json:"brand,omitempty"`
	Model        *string        `gorm:"type:text" json:"model,omitempty"`
	Color        *string        `gorm:"type:text" json:"color,omitempty"`
	Size         *string        `gorm:"type:text" json:"size,omitempty"`
	Material     *string        `gorm:"type:text" json:"material,omitempty"`
	Condition    *string        `gorm:"type:text" json:"condition,omitempty"`
	Categories   StringList     `gorm:"type:text" json:"categories,omitempty"`
	Images       StringList     `gorm:"type:text" json:"images,omitempty"`
	Variants     datatypes.JSON `json:"variants,omitempty"`
	Techs        datatypes.JSON `json:"techs,omitempty"`
	Links        datatypes.JSON `json:"links,omitempty"`
	Reviews      datatypes.JSON `json:"reviews,omitempty"`
	QAs          datatypes.JSON `gorm:"column:qas" json:"qas,omitempty"`
	FAQs         datatypes.JSON `gorm:"column:faqs" json:"faqs,omitempty"`
	Embedding    Vector         `gorm:"type:text" json:"embedding,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

// TableName returns the database table name for CatalogItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CatalogItem) TableName() string {
	return "catalog_items"
}

// Clone returns a shallow copy of the item. Pointer fields are shared, so
// callers replace them rather than writing through them.
func (c *CatalogItem) Clone() *CatalogItem {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// CatalogItemSearchResult represents a search hit with its similarity score.
type CatalogItemSearchResult struct {
	CatalogItem
	Score float32 `json:"score"`
}

// CatalogItemJob links a catalog item to every job that touched it.
type CatalogItemJob struct {
	CatalogItemID string    `gorm:"type:text;primaryKey" json:"catalog_item_id"`
	JobID         string    `gorm:"type:text;primaryKey;index:idx_catalog_item_jobs_job" json:"job_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for CatalogItemJob.
func (CatalogItemJob) TableName() string {
	return "catalog_item_jobs"
}
