package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/catalogetl/internal/domain"
)

// ErrItemNotFound is returned when no catalog item has the requested SKU.
var ErrItemNotFound = errors.New("catalog item not found")

// upsertBatchSize caps the rows per INSERT statement.
const upsertBatchSize = 200

// coalescedColumns are the descriptive columns an upsert may only fill in:
// a value already stored wins over the incoming one.
var coalescedColumns = []string{
	"name", "description", "product_url", "product_sku", "seller",
	"weight", "weight_unit", "price", "currency", "rating_value", "review_count",
	"availability", "brand", "model", "color", "size", "material", "condition",
	"categories", "images", "variants", "techs", "links", "reviews", "qas", "faqs",
	"embedding",
}

// CatalogRepository handles catalog item persistence.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CatalogRepository: repository instance bound to db.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// upsertClause builds ON CONFLICT (sku) DO UPDATE SET col = COALESCE(stored, excluded).
func upsertClause() clause.OnConflict {
	assignments := make([]clause.Assignment, 0, len(coalescedColumns)+1)
	for _, col := range coalescedColumns {
		assignments = append(assignments, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(fmt.Sprintf(`COALESCE(catalog_items.%q, excluded.%q)`, col, col)),
		})
	}
	assignments = append(assignments, clause.AssignmentColumns([]string{"updated_at"})...)

	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: assignments,
	}
}

// UpsertBatch inserts or merges items keyed by SKU and returns the stored
// rows in input order. SKUs must be unique within one call.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - items: merged catalog items; they are not modified.
// Returns:
//   - []*domain.CatalogItem: rows as stored after the upsert.
//   - error: non-nil if the insert or reload fails.
func (r *CatalogRepository) UpsertBatch(ctx context.Context, items []*domain.CatalogItem) ([]*domain.CatalogItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	now := time.Now()
	rows := make([]*domain.CatalogItem, 0, len(items))
	skus := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil || strings.TrimSpace(item.SKU) == "" {
			continue
		}
		row := item.Clone()
		row.SKU = strings.TrimSpace(row.SKU)
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.CreatedAt = now
		row.UpdatedAt = now
		rows = append(rows, row)
		skus = append(skus, row.SKU)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	err := r.db.WithContext(ctx).
		Clauses(upsertClause()).
		CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, fmt.Errorf("upsert %d catalog items: %w", len(rows), err)
	}

	stored, err := r.GetBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetBySKUs loads items for skus, preserving the order of skus. Unknown
// SKUs are skipped.
func (r *CatalogRepository) GetBySKUs(ctx context.Context, skus []string) ([]*domain.CatalogItem, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	var found []*domain.CatalogItem
	if err := r.db.WithContext(ctx).Where("sku IN ?", skus).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("load catalog items by sku: %w", err)
	}

	bySKU := make(map[string]*domain.CatalogItem, len(found))
	for _, item := range found {
		bySKU[item.SKU] = item
	}
	ordered := make([]*domain.CatalogItem, 0, len(found))
	for _, sku := range skus {
		if item, ok := bySKU[sku]; ok {
			ordered = append(ordered, item)
			delete(bySKU, sku)
		}
	}
	return ordered, nil
}

// GetBySKU retrieves one item by SKU.
func (r *CatalogRepository) GetBySKU(ctx context.Context, sku string) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	err := r.db.WithContext(ctx).First(&item, "sku = ?", strings.TrimSpace(sku)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog item %s: %w", sku, err)
	}
	return &item, nil
}

// UpdateEmbedding replaces the stored embedding of one item.
func (r *CatalogRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	err := r.db.WithContext(ctx).Model(&domain.CatalogItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":  domain.Vector(embedding),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update embedding of %s: %w", id, err)
	}
	return nil
}

// LinkJob records that jobID touched itemIDs. Existing pairs are kept.
func (r *CatalogRepository) LinkJob(ctx context.Context, jobID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	now := time.Now()
	links := make([]domain.CatalogItemJob, 0, len(itemIDs))
	for _, id := range itemIDs {
		links = append(links, domain.CatalogItemJob{CatalogItemID: id, JobID: jobID, CreatedAt: now})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&links).Error
	if err != nil {
		return fmt.Errorf("link %d items to job %s: %w", len(links), jobID, err)
	}
	return nil
}

// CountByJob returns how many distinct items a job touched.
func (r *CatalogRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.CatalogItemJob{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	return count, err
}
