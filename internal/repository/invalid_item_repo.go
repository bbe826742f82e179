package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/catalogetl/internal/domain"
)

// InvalidItemRepository stores quarantined rows.
type InvalidItemRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewInvalidItemRepository creates a new InvalidItemRepository.
func NewInvalidItemRepository(db *gorm.DB) *InvalidItemRepository {
	return &InvalidItemRepository{db: db, now: time.Now}
}

// RecordBatch inserts logs for jobID and adds the number of rows actually
// inserted to the job's invalid counter, both in one transaction. Rows
// already logged for the same (job_id, row_index) are skipped and not
// counted again, which makes a redelivered batch a no-op.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job.
//   - logs: rows to quarantine; JobID is overwritten with jobID.
// Returns:
//   - int: rows newly inserted.
//   - error: non-nil if the transaction fails.
func (r *InvalidItemRepository) RecordBatch(ctx context.Context, jobID string, logs []domain.InvalidItemLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}
	now := r.now()
	for i := range logs {
		logs[i].JobID = jobID
		if logs[i].ID == "" {
			logs[i].ID = uuid.NewString()
		}
		if logs[i].CreatedAt.IsZero() {
			logs[i].CreatedAt = now
		}
	}

	var inserted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&logs)
		if res.Error != nil {
			return fmt.Errorf("insert invalid item logs: %w", res.Error)
		}
		inserted = int(res.RowsAffected)
		return applyProgress(tx, jobID, 0, inserted, now)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListByJob returns a page of a job's quarantined rows in row order.
func (r *InvalidItemRepository) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.InvalidItemLog, error) {
	var logs []domain.InvalidItemLog
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("row_index ASC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list invalid items of job %s: %w", jobID, err)
	}
	return logs, nil
}

// CountByJob returns the number of quarantined rows of a job.
func (r *InvalidItemRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.InvalidItemLog{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	return count, err
}
