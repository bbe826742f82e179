package service

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/repository"
)

// LogConsumer quarantines rejected rows.
type LogConsumer struct {
	logs *repository.InvalidItemRepository
}

// NewLogConsumer creates a LogConsumer.
func NewLogConsumer(logs *repository.InvalidItemRepository) *LogConsumer {
	return &LogConsumer{logs: logs}
}

// Consume stores each rejected row with its errors and raw mapped record
// and adds the newly stored rows to the job's invalid counter.
func (c *LogConsumer) Consume(ctx context.Context, msg domain.LogBatchMessage) error {
	ctx = logger.SetJobID(ctx, msg.JobID)
	ctx = logger.SetComponent(ctx, "log_consumer")

	entries := make([]domain.InvalidItemLog, 0, len(msg.InvalidItems))
	for _, row := range msg.InvalidItems {
		entries = append(entries, domain.InvalidItemLog{
			RowIndex: row.RowIndex,
			Errors:   domain.FieldErrors(row.Errors),
			RawData:  rawData(ctx, row.Raw),
		})
	}

	inserted, err := c.logs.RecordBatch(ctx, msg.JobID, entries)
	if err != nil {
		return err
	}
	if skipped := len(entries) - inserted; skipped > 0 {
		logger.CtxWarn(ctx, "Skipped %d invalid rows already logged", skipped)
	}
	logger.With(logger.Fields{"running_total": msg.RunningTotal}).
		WithCount(inserted).Info(ctx, "Invalid rows logged")
	return nil
}

func rawData(ctx context.Context, item *domain.CatalogItem) datatypes.JSON {
	if item == nil {
		return nil
	}
	b, err := json.Marshal(item)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to encode raw row")
		return nil
	}
	return datatypes.JSON(b)
}

// InvalidItemPage is one page of a job's quarantined rows.
type InvalidItemPage struct {
	Items  []domain.InvalidItemLog `json:"items"`
	Total  int64                   `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// List returns a page of the rows quarantined for jobID.
func (c *LogConsumer) List(ctx context.Context, jobID string, limit, offset int) (*InvalidItemPage, error) {
	items, err := c.logs.ListByJob(ctx, jobID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := c.logs.CountByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &InvalidItemPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}
