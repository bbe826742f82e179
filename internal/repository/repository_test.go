package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "catalog.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newJob(t *testing.T, jobs *JobRepository) *domain.ETLJob {
	t.Helper()
	job := &domain.ETLJob{Source: "vendor", Filename: "catalog.csv"}
	require.NoError(t, jobs.Create(context.Background(), job))
	return job
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestJobCreateAndGet(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := newJob(t, jobs)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	assert.Nil(t, got.TotalCount)
	assert.Nil(t, got.CompletedAt)

	_, err = jobs.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestApplyProgressConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := newJob(t, jobs)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = jobs.ApplyProgress(ctx, job.ID, 1, 0)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.Valid(), 2)
	assert.Equal(t, 2, *got.TotalProcessed)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
}

func TestApplyProgressCompletesAtTotal(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := newJob(t, jobs)

	require.NoError(t, jobs.SetTotalCount(ctx, job.ID, 3))
	require.NoError(t, jobs.ApplyProgress(ctx, job.ID, 2, 0))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, got.Status)

	require.NoError(t, jobs.ApplyProgress(ctx, job.ID, 0, 1))
	got, err = jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2, got.Valid())
	assert.Equal(t, 1, got.Invalid())
}

func TestSetTotalCountCompletesWhenCountersAlreadyReached(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))
	job := newJob(t, jobs)

	require.NoError(t, jobs.ApplyProgress(ctx, job.ID, 2, 1))
	require.NoError(t, jobs.SetTotalCount(ctx, job.ID, 3))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.TotalCount)
	assert.Equal(t, 3, *got.TotalCount)
}

func TestApplyProgressUnknownJob(t *testing.T) {
	jobs := NewJobRepository(newTestDB(t))
	err := jobs.ApplyProgress(context.Background(), "nope", 1, 0)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestTerminalStatesAreNotLeft(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(newTestDB(t))

	completed := newJob(t, jobs)
	require.NoError(t, jobs.Complete(ctx, completed.ID))
	require.NoError(t, jobs.MarkFailed(ctx, completed.ID, errors.New("late failure")))

	got, err := jobs.GetByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorLog)

	failed := newJob(t, jobs)
	require.NoError(t, jobs.MarkFailed(ctx, failed.ID, errors.New("download failed")))
	require.NoError(t, jobs.SetTotalCount(ctx, failed.ID, 0))
	require.NoError(t, jobs.ApplyProgress(ctx, failed.ID, 1, 0))

	got, err = jobs.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "download failed", got.ErrorLog)
	assert.NotNil(t, got.CompletedAt)
}

func TestUpsertBatchKeepsStoredValues(t *testing.T) {
	ctx := context.Background()
	items := NewCatalogRepository(newTestDB(t))

	first, err := items.UpsertBatch(ctx, []*domain.CatalogItem{
		{SKU: "A", Name: strPtr("Tent"), Price: floatPtr(10)},
		{SKU: "B", Name: strPtr("Stove")},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "A", first[0].SKU)
	assert.Equal(t, "B", first[1].SKU)

	second, err := items.UpsertBatch(ctx, []*domain.CatalogItem{
		{SKU: "A", Name: strPtr("Renamed"), Brand: strPtr("X"), Categories: domain.StringList{"camping"}},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)

	got := second[0]
	assert.Equal(t, first[0].ID, got.ID)
	assert.Equal(t, "Tent", *got.Name)
	assert.Equal(t, 10.0, *got.Price)
	assert.Equal(t, "X", *got.Brand)
	assert.Equal(t, domain.StringList{"camping"}, got.Categories)
}

func TestUpdateEmbeddingAndLinkJob(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	items := NewCatalogRepository(db)
	jobs := NewJobRepository(db)
	job := newJob(t, jobs)

	stored, err := items.UpsertBatch(ctx, []*domain.CatalogItem{{SKU: "A", Name: strPtr("Tent")}})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.NoError(t, items.UpdateEmbedding(ctx, stored[0].ID, []float32{0.5, 0.25}))
	got, err := items.GetBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.Vector{0.5, 0.25}, got.Embedding)

	require.NoError(t, items.LinkJob(ctx, job.ID, []string{stored[0].ID}))
	require.NoError(t, items.LinkJob(ctx, job.ID, []string{stored[0].ID}))
	count, err := items.CountByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = items.GetBySKU(ctx, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRecordBatchSkipsRedeliveredRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	jobs := NewJobRepository(db)
	logs := NewInvalidItemRepository(db)
	job := newJob(t, jobs)

	batch := func() []domain.InvalidItemLog {
		return []domain.InvalidItemLog{
			{RowIndex: 4, Errors: domain.FieldErrors{{Field: "sku", Reason: "sku is required"}}},
			{RowIndex: 1, Errors: domain.FieldErrors{{Field: "name", Reason: "name is required"}}},
		}
	}

	n, err := logs.RecordBatch(ctx, job.ID, batch())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = logs.RecordBatch(ctx, job.ID, batch())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Invalid())

	listed, err := logs.ListByJob(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 1, listed[0].RowIndex)
	assert.Equal(t, "name is required", listed[0].Errors[0].Reason)

	count, err := logs.CountByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRecordBatchUnknownJobRollsBack(t *testing.T) {
	ctx := context.Background()
	logs := NewInvalidItemRepository(newTestDB(t))

	_, err := logs.RecordBatch(ctx, "missing", []domain.InvalidItemLog{{RowIndex: 0}})
	require.ErrorIs(t, err, ErrJobNotFound)

	count, err := logs.CountByJob(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, count)
}
