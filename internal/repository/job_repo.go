package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timmy/catalogetl/internal/domain"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

// maxErrorLogLength bounds the error text stored on a failed job.
const maxErrorLogLength = 4000

// JobRepository persists ETL jobs. Every status transition is a conditional
// UPDATE on status = 'running', so terminal states are never left and
// concurrent writers never lose increments.
type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// Create inserts a new job in the running state. ID and StartedAt are
// filled in when empty.
func (r *JobRepository) Create(ctx context.Context, job *domain.ETLJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = r.now()
	}
	job.Status = domain.JobStatusRunning
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ETLJob: job record if found.
//   - error: ErrJobNotFound when missing, or the lookup error.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ETLJob, error) {
	var job domain.ETLJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// List returns the most recent jobs first.
func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]domain.ETLJob, error) {
	var jobs []domain.ETLJob
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ApplyProgress adds validDelta and invalidDelta to the job's counters and,
// in the same statement, completes a running job whose counters reach the
// known total.
func (r *JobRepository) ApplyProgress(ctx context.Context, jobID string, validDelta, invalidDelta int) error {
	return applyProgress(r.db.WithContext(ctx), jobID, validDelta, invalidDelta, r.now())
}

// applyProgress is shared with the invalid-item writer so that inserting
// log rows and counting them can happen in one transaction.
//
// Every right-hand side reads the pre-update row (PostgreSQL and SQLite
// both evaluate SET expressions against the old values).
func applyProgress(tx *gorm.DB, jobID string, validDelta, invalidDelta int, now time.Time) error {
	delta := validDelta + invalidDelta
	reached := "status = ? AND total_count IS NOT NULL AND " +
		"COALESCE(total_valid, 0) + COALESCE(total_invalid, 0) + ? >= total_count"
	running := string(domain.JobStatusRunning)

	res := tx.Model(&domain.ETLJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"total_valid":     gorm.Expr("COALESCE(total_valid, 0) + ?", validDelta),
			"total_invalid":   gorm.Expr("COALESCE(total_invalid, 0) + ?", invalidDelta),
			"total_processed": gorm.Expr("COALESCE(total_processed, 0) + ?", delta),
			"status": gorm.Expr("CASE WHEN "+reached+" THEN ? ELSE status END",
				running, delta, string(domain.JobStatusCompleted)),
			"completed_at": gorm.Expr("CASE WHEN "+reached+" THEN ? ELSE completed_at END",
				running, delta, now),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("apply progress to job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// SetTotalCount records the number of data rows in the job's file. If the
// counters already reach it, the job completes in the same statement.
func (r *JobRepository) SetTotalCount(ctx context.Context, jobID string, total int) error {
	now := r.now()
	reached := "status = ? AND COALESCE(total_valid, 0) + COALESCE(total_invalid, 0) >= ?"
	running := string(domain.JobStatusRunning)

	res := r.db.WithContext(ctx).Model(&domain.ETLJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"total_count": total,
			"status": gorm.Expr("CASE WHEN "+reached+" THEN ? ELSE status END",
				running, total, string(domain.JobStatusCompleted)),
			"completed_at": gorm.Expr("CASE WHEN "+reached+" THEN ? ELSE completed_at END",
				running, total, now),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("set total count of job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// MarkFailed moves a running job to failed and stores the cause. It is a
// no-op for jobs that already finished.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorLogLength {
		msg = msg[:maxErrorLogLength]
	}
	return r.finish(ctx, jobID, domain.JobStatusFailed, msg)
}

// Complete moves a running job to completed. Whole-file runs call it once
// every row has been written; it is a no-op for finished jobs.
func (r *JobRepository) Complete(ctx context.Context, jobID string) error {
	return r.finish(ctx, jobID, domain.JobStatusCompleted, "")
}

func (r *JobRepository) finish(ctx context.Context, jobID string, status domain.JobStatus, errorLog string) error {
	updates := map[string]interface{}{
		"status":       string(status),
		"completed_at": r.now(),
		"updated_at":   r.now(),
	}
	if errorLog != "" {
		updates["error_log"] = errorLog
	}

	err := r.db.WithContext(ctx).Model(&domain.ETLJob{}).
		Where("id = ? AND status = ?", jobID, string(domain.JobStatusRunning)).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", jobID, status, err)
	}
	return nil
}
