package domain

import "time"

// JobStatus represents the status of an ETL job.
// Values include JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ETLJob represents one catalog import run and its progress counters.
// Counters are nil until the first batch lands; TotalCount stays nil until
// the last chunk of the file has been read.
type ETLJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Status         JobStatus  `gorm:"type:text;not null;index:idx_etl_jobs_status;default:running" json:"status"`
	Source         string     `gorm:"type:text;not null" json:"source"`
	Filename       string     `gorm:"type:text;not null" json:"filename"`
	RevisionTag    string     `gorm:"type:text" json:"revision_tag,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TotalProcessed *int       `json:"total_processed,omitempty"`
	TotalValid     *int       `json:"total_valid,omitempty"`
	TotalInvalid   *int       `json:"total_invalid,omitempty"`
	TotalCount     *int       `json:"total_count,omitempty"`
	ErrorLog       string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ETLJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ETLJob) TableName() string {
	return "etl_jobs"
}

// Valid returns the valid counter, treating nil as zero.
func (j *ETLJob) Valid() int { return derefInt(j.TotalValid) }

// Invalid returns the invalid counter, treating nil as zero.
func (j *ETLJob) Invalid() int { return derefInt(j.TotalInvalid) }

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
