package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// FieldError describes one failed validation rule on a mapped row.
type FieldError struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// FieldErrors is a list of FieldError stored as a JSON column.
type FieldErrors []FieldError

// Value implements the driver.Valuer interface.
func (e FieldErrors) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]FieldError(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (e *FieldErrors) Scan(value interface{}) error {
	raw, err := scanBytes(value, "FieldErrors")
	if err != nil || raw == nil {
		*e = FieldErrors{}
		return err
	}
	return json.Unmarshal(raw, (*[]FieldError)(e))
}

// InvalidItemLog is a quarantined row that failed validation. Rows are never
// updated after insert; (job_id, row_index) is unique so a redelivered log
// batch does not duplicate entries.
type InvalidItemLog struct {
	ID        string         `gorm:"type:text;primaryKey" json:"id"`
	JobID     string         `gorm:"type:text;not null;uniqueIndex:idx_invalid_item_logs_job_row" json:"job_id"`
	RowIndex  int            `gorm:"not null;uniqueIndex:idx_invalid_item_logs_job_row" json:"row_index"`
	Errors    FieldErrors    `gorm:"type:text" json:"errors"`
	RawData   datatypes.JSON `json:"raw_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the database table name for InvalidItemLog.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (InvalidItemLog) TableName() string {
	return "invalid_item_logs"
}
