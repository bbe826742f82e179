package domain

// MessageType tags the payload carried in a queue envelope.
type MessageType string

const (
	MessageTypeChunk      MessageType = "chunk"
	MessageTypeWriteBatch MessageType = "write_batch"
	MessageTypeLogBatch   MessageType = "log_batch"
)

// ChunkMessage asks a chunk worker to process rows [StartRow, StartRow+chunkSize)
// of the object at ObjectKey.
type ChunkMessage struct {
	JobID       string `json:"job_id"`
	ObjectKey   string `json:"object_key"`
	Source      string `json:"source"`
	RevisionTag string `json:"revision_tag,omitempty"`
	StartRow    int    `json:"start_row"`
}

// WriteBatchMessage carries validated rows to the catalog writer.
type WriteBatchMessage struct {
	JobID        string         `json:"job_id"`
	Items        []*CatalogItem `json:"items"`
	RunningTotal int            `json:"running_total"`
}

// InvalidRow is one rejected row with the errors that rejected it.
type InvalidRow struct {
	RowIndex int          `json:"row_index"`
	Errors   []FieldError `json:"errors"`
	Raw      *CatalogItem `json:"raw,omitempty"`
}

// LogBatchMessage carries rejected rows to the invalid-item logger.
type LogBatchMessage struct {
	JobID        string       `json:"job_id"`
	InvalidItems []InvalidRow `json:"invalid_items"`
	RunningTotal int          `json:"running_total"`
}
