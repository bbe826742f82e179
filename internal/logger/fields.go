package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a call chain.
const (
	FieldRequestID   = "request_id"
	FieldJobID       = "job_id"
	FieldComponent   = "component"
	FieldSource      = "source"
	FieldObjectKey   = "object_key"
	FieldStartRow    = "start_row"
	FieldMessageType = "message_type"
	FieldSKU         = "sku"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldValid      = "valid"
	FieldInvalid    = "invalid"
	FieldStatus     = "status"
)
