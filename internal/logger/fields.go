package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing Fields (Context level)
// Propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldOrgID is the organization every pricing operation is scoped to
	FieldOrgID = "org_id"

	// FieldJobID is the pricing job ID
	FieldJobID = "job_id"

	// FieldModeID is the pricing mode ID
	FieldModeID = "mode_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldActor is the user who triggered the operation
	FieldActor = "actor"
)

// ============================================
// Metric Fields (Entry level)
// Used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldFailed is the number of failed items
	FieldFailed = "failed"

	// FieldSize is a batch or payload size
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
