package logger

// Standard field names for consistent structured logging across Vigil.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID    = "job_id"
	FieldTrigger  = "trigger"
	FieldCustomer = "customer"
	FieldRule     = "rule"

	// Components
	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldSchedule   = "schedule"
	FieldNextRun    = "next_run"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount      = "count"
	FieldEventCount = "event_count"

	// Status
	FieldStatus = "status"
)
