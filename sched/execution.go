package sched

// ExecutionStatus tracks the lifecycle of one evaluation cycle
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is one recorded evaluation cycle of a job. Timestamps are
// RFC3339 strings, matching how they are stored.
type Execution struct {
	ID           string          `json:"id"`
	TriggerID    int             `json:"trigger_id"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    string          `json:"started_at"`
	CompletedAt  *string         `json:"completed_at,omitempty"`
	DurationMs   *int            `json:"duration_ms,omitempty"`
	EventCount   *int            `json:"event_count,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}
