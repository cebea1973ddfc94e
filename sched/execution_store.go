package sched

import (
	"database/sql"

	"github.com/vigilhq/vigil/errors"
)

// ExecutionStore persists job execution history
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreateExecution inserts a new execution record
func (s *ExecutionStore) CreateExecution(exec *Execution) error {
	query := `
		INSERT INTO executions (
			id, trigger_id, status,
			started_at, completed_at, duration_ms,
			event_count, error_message,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var completedAt, errorMessage, durationMs, eventCount interface{}
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}
	if exec.EventCount != nil {
		eventCount = *exec.EventCount
	}
	if exec.ErrorMessage != nil {
		errorMessage = *exec.ErrorMessage
	}

	_, err := s.db.Exec(query,
		exec.ID,
		exec.TriggerID,
		exec.Status,
		exec.StartedAt,
		completedAt,
		durationMs,
		eventCount,
		errorMessage,
		exec.CreatedAt,
		exec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	return nil
}

// UpdateExecution updates an existing execution record
func (s *ExecutionStore) UpdateExecution(exec *Execution) error {
	query := `
		UPDATE executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    event_count = ?,
		    error_message = ?,
		    updated_at = ?
		WHERE id = ?
	`

	var completedAt, errorMessage, durationMs, eventCount interface{}
	if exec.CompletedAt != nil {
		completedAt = *exec.CompletedAt
	}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}
	if exec.EventCount != nil {
		eventCount = *exec.EventCount
	}
	if exec.ErrorMessage != nil {
		errorMessage = *exec.ErrorMessage
	}

	result, err := s.db.Exec(query,
		exec.Status,
		completedAt,
		durationMs,
		eventCount,
		errorMessage,
		exec.UpdatedAt,
		exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.Newf("execution not found: %s", exec.ID)
	}

	return nil
}

// ListExecutions retrieves a trigger's executions, most recent first
func (s *ExecutionStore) ListExecutions(triggerID, limit int) ([]*Execution, error) {
	query := `
		SELECT id, trigger_id, status,
		       started_at, completed_at, duration_ms,
		       event_count, error_message,
		       created_at, updated_at
		FROM executions
		WHERE trigger_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, triggerID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		var exec Execution
		var completedAt, errorMessage sql.NullString
		var durationMs, eventCount sql.NullInt64

		err := rows.Scan(
			&exec.ID,
			&exec.TriggerID,
			&exec.Status,
			&exec.StartedAt,
			&completedAt,
			&durationMs,
			&eventCount,
			&errorMessage,
			&exec.CreatedAt,
			&exec.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}

		if completedAt.Valid {
			exec.CompletedAt = &completedAt.String
		}
		if durationMs.Valid {
			duration := int(durationMs.Int64)
			exec.DurationMs = &duration
		}
		if eventCount.Valid {
			count := int(eventCount.Int64)
			exec.EventCount = &count
		}
		if errorMessage.Valid {
			exec.ErrorMessage = &errorMessage.String
		}

		executions = append(executions, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}

	return executions, nil
}
