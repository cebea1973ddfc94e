package server

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/sched"
)

// CreateTriggerRequest is the body of POST /customers/{customer}/triggers.
// Rules lists rule names owned by the same customer. The schedule is a
// 6-field cron expression with seconds precision.
type CreateTriggerRequest struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Schedule    string                     `json:"schedule"`
	Rules       []string                   `json:"rules"`
	Email       *CreateEmailTriggerRequest `json:"email"`
}

// CreateEmailTriggerRequest attaches an email action to a trigger
type CreateEmailTriggerRequest struct {
	Address string `json:"address"`
	Prompt  string `json:"prompt"`
}

// GetTriggerResponse is the body of GET /customers/{customer}/triggers/{name}
type GetTriggerResponse struct {
	ID          int                        `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Schedule    string                     `json:"schedule"`
	Rules       []string                   `json:"rules"`
	Email       *CreateEmailTriggerRequest `json:"email,omitempty"`
}

// ListExecutionsResponse is the body of
// GET /customers/{customer}/triggers/{name}/executions
type ListExecutionsResponse struct {
	Executions []*sched.Execution `json:"executions"`
	Count      int                `json:"count"`
}

// handleTriggers dispatches the trigger sub-resource
func (s *Server) handleTriggers(w http.ResponseWriter, r *http.Request, customer string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.handleCreateTrigger(w, r, customer)
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.handleGetTrigger(w, r, customer, rest[0])
	case len(rest) == 2 && rest[1] == "executions" && r.Method == http.MethodGet:
		s.handleListTriggerExecutions(w, r, customer, rest[0])
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request, customer string) {
	var req CreateTriggerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Schedule == "" {
		writeError(w, http.StatusBadRequest, "name and schedule are required")
		return
	}
	if _, err := sched.ParseSchedule(req.Schedule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == nil {
		writeError(w, http.StatusBadRequest, "an email action is required")
		return
	}

	ownerID, err := s.customerID(r.Context(), customer)
	if err != nil {
		s.writeStoreError(w, err, "failed to create trigger")
		return
	}

	// Resolve every rule name before writing anything
	ruleIDs := make([]int64, 0, len(req.Rules))
	for _, ruleName := range req.Rules {
		var ruleID int64
		err := s.db.QueryRowContext(r.Context(),
			`SELECT id FROM rules WHERE name = ? AND owner = ?`,
			ruleName, ownerID).Scan(&ruleID)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "rule not found: "+ruleName)
			return
		}
		if err != nil {
			s.writeStoreError(w, errors.Wrap(err, "failed to look up rule"), "failed to create trigger")
			return
		}
		ruleIDs = append(ruleIDs, ruleID)
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to begin transaction"), "failed to create trigger")
		return
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(r.Context(), `
		INSERT INTO triggers (name, description, owner, schedule)
		VALUES (?, ?, ?, ?)`,
		req.Name, req.Description, ownerID, req.Schedule)
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to create trigger"), "failed to create trigger")
		return
	}
	triggerID, err := result.LastInsertId()
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to create trigger"), "failed to create trigger")
		return
	}

	for _, ruleID := range ruleIDs {
		if _, err := tx.ExecContext(r.Context(),
			`INSERT INTO trigger_rules (trigger_id, rule_id) VALUES (?, ?)`,
			triggerID, ruleID); err != nil {
			s.writeStoreError(w, errors.Wrap(err, "failed to attach rule"), "failed to create trigger")
			return
		}
	}

	if _, err := tx.ExecContext(r.Context(),
		`INSERT INTO email_triggers (trigger_id, email, prompt) VALUES (?, ?, ?)`,
		triggerID, req.Email.Address, req.Email.Prompt); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to attach email action"), "failed to create trigger")
		return
	}

	if err := tx.Commit(); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to commit trigger"), "failed to create trigger")
		return
	}

	s.logger.Infow("Trigger created",
		"customer", customer,
		"trigger", req.Name,
		"schedule", req.Schedule,
		"rules", len(ruleIDs),
	)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": triggerID})
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request, customer, name string) {
	var resp GetTriggerResponse
	err := s.db.QueryRowContext(r.Context(), `
		SELECT t.id, t.name, t.description, t.schedule
		FROM triggers t
		JOIN customers c ON c.id = t.owner
		WHERE c.name = ? AND t.name = ?`,
		customer, name).Scan(&resp.ID, &resp.Name, &resp.Description, &resp.Schedule)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to get trigger"), "failed to get trigger")
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT r.name
		FROM trigger_rules tr
		JOIN rules r ON r.id = tr.rule_id
		WHERE tr.trigger_id = ?
		ORDER BY tr.id`, resp.ID)
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to list trigger rules"), "failed to get trigger")
		return
	}
	defer rows.Close()

	resp.Rules = []string{}
	for rows.Next() {
		var ruleName string
		if err := rows.Scan(&ruleName); err != nil {
			s.writeStoreError(w, errors.Wrap(err, "failed to scan trigger rule"), "failed to get trigger")
			return
		}
		resp.Rules = append(resp.Rules, ruleName)
	}
	if err := rows.Err(); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to list trigger rules"), "failed to get trigger")
		return
	}

	var email CreateEmailTriggerRequest
	err = s.db.QueryRowContext(r.Context(),
		`SELECT email, prompt FROM email_triggers WHERE trigger_id = ?`, resp.ID).
		Scan(&email.Address, &email.Prompt)
	if err != nil && err != sql.ErrNoRows {
		s.writeStoreError(w, errors.Wrap(err, "failed to get email action"), "failed to get trigger")
		return
	}
	if err == nil {
		resp.Email = &email
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListTriggerExecutions returns a trigger's recent execution history
func (s *Server) handleListTriggerExecutions(w http.ResponseWriter, r *http.Request, customer, name string) {
	var triggerID int
	err := s.db.QueryRowContext(r.Context(), `
		SELECT t.id FROM triggers t
		JOIN customers c ON c.id = t.owner
		WHERE c.name = ? AND t.name = ?`,
		customer, name).Scan(&triggerID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to get trigger"), "failed to list executions")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	executions, err := s.executions.ListExecutions(triggerID, limit)
	if err != nil {
		s.writeStoreError(w, err, "failed to list executions")
		return
	}
	if executions == nil {
		executions = []*sched.Execution{}
	}

	writeJSON(w, http.StatusOK, ListExecutionsResponse{
		Executions: executions,
		Count:      len(executions),
	})
}
