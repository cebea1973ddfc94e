package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/vigilhq/vigil/errors"
)

// CreateRuleRequest is the body of POST /customers/{customer}/rules.
// Filters map field names to filter expressions; Fields is the ordered
// fetch list; Keys names the fields forming row identity.
type CreateRuleRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Datasource  string            `json:"datasource"`
	Filters     map[string]string `json:"filters"`
	Fields      []string          `json:"fields"`
	Keys        []string          `json:"keys"`

	TriggerOnNew     bool `json:"triggerOnNew"`
	TriggerOnChanged bool `json:"triggerOnChanged"`
	TriggerOnRemoved bool `json:"triggerOnRemoved"`
}

// GetRuleResponse is the body of GET /customers/{customer}/rules/{name}
type GetRuleResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Owner       string            `json:"owner"`
	Datasource  string            `json:"datasource"`
	Filters     map[string]string `json:"filters"`
	Fields      []string          `json:"fields"`
	Keys        []string          `json:"keys"`

	TriggerOnNew     bool `json:"triggerOnNew"`
	TriggerOnChanged bool `json:"triggerOnChanged"`
	TriggerOnRemoved bool `json:"triggerOnRemoved"`
}

// handleRules dispatches the rule sub-resource
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request, customer string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.handleCreateRule(w, r, customer)
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.handleGetRule(w, r, customer, rest[0])
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request, customer string) {
	var req CreateRuleRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Datasource == "" {
		writeError(w, http.StatusBadRequest, "name and datasource are required")
		return
	}
	if len(req.Keys) == 0 {
		writeError(w, http.StatusBadRequest, "at least one key field is required")
		return
	}

	ownerID, err := s.customerID(r.Context(), customer)
	if err != nil {
		s.writeStoreError(w, err, "failed to create rule")
		return
	}

	var datasourceID int64
	err = s.db.QueryRowContext(r.Context(),
		`SELECT id FROM datasources WHERE name = ? AND owner = ?`,
		req.Datasource, ownerID).Scan(&datasourceID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "datasource not found")
		return
	}
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to look up datasource"), "failed to create rule")
		return
	}

	if req.Filters == nil {
		req.Filters = map[string]string{}
	}
	if req.Fields == nil {
		req.Fields = []string{}
	}
	filtersJSON, _ := json.Marshal(req.Filters)
	fieldsJSON, _ := json.Marshal(req.Fields)
	keysJSON, _ := json.Marshal(req.Keys)

	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO rules
			(name, description, filters, fields, keys, owner, datasource,
			 trigger_on_new, trigger_on_changed, trigger_on_removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Name, req.Description, string(filtersJSON), string(fieldsJSON), string(keysJSON),
		ownerID, datasourceID, req.TriggerOnNew, req.TriggerOnChanged, req.TriggerOnRemoved)
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to create rule"), "failed to create rule")
		return
	}

	s.logger.Infow("Rule created", "customer", customer, "rule", req.Name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request, customer, name string) {
	var resp GetRuleResponse
	var filtersJSON, fieldsJSON, keysJSON string
	err := s.db.QueryRowContext(r.Context(), `
		SELECT r.name, r.description, c.name, d.name,
		       r.filters, r.fields, r.keys,
		       r.trigger_on_new, r.trigger_on_changed, r.trigger_on_removed
		FROM rules r
		JOIN customers c ON c.id = r.owner
		JOIN datasources d ON d.id = r.datasource
		WHERE c.name = ? AND r.name = ?`,
		customer, name).Scan(&resp.Name, &resp.Description, &resp.Owner, &resp.Datasource,
		&filtersJSON, &fieldsJSON, &keysJSON,
		&resp.TriggerOnNew, &resp.TriggerOnChanged, &resp.TriggerOnRemoved)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to get rule"), "failed to get rule")
		return
	}

	if err := json.Unmarshal([]byte(filtersJSON), &resp.Filters); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "rule has malformed filters"), "failed to get rule")
		return
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &resp.Fields); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "rule has malformed fields"), "failed to get rule")
		return
	}
	if err := json.Unmarshal([]byte(keysJSON), &resp.Keys); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "rule has malformed keys"), "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
