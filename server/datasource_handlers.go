package server

import (
	"database/sql"
	"net/http"

	"github.com/vigilhq/vigil/errors"
)

// CreateDatasourceRequest is the body of
// POST /customers/{customer}/datasources
type CreateDatasourceRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Model    string `json:"model"`
	View     string `json:"view"`
	Type     string `json:"type"`
}

// UpdateDatasourceRequest is the body of
// PUT /customers/{customer}/datasources/{name}
type UpdateDatasourceRequest struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// GetDatasourceResponse is the body of
// GET /customers/{customer}/datasources/{name}. The password is never
// echoed back.
type GetDatasourceResponse struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Model    string `json:"model"`
	View     string `json:"view"`
	Type     string `json:"type"`
}

// handleDatasources dispatches the datasource sub-resource
func (s *Server) handleDatasources(w http.ResponseWriter, r *http.Request, customer string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.handleCreateDatasource(w, r, customer)
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.handleGetDatasource(w, r, customer, rest[0])
	case len(rest) == 1 && r.Method == http.MethodPut:
		s.handleUpdateDatasource(w, r, customer, rest[0])
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleCreateDatasource(w http.ResponseWriter, r *http.Request, customer string) {
	var req CreateDatasourceRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.URL == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "name, url and type are required")
		return
	}

	ownerID, err := s.customerID(r.Context(), customer)
	if err != nil {
		s.writeStoreError(w, err, "failed to create datasource")
		return
	}

	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO datasources (name, url, username, password, model, view, type, owner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Name, req.URL, req.Username, req.Password, req.Model, req.View, req.Type, ownerID)
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to create datasource"), "failed to create datasource")
		return
	}

	s.logger.Infow("Datasource created", "customer", customer, "datasource", req.Name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetDatasource(w http.ResponseWriter, r *http.Request, customer, name string) {
	var resp GetDatasourceResponse
	err := s.db.QueryRowContext(r.Context(), `
		SELECT d.name, d.url, d.username, d.model, d.view, d.type
		FROM datasources d
		JOIN customers c ON c.id = d.owner
		WHERE c.name = ? AND d.name = ?`,
		customer, name).Scan(&resp.Name, &resp.URL, &resp.Username, &resp.Model, &resp.View, &resp.Type)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "datasource not found")
		return
	}
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to get datasource"), "failed to get datasource")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateDatasource(w http.ResponseWriter, r *http.Request, customer, name string) {
	var req UpdateDatasourceRequest
	if !readJSON(w, r, &req) {
		return
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE datasources
		SET url = ?, username = ?, password = ?
		WHERE name = ? AND owner = (SELECT id FROM customers WHERE name = ?)`,
		req.URL, req.Username, req.Password, name, customer)
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to update datasource"), "failed to update datasource")
		return
	}
	affected, err := result.RowsAffected()
	if err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to update datasource"), "failed to update datasource")
		return
	}
	if affected == 0 {
		writeError(w, http.StatusNotFound, "datasource not found")
		return
	}

	s.logger.Infow("Datasource updated", "customer", customer, "datasource", name)
	w.WriteHeader(http.StatusOK)
}
