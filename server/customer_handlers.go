package server

import (
	"net/http"

	"github.com/vigilhq/vigil/errors"
)

// CreateCustomerRequest is the body of POST /customers
type CreateCustomerRequest struct {
	Name string `json:"name"`
}

// GetCustomerResponse is the body of GET /customers/{name}
type GetCustomerResponse struct {
	Name string `json:"name"`
}

// HandleCustomers handles POST /customers
func (s *Server) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CreateCustomerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Customer name is required")
		return
	}

	if _, err := s.db.ExecContext(r.Context(),
		`INSERT INTO customers (name) VALUES (?)`, req.Name); err != nil {
		s.writeStoreError(w, errors.Wrap(err, "failed to create customer"), "failed to create customer")
		return
	}

	s.logger.Infow("Customer created", "customer", req.Name)
	writeJSON(w, http.StatusCreated, GetCustomerResponse{Name: req.Name})
}

// handleCustomer handles GET and DELETE on /customers/{name}
func (s *Server) handleCustomer(w http.ResponseWriter, r *http.Request, customer string) {
	switch r.Method {
	case http.MethodGet:
		if _, err := s.customerID(r.Context(), customer); err != nil {
			s.writeStoreError(w, err, "failed to get customer")
			return
		}
		writeJSON(w, http.StatusOK, GetCustomerResponse{Name: customer})
	case http.MethodDelete:
		if _, err := s.db.ExecContext(r.Context(),
			`DELETE FROM customers WHERE name = ?`, customer); err != nil {
			s.writeStoreError(w, errors.Wrap(err, "failed to delete customer"), "failed to delete customer")
			return
		}
		s.logger.Infow("Customer deleted", "customer", customer)
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
