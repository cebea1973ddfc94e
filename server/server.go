// Package server exposes Vigil's management HTTP API: CRUD over the
// customer / data source / rule / trigger inventory, plus execution history
// and a health endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/sched"
)

// JobMonitor reports how many jobs the scheduler is currently running
type JobMonitor interface {
	MonitorNumJobs() int
}

// Server is the management API server
type Server struct {
	db         *sql.DB
	executions *sched.ExecutionStore
	monitor    JobMonitor
	httpServer *http.Server
	logger     *zap.SugaredLogger
}

// NewServer creates a management API server. monitor may be nil when the
// scheduler is not running in this process.
func NewServer(db *sql.DB, monitor JobMonitor, port int, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		db:         db,
		executions: sched.NewExecutionStore(db),
		monitor:    monitor,
		logger:     logger,
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes wires every handler onto a fresh mux
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/customers", s.HandleCustomers)
	mux.HandleFunc("/customers/", s.HandleCustomerResources)
	return mux
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Infow("Management API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "management API server failed")
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// HandleHealth reports process liveness and running job count
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
	}
	if s.monitor != nil {
		health["running_jobs"] = s.monitor.MonitorNumJobs()
	}
	if err := s.db.PingContext(r.Context()); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// HandleCustomerResources dispatches /customers/{name}/... to the resource
// handlers. Paths:
//
//	/customers/{name}
//	/customers/{name}/datasources[/{datasource}]
//	/customers/{name}/rules[/{rule}]
//	/customers/{name}/triggers[/{trigger}[/executions]]
func (s *Server) HandleCustomerResources(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/customers/")
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "Missing customer name")
		return
	}
	customer := parts[0]

	if len(parts) == 1 {
		s.handleCustomer(w, r, customer)
		return
	}

	switch parts[1] {
	case "datasources":
		s.handleDatasources(w, r, customer, parts[2:])
	case "rules":
		s.handleRules(w, r, customer, parts[2:])
	case "triggers":
		s.handleTriggers(w, r, customer, parts[2:])
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown resource %q", parts[1]))
	}
}

// customerID resolves a customer name to its row id
func (s *Server) customerID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errors.NewNotFoundError("customer %q", name)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to look up customer")
	}
	return id, nil
}

// writeStoreError maps store errors onto HTTP statuses
func (s *Server) writeStoreError(w http.ResponseWriter, err error, context string) {
	if errors.IsNotFoundError(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Errorw(context, "error", err)
	writeError(w, http.StatusInternalServerError, context)
}
