package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quasarUnina/H2QGA/internal/logging"
)

// handleOptimize handles POST /api/v1/optimize.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	req := s.newOptimizeRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, r, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	st, err := s.startOptimization(req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusAccepted, st)
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, st)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelOptimization(chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// handleGrid handles POST /api/v1/grid. The search runs synchronously and is
// aborted when the client goes away.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	var req GridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, r, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	res, err := s.gridOptimum(r.Context(), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, res)
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	s.respondJSON(w, r, statusCode(err), map[string]string{"error": err.Error()})
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Warn("Writing response failed", zap.Error(err))
	}
}
