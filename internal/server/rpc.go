package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/quasarUnina/H2QGA/internal/logging"
	"github.com/quasarUnina/H2QGA/internal/optimization"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jobRef struct {
	ID string `json:"optimization_id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "optimization.start":
		req := s.newOptimizeRequest()
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startOptimization(req)
		}
	case "optimization.status":
		var ref jobRef
		if err = decodeParams(request.Params, &ref); err == nil {
			result, err = s.optimizationStatus(ref.ID)
		}
	case "optimization.cancel":
		var ref jobRef
		if err = decodeParams(request.Params, &ref); err == nil {
			err = s.cancelOptimization(ref.ID)
			result = map[string]string{"status": "cancellation requested"}
		}
	case "gridsearch.optimum":
		var req GridRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.gridOptimum(r.Context(), req)
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		logging.FromContext(r.Context()).Debug("RPC call failed", zap.String("method", request.Method), zap.Error(err))
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func rpcCode(err error) int {
	if errors.Is(err, optimization.ErrInvalidParameter) || errors.Is(err, optimization.ErrUnknownProblem) {
		return rpcInvalidParams
	}
	return rpcServerError
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("Request error",
		zap.Int("code", code),
		zap.String("message", message),
	)

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
