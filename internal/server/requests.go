package server

import (
	"bytes"
	"encoding/json"

	"github.com/quasarUnina/H2QGA/internal/optimization"
	"github.com/quasarUnina/H2QGA/internal/optimization/benchmark"
)

// OptimizeRequest starts a refinement job. Params fields left out of the
// request keep the configured defaults.
type OptimizeRequest struct {
	benchmark.Spec
	Params optimization.ParameterSet `json:"params"`
	Seed   *uint64                   `json:"seed,omitempty"`
}

// GridRequest runs the grid-search oracle.
type GridRequest struct {
	benchmark.Spec
	NumSolutions int `json:"num_solutions"`
}

func (s *Server) newOptimizeRequest() OptimizeRequest {
	return OptimizeRequest{Params: s.cfg.ParameterSet()}
}

// decodeParams decodes JSON-RPC params given either as an object or as an
// array whose first element is the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return optimization.InvalidParameterf("missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return optimization.WrapError(optimization.ErrInvalidParameter, err.Error())
		}
		if len(list) == 0 {
			return optimization.InvalidParameterf("missing required parameters")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return optimization.WrapError(optimization.ErrInvalidParameter, "invalid parameter format: "+err.Error())
	}
	return nil
}
