package server

import (
	"encoding/json"
	"net/http"
)

// version is reported by the health endpoint.
const version = "1.0.0"

// handleHealth reports liveness and whether every database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	for _, db := range s.container.Databases() {
		if err := db.HealthCheck(r.Context()); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Health check failed")
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	response := map[string]interface{}{
		"status":  status,
		"version": version,
		"service": "riskparity",
	}

	s.writeJSON(w, code, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
