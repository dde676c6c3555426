package forwardauth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

// handleHealth handles health check requests. The revocation store must be
// reachable because validation fails closed without it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := s.revocations.Ping(ctx); err != nil {
		s.logger.Warn("Revocation store unreachable", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		body["revocation_store"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode health response", "error", err)
	}
}
