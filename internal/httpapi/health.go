package httpapi

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by remote snapshot stores (Qdrant).
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /healthz endpoint.
// With a nil checker the service only reports that it is up.
func NewHealthHandler(store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "healthy",
			Store:     "local",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if store == nil {
			writeJSON(w, http.StatusOK, response)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := store.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Store = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}

		response.Store = "connected"
		writeJSON(w, http.StatusOK, response)
	}
}
