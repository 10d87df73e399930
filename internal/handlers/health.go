package handlers

import (
	"net/http"
	"os"
	"time"
)

// HealthHandler reports service liveness.
type HealthHandler struct {
	dataDir string
}

func NewHealthHandler(dataDir string) *HealthHandler {
	return &HealthHandler{dataDir: dataDir}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Issues    []string `json:"issues,omitempty"`
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if info, err := os.Stat(h.dataDir); err != nil || !info.IsDir() {
		resp.Status = "unhealthy"
		resp.Issues = append(resp.Issues, "data directory is not accessible")
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
