package handler

import "net/http"

// CapacityReporter exposes the admission gate's occupancy.
// *process.Gate implements it.
type CapacityReporter interface {
	Capacity() int
	InFlight() int
}

// HealthResponse is the GET /api/health body.
type HealthResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Capacity int    `json:"capacity"`
	InFlight int    `json:"inFlight"`
}

// HealthHandler reports liveness. It does not spawn the external tool.
type HealthHandler struct {
	gate CapacityReporter
}

// NewHealthHandler creates a HealthHandler. gate may be nil.
func NewHealthHandler(gate CapacityReporter) *HealthHandler {
	return &HealthHandler{gate: gate}
}

// HandleHealth processes GET /api/health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Message: "Execution broker is running",
	}
	if h.gate != nil {
		resp.Capacity = h.gate.Capacity()
		resp.InFlight = h.gate.InFlight()
	}
	writeJSON(w, http.StatusOK, resp)
}
