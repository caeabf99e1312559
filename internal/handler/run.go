package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/runbroker/internal/model"
	"github.com/sakif/runbroker/internal/service"
)

// Runner is what RunHandler needs from the service layer.
// *service.RunService implements it.
type Runner interface {
	Run(ctx context.Context, code, input string) model.ExecutionResponse
}

// RunRequest is the POST /api/run body. Both fields are optional on the
// wire; a missing code is answered with "No code provided".
type RunRequest struct {
	Code  string `json:"code"`
	Input string `json:"input"`
}

// RunHandler accepts source code plus stdin and returns the execution result.
type RunHandler struct {
	runner       Runner
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewRunHandler creates a RunHandler. maxBodyBytes <= 0 disables the cap.
func NewRunHandler(runner Runner, maxBodyBytes int64, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runner:       runner,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HandleRun processes POST /api/run.
//
// The status is ALWAYS 200. Success or failure of the submitted program is
// reported in the body's "success" field, never through the status code.
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req RunRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.logger.Warn("invalid run request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, model.ExecutionResponse{
			Success: false,
			Error:   service.InvalidBodyMessage,
		})
		return
	}

	writeJSON(w, http.StatusOK, h.runner.Run(r.Context(), req.Code, req.Input))
}
