// Package service contains the request coordinator: the one place that turns
// an inbound submission into a response.
//
// THE STATE MACHINE OF ONE REQUEST:
//
//	Received → Validated → ArtifactWritten → Executing → Classified → ArtifactRemoved → Responded
//	              │
//	              └─ (no code) ──────────────────────────────────────────────────────────→ Responded
//
// Two guarantees hold on every path:
//   - A request that fails validation touches neither the filesystem nor the process table.
//   - A request that wrote an artifact removes it before its response is returned,
//     including when execution times out or panics.
//
// WHY A SERVICE LAYER?
// The handler only knows HTTP and JSON. The coordinator only knows requests,
// artifacts and outcomes. Tests drive it with plain function calls, a temp
// directory and a fake executor, no HTTP server needed.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/runbroker/internal/apperror"
	"github.com/sakif/runbroker/internal/executor"
	"github.com/sakif/runbroker/internal/identifier"
	"github.com/sakif/runbroker/internal/metrics"
	"github.com/sakif/runbroker/internal/model"
)

// ArtifactStore is the subset of artifact.Store the coordinator needs.
type ArtifactStore interface {
	Write(id, sourceText string) (*model.Artifact, error)
	Remove(a *model.Artifact)
}

// Admitter hands out execution slots. process.Gate implements it.
type Admitter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// RunService coordinates one execution per Run call. It keeps no
// per-request state, so a single instance serves all concurrent requests.
type RunService struct {
	ids     identifier.Provider
	store   ArtifactStore
	exec    executor.Executor
	gate    Admitter
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunService wires the coordinator. gate may be nil, which admits every
// request immediately.
func NewRunService(
	ids identifier.Provider,
	store ArtifactStore,
	exec executor.Executor,
	gate Admitter,
	timeout time.Duration,
	logger *slog.Logger,
) *RunService {
	if gate == nil {
		gate = openGate{}
	}
	return &RunService{
		ids:     ids,
		store:   store,
		exec:    exec,
		gate:    gate,
		timeout: timeout,
		logger:  logger,
	}
}

// Timeout returns the per-run budget quoted in timeout messages.
func (s *RunService) Timeout() time.Duration {
	return s.timeout
}

// Run validates, executes and classifies one submission.
// It never returns an error: every failure becomes a response.
func (s *RunService) Run(ctx context.Context, code, input string) model.ExecutionResponse {
	if code == "" {
		metrics.RunsTotal.WithLabelValues("invalid_request").Inc()
		return Reject(apperror.ValidationFailed("code", NoCodeMessage))
	}

	// Callers cannot abort a run: once accepted, only the timeout stops it.
	ctx = context.WithoutCancel(ctx)

	req := model.ExecutionRequest{
		ID:         s.ids.Next(),
		SourceText: code,
		StdinText:  input,
		ReceivedAt: time.Now(),
	}

	outcome := s.execute(ctx, req)
	resp := Classify(outcome, s.timeout)

	category := outcome.Category.String()
	metrics.RunsTotal.WithLabelValues(category).Inc()
	if outcome.Duration > 0 {
		metrics.RunDuration.WithLabelValues(category).Observe(outcome.Duration.Seconds())
	}

	attrs := []any{
		slog.String("id", req.ID),
		slog.String("category", category),
		slog.Int("exitCode", outcome.ExitCode),
		slog.Duration("runTime", outcome.Duration),
		slog.Duration("total", time.Since(req.ReceivedAt)),
		slog.Int("stdoutBytes", len(outcome.Stdout)),
		slog.Int("stderrBytes", len(outcome.Stderr)),
	}
	if outcome.Signal != "" {
		attrs = append(attrs, slog.String("signal", outcome.Signal))
	}
	if outcome.Category == model.SystemError {
		attrs = append(attrs, slog.String("error", describe(outcome.Err)))
		s.logger.Error("execution failed", attrs...)
	} else {
		s.logger.Info("execution completed", attrs...)
	}

	return resp
}

// execute runs the Validated → ArtifactRemoved part of the state machine.
// Deferred calls unwind in reverse: recover, then remove the artifact, then
// free the slot. By the time execute returns, the artifact is gone.
func (s *RunService) execute(ctx context.Context, req model.ExecutionRequest) (outcome *model.ExecutionOutcome) {
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return systemFailure(err)
	}
	defer release()

	artifact, err := s.store.Write(req.ID, req.SourceText)
	if err != nil {
		return systemFailure(err)
	}
	defer s.store.Remove(artifact)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("executor panicked",
				slog.String("id", req.ID),
				slog.String("panic", fmt.Sprint(r)),
			)
			outcome = systemFailure(apperror.System("unexpected execution failure", fmt.Errorf("%v", r)))
		}
	}()

	outcome = s.exec.Execute(ctx, executor.Invocation{
		ArtifactPath: artifact.Path,
		Stdin:        req.StdinText,
		Timeout:      s.timeout,
	})
	if outcome == nil {
		outcome = systemFailure(apperror.System("executor returned no outcome", nil))
	}
	return outcome
}

// Reject builds the response for a request refused before any work began.
func Reject(err *apperror.AppError) model.ExecutionResponse {
	return model.ExecutionResponse{Success: false, Error: err.Message}
}

func systemFailure(err error) *model.ExecutionOutcome {
	return &model.ExecutionOutcome{
		Category: model.SystemError,
		ExitCode: -1,
		Err:      err,
	}
}

// openGate admits everything.
type openGate struct{}

func (openGate) Acquire(context.Context) (func(), error) {
	return func() {}, nil
}
