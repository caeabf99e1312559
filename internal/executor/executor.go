// Package executor defines the contract of the execution supervisor: run the
// external tool against one artifact and report what happened.
package executor

import (
	"context"
	"time"

	"github.com/sakif/runbroker/internal/model"
)

// Invocation is one request to run the external tool.
type Invocation struct {
	// ArtifactPath is passed to the tool as its sole argument.
	ArtifactPath string
	// Stdin is written to the tool's standard input, which is then closed.
	Stdin string
	// Timeout bounds wall-clock time from spawn to exit or kill.
	// Zero means the implementation's default.
	Timeout time.Duration
}

// Executor runs the external tool. Failures of any kind are reported inside
// the returned outcome, never as a separate error.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) *model.ExecutionOutcome
}
