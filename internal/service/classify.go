package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/runbroker/internal/apperror"
	"github.com/sakif/runbroker/internal/model"
)

// Caller-facing messages.
const (
	NoCodeMessage       = "No code provided"
	InvalidBodyMessage  = "Invalid request body"
	NoOutputSentinel    = "(no output)"
	GenericFailure      = "Execution failed"
	ServerErrorPrefix   = "Server error: "
	timeoutMessageShape = "Execution timeout (%s seconds exceeded)"
)

// TimeoutMessage renders the fixed timeout error for a budget of d,
// e.g. "Execution timeout (5 seconds exceeded)".
func TimeoutMessage(d time.Duration) string {
	return fmt.Sprintf(timeoutMessageShape, strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
}

// Classify maps what the supervisor observed to what the caller sees.
//
// It is a pure function: same outcome and timeout in, same response out.
//
// Compile-time and run-time failures of the submitted program are NOT told
// apart. The external tool reports both the same way (non-zero exit plus
// diagnostics), so both surface through the ProcessError branch.
func Classify(o *model.ExecutionOutcome, timeout time.Duration) model.ExecutionResponse {
	switch o.Category {
	case model.Success:
		out := string(o.Stdout)
		if out == "" {
			out = NoOutputSentinel
		}
		return model.ExecutionResponse{Success: true, Output: out}

	case model.Timeout:
		// Partial output is deliberately ignored: a timeout reads the same
		// no matter how far the program got.
		return model.ExecutionResponse{Success: false, Error: TimeoutMessage(timeout)}

	case model.ProcessError:
		msg := GenericFailure
		switch {
		case len(o.Stderr) > 0:
			msg = string(o.Stderr)
		case len(o.Stdout) > 0:
			msg = string(o.Stdout)
		case o.Err != nil:
			msg = o.Err.Error()
		}
		return model.ExecutionResponse{Success: false, Error: msg}

	default:
		return model.ExecutionResponse{Success: false, Error: ServerErrorPrefix + describe(o.Err)}
	}
}

// describe prefers an AppError's curated message over the raw error chain.
func describe(err error) string {
	if err == nil {
		return "unknown failure"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
