// Package model defines the data structures that flow through one execution.
//
// LIFETIME:
// Every value here lives exactly as long as the request that created it.
// Nothing is persisted; the only process-wide state is the sandbox root
// directory, which belongs to the artifact store, not to this package.
//
//	ExecutionRequest → Artifact → ExecutionOutcome → ExecutionResponse
package model

import (
	"time"
)

// ExecutionRequest is one inbound submission after it has been validated
// and given an identifier. It is never mutated after construction.
type ExecutionRequest struct {
	ID         string
	SourceText string
	StdinText  string
	ReceivedAt time.Time
}

// Artifact is the on-disk copy of a request's source text.
// Its ID is the owning request's ID, so two live artifacts never share a path.
type Artifact struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// Category is the raw classification of how an external tool run ended.
type Category int

const (
	// Success means the tool exited with status 0 before the deadline.
	Success Category = iota
	// Timeout means the deadline fired first and the tool was killed.
	Timeout
	// ProcessError means the tool exited non-zero or could not be spawned.
	ProcessError
	// SystemError means the broker itself failed (artifact write, capacity).
	SystemError
)

// String returns the lowercase name used in logs and metric labels.
func (c Category) String() string {
	switch c {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case ProcessError:
		return "process_error"
	case SystemError:
		return "system_error"
	default:
		return "unknown"
	}
}

// ExecutionOutcome is what the supervisor observed. Stdout and Stderr are the
// complete captured streams; Err carries the spawn or system failure, if any.
//
// ExitCode is -1 when the tool never produced an exit status (spawn failure,
// killed by signal). Signal is empty unless the tool died from one.
type ExecutionOutcome struct {
	Category Category
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Signal   string
	Duration time.Duration
	Err      error
}

// ExecutionResponse is the caller-facing result, always sent with HTTP 200.
//
// JSON TAGS:
// `omitempty` drops output on failures and error on success, so the wire
// shape is either {"success":true,"output":"..."} or {"success":false,"error":"..."}.
type ExecutionResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
