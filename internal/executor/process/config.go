package process

import (
	"runtime"
	"time"
)

// Config holds the configuration for subprocess execution.
type Config struct {
	// Timeout is the default wall-clock budget for one run.
	Timeout time.Duration
	// KillGrace bounds how long output is still drained after the tool has
	// exited or been killed (an escaped descendant may hold the pipes open).
	// Zero means the default.
	KillGrace time.Duration
	// MaxConcurrent is the number of tool processes allowed to run at once.
	MaxConcurrent int
	// QueueTimeout bounds how long a request waits for a free slot.
	QueueTimeout time.Duration
}

// DefaultConfig returns a 5 second budget plus an
// admission limit sized to the host.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		KillGrace:     2 * time.Second,
		MaxConcurrent: 2 * runtime.NumCPU(),
		QueueTimeout:  10 * time.Second,
	}
}
