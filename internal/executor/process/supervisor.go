// Package process implements executor.Executor by spawning the external tool
// as a local subprocess.
//
// ONE RUN, STEP BY STEP:
//  1. Build `<tool> <artifact>` as an argument vector (never a shell string).
//  2. Give the process its own stdin/stdout/stderr pipes and its own process group.
//  3. Start it, then write the request's input to stdin and close it (EOF).
//  4. Two goroutines copy stdout and stderr into buffers, so a chatty tool
//     can't deadlock us by filling one pipe while we read the other.
//  5. Race the tool's own exit against a timer. Whichever finishes first wins:
//     - tool exits  → classify by exit status
//     - timer fires → kill the whole process group, report Timeout
//  6. Kill the process group regardless, so nothing the tool left running
//     outlives the request, then give the copiers KillGrace to hit EOF.
//
// The race watches the tool itself, not its pipes. A background child that
// inherited stdout can keep the pipe open long after the tool exited; that
// must neither delay the result nor turn a clean exit into a timeout.
//
// Nothing here retries. One request, one spawn.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sakif/runbroker/internal/executor"
	"github.com/sakif/runbroker/internal/metrics"
	"github.com/sakif/runbroker/internal/model"
)

// Supervisor runs the resolved tool once per Execute call. It holds no
// per-request state, so one Supervisor serves every concurrent request.
type Supervisor struct {
	tool   Tool
	config Config
	logger *slog.Logger
}

var _ executor.Executor = (*Supervisor)(nil)

// New creates a Supervisor for an already-resolved tool.
func New(tool Tool, cfg Config, logger *slog.Logger) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultConfig().KillGrace
	}
	return &Supervisor{
		tool:   tool,
		config: cfg,
		logger: logger,
	}
}

// Tool returns the resolved tool descriptor.
func (s *Supervisor) Tool() Tool {
	return s.tool
}

// Timeout returns the default per-run budget.
func (s *Supervisor) Timeout() time.Duration {
	return s.config.Timeout
}

// Execute spawns the tool against inv.ArtifactPath and supervises it until
// it exits or its budget runs out.
//
// ctx is an additional kill trigger reported as SystemError. The request
// coordinator passes a context that is never cancelled, so in production the
// timer is the only thing that stops a run early.
func (s *Supervisor) Execute(ctx context.Context, inv executor.Invocation) *model.ExecutionOutcome {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = s.config.Timeout
	}

	cmd := s.tool.command(inv.ArtifactPath)
	isolate(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return spawnFailure(err)
	}

	// Plain *os.File pipes: exec hands the write ends to the child without a
	// copying goroutine of its own, so cmd.Wait returns when the tool exits
	// instead of when the last holder of the pipe closes it.
	outR, outW, err := os.Pipe()
	if err != nil {
		return spawnFailure(err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return spawnFailure(err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	start := time.Now()
	err = cmd.Start()
	// The child has its own copies now; ours would keep EOF from ever arriving.
	outW.Close()
	errW.Close()
	if err != nil {
		outR.Close()
		errR.Close()
		s.logger.Warn("failed to spawn external tool",
			slog.String("tool", s.tool.Path),
			slog.String("error", err.Error()),
		)
		return spawnFailure(err)
	}
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	var stdout, stderr bytes.Buffer
	var drain sync.WaitGroup
	drain.Add(2)
	go copyStream(&drain, &stdout, outR)
	go copyStream(&drain, &stderr, errR)

	// The tool reads all input up front, so a single write followed by an
	// explicit close is enough. The write runs on its own goroutine: a tool
	// that never reads stdin must not block the timer race. If the tool exits
	// first, Wait closes the pipe and the write fails harmlessly.
	go feedStdin(stdin, inv.Stdin)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut, cancelled := false, false

	select {
	case waitErr = <-done:
	case <-timer.C:
		// The tool may have exited at the same instant; prefer its real result.
		select {
		case waitErr = <-done:
		default:
			timedOut = true
			s.kill(cmd)
			waitErr = <-done
		}
	case <-ctx.Done():
		cancelled = true
		s.kill(cmd)
		waitErr = <-done
	}
	elapsed := time.Since(start)

	// Anything still in the tool's group was started by it; it dies with the run.
	s.kill(cmd)
	s.awaitDrain(&drain, outR, errR)

	outcome := &model.ExecutionOutcome{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: elapsed,
	}
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
		outcome.Signal = exitSignal(cmd.ProcessState)
	}

	switch {
	case cancelled:
		outcome.Category = model.SystemError
		outcome.Err = ctx.Err()
	case timedOut:
		outcome.Category = model.Timeout
	case waitErr == nil:
		outcome.Category = model.Success
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			outcome.Err = waitErr
		}
		outcome.Category = model.ProcessError
	}

	return outcome
}

// kill terminates the tool and everything in its process group. An empty
// group is not an error.
func (s *Supervisor) kill(cmd *exec.Cmd) {
	if err := killTree(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Error("failed to kill external tool",
			slog.Int("pid", cmd.Process.Pid),
			slog.String("error", err.Error()),
		)
	}
}

// awaitDrain waits up to KillGrace for both copiers to reach EOF. A
// descendant that escaped the process group may still hold a pipe; closing
// the read ends cuts it off and unblocks the copiers.
func (s *Supervisor) awaitDrain(drain *sync.WaitGroup, readers ...*os.File) {
	drained := make(chan struct{})
	go func() {
		drain.Wait()
		close(drained)
	}()

	grace := time.NewTimer(s.config.KillGrace)
	defer grace.Stop()

	select {
	case <-drained:
		closeAll(readers)
	case <-grace.C:
		s.logger.Warn("output pipes still open after kill grace",
			slog.Duration("killGrace", s.config.KillGrace),
		)
		closeAll(readers)
		<-drained
	}
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func copyStream(wg *sync.WaitGroup, dst *bytes.Buffer, src *os.File) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
}

func feedStdin(w io.WriteCloser, input string) {
	if input != "" {
		_, _ = io.WriteString(w, input)
	}
	_ = w.Close()
}

func spawnFailure(err error) *model.ExecutionOutcome {
	return &model.ExecutionOutcome{
		Category: model.ProcessError,
		ExitCode: -1,
		Err:      err,
	}
}
