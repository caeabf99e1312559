// Package stubtool lets tests stand in for the external compiler/interpreter.
//
// HOW IT WORKS:
// The test binary itself becomes the "external tool". A package's TestMain
// calls RunIfRequested first; when the supervisor re-executes the test binary
// as `<test binary> <artifact path>`, the child inherits ModeEnv from the
// parent, sees it here, plays the requested behaviour and exits before the
// test framework ever starts.
//
//	func TestMain(m *testing.M) {
//	    stubtool.RunIfRequested()
//	    os.Exit(m.Run())
//	}
//
//	func TestSomething(t *testing.T) {
//	    path := stubtool.Use(t, stubtool.Double)
//	    ...
//	}
//
// This keeps the executor tests hermetic: no compiler, no shell scripts,
// identical on Linux and Windows.
package stubtool

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// ModeEnv selects the stub behaviour in the child process.
const ModeEnv = "RUNBROKER_STUB_MODE"

// Behaviours understood by RunIfRequested.
const (
	// Double reads one integer from stdin and prints twice its value plus "\n".
	Double = "double"
	// Echo prints the artifact's contents verbatim.
	Echo = "echo"
	// Syntax writes "syntax error" to stderr and exits 1.
	Syntax = "syntax"
	// StdoutFail writes "partial" to stdout and exits 2.
	StdoutFail = "stdout-fail"
	// SilentFail exits 3 without output.
	SilentFail = "silent-fail"
	// Silent exits 0 without output.
	Silent = "silent"
	// Hang never exits.
	Hang = "hang"
	// HangChild starts a grandchild in Hang mode, prints its pid, then hangs.
	HangChild = "hang-child"
	// BackgroundChild starts a grandchild in Hang mode that shares stdout and
	// stderr, prints its pid, and exits 0 at once.
	BackgroundChild = "background-child"
	// QuietChild starts a grandchild in Hang mode with no pipes attached,
	// prints its pid, and exits 0 at once.
	QuietChild = "quiet-child"
	// Flood writes FloodBytes to both stdout and stderr, interleaved, then exits 0.
	Flood = "flood"
	// StdinLen prints the number of bytes read from stdin until EOF.
	StdinLen = "stdin-len"
)

// FloodBytes is how much Flood writes to each stream; well past any pipe buffer.
const FloodBytes = 2 << 20

// Use selects mode for every tool spawned by the current test and returns
// the path to run as the external tool.
func Use(t testing.TB, mode string) string {
	t.Helper()
	t.Setenv(ModeEnv, mode)
	path, err := os.Executable()
	if err != nil {
		t.Fatalf("stubtool: locating test binary: %v", err)
	}
	return path
}

// RunIfRequested plays the stub tool and exits if ModeEnv is set.
// It returns immediately otherwise.
func RunIfRequested() {
	mode := os.Getenv(ModeEnv)
	if mode == "" {
		return
	}
	os.Exit(run(mode, os.Args[1:]))
}

func run(mode string, args []string) int {
	switch mode {
	case Double:
		var n int
		if _, err := fmt.Fscan(bufio.NewReader(os.Stdin), &n); err != nil {
			fmt.Fprintf(os.Stderr, "bad input: %v", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "%d\n", n*2)
		return 0

	case Echo:
		if len(args) != 1 {
			fmt.Fprintf(os.Stderr, "want exactly one argument, got %d", len(args))
			return 64
		}
		src, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprint(os.Stderr, err.Error())
			return 1
		}
		os.Stdout.Write(src)
		return 0

	case Syntax:
		fmt.Fprint(os.Stderr, "syntax error")
		return 1

	case StdoutFail:
		fmt.Fprint(os.Stdout, "partial")
		return 2

	case SilentFail:
		return 3

	case Silent:
		return 0

	case Hang:
		time.Sleep(time.Hour)
		return 0

	case HangChild:
		child := exec.Command(os.Args[0])
		child.Env = append(os.Environ(), ModeEnv+"="+Hang)
		if err := child.Start(); err != nil {
			fmt.Fprint(os.Stderr, err.Error())
			return 1
		}
		fmt.Fprintf(os.Stdout, "%d\n", child.Process.Pid)
		time.Sleep(time.Hour)
		return 0

	case BackgroundChild, QuietChild:
		child := exec.Command(os.Args[0])
		child.Env = append(os.Environ(), ModeEnv+"="+Hang)
		if mode == BackgroundChild {
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
		}
		if err := child.Start(); err != nil {
			fmt.Fprint(os.Stderr, err.Error())
			return 1
		}
		fmt.Fprintf(os.Stdout, "%d\n", child.Process.Pid)
		return 0

	case Flood:
		chunk := []byte(strings.Repeat("x", 4096))
		for written := 0; written < FloodBytes; written += len(chunk) {
			os.Stdout.Write(chunk)
			os.Stderr.Write(chunk)
		}
		return 0

	case StdinLen:
		n := 0
		r := bufio.NewReader(os.Stdin)
		buf := make([]byte, 32<<10)
		for {
			k, err := r.Read(buf)
			n += k
			if err != nil {
				break
			}
		}
		fmt.Fprintf(os.Stdout, "%d", n)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown stub mode %q", mode)
		return 70
	}
}
