package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/sakif/runbroker/internal/apperror"
)

// ToolName returns the external tool's file name for the host OS.
func ToolName(goos string) string {
	if goos == "windows" {
		return "app.exe"
	}
	return "app"
}

// Tool is the resolved external compiler/interpreter.
//
// It is resolved once at startup and never re-evaluated per request.
// The invocation convention is fixed: `<Path> <artifact path>`, built as an
// argument vector so no shell ever parses the path.
type Tool struct {
	Path string
}

// ResolveTool locates the external tool.
//
// If override is set it is used as-is; otherwise the OS-specific name is
// looked up inside dir. A missing or non-executable binary is a startup-fatal
// apperror.ErrNotFound.
func ResolveTool(dir, override string) (Tool, error) {
	path := override
	if path == "" {
		path = filepath.Join(dir, ToolName(runtime.GOOS))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Tool{}, fmt.Errorf("process: resolving tool path %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Tool{}, apperror.NotFound("external tool", abs)
	}
	if info.IsDir() {
		return Tool{}, apperror.NotFound("external tool", abs)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return Tool{}, fmt.Errorf("process: external tool %s is not executable", abs)
	}

	return Tool{Path: abs}, nil
}

// command builds the argument-vector invocation for one artifact.
func (t Tool) command(artifactPath string) *exec.Cmd {
	return exec.Command(t.Path, artifactPath)
}
