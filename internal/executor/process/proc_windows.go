//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}

// killTree terminates the tool. Windows has no process groups in the POSIX
// sense; descendants are not reached.
func killTree(p *os.Process) error {
	return p.Kill()
}

func exitSignal(*os.ProcessState) string {
	return ""
}
