//go:build linux

package process

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sakif/runbroker/internal/executor"
	"github.com/sakif/runbroker/internal/executor/stubtool"
	"github.com/sakif/runbroker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processGone reports whether pid no longer runs. A zombie counts as gone:
// it has been killed and is only waiting for whoever inherited it to reap it.
func processGone(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	// Format: pid (comm) state ...; comm may contain spaces, so split after ')'.
	s := string(stat)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] == 'Z'
}

func TestExecute_TimeoutKillsGrandchildren(t *testing.T) {
	s := newStubSupervisor(t, stubtool.HangChild, 500*time.Millisecond)

	out := s.Execute(context.Background(), executor.Invocation{
		ArtifactPath: writeArtifact(t, "a.txt", "x"),
	})
	require.Equal(t, model.Timeout, out.Category)

	pid, err := strconv.Atoi(strings.TrimSpace(string(out.Stdout)))
	require.NoError(t, err, "stub should have printed the grandchild pid, got %q", out.Stdout)

	assert.Eventually(t, func() bool { return processGone(pid) },
		5*time.Second, 50*time.Millisecond, "grandchild %d survived the timeout", pid)
}

func TestExecute_ExitReapsBackgroundChildren(t *testing.T) {
	for _, mode := range []string{stubtool.BackgroundChild, stubtool.QuietChild} {
		t.Run(mode, func(t *testing.T) {
			s := newStubSupervisor(t, mode, 10*time.Second)

			out := s.Execute(context.Background(), executor.Invocation{
				ArtifactPath: writeArtifact(t, "a.txt", "x"),
			})
			require.Equal(t, model.Success, out.Category, "stderr: %s", out.Stderr)

			pid, err := strconv.Atoi(strings.TrimSpace(string(out.Stdout)))
			require.NoError(t, err, "stub should have printed the grandchild pid, got %q", out.Stdout)

			assert.Eventually(t, func() bool { return processGone(pid) },
				5*time.Second, 50*time.Millisecond, "background child %d outlived the run", pid)
		})
	}
}
