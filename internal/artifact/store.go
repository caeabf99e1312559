// Package artifact owns the sandbox root directory and the per-request source
// files written into it.
//
// OWNERSHIP RULES:
//   - The Store is the only component that creates or deletes artifacts.
//   - The execution supervisor only reads an artifact's Path.
//   - Every artifact returned by Write must be passed to Remove exactly once,
//     on every completion path. Remove never fails from the caller's view:
//     a deletion error is logged and counted, never returned.
//
// FILENAMES:
// An artifact is named "<request id>.txt". Because request IDs are unique,
// two live artifacts never collide, and O_EXCL turns any violation of that
// assumption into a write error instead of a silent overwrite.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sakif/runbroker/internal/apperror"
	"github.com/sakif/runbroker/internal/metrics"
	"github.com/sakif/runbroker/internal/model"
)

// Extension is appended to the request ID to form the artifact filename.
const Extension = ".txt"

// Store writes and removes artifacts under a single root directory.
type Store struct {
	root   string
	logger *slog.Logger
	live   sync.Map // path → struct{}, artifacts counted in ArtifactsLive
}

// New initialises the sandbox root and returns a Store bound to it.
//
// Creation is idempotent (os.MkdirAll). A root that cannot be created or
// written to is a startup-fatal condition; the error is meant for main,
// never for a request.
func New(root string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolving root %q: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating root %s: %w", abs, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("artifact: inspecting root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact: root %s is not a directory", abs)
	}

	// Probe once so a read-only mount fails at startup rather than on the
	// first request.
	probe, err := os.CreateTemp(abs, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("artifact: root %s is not writable: %w", abs, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute sandbox root path.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns where the artifact for id lives (or would live).
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.root, id+Extension)
}

// Write persists sourceText as the artifact for id.
//
// The text is written byte-for-byte. Go strings are already UTF-8, so
// non-Latin scripts (Bengali keywords, for example) reach the external tool
// exactly as submitted. Any failure is returned as an apperror.ErrSystem and
// leaves no partial file behind.
func (s *Store) Write(id, sourceText string) (*model.Artifact, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, apperror.System("writing artifact", fmt.Errorf("invalid artifact id %q", id))
	}

	path := s.PathFor(id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, apperror.System("writing artifact", err)
	}

	if _, err := f.WriteString(sourceText); err != nil {
		f.Close()
		os.Remove(path)
		return nil, apperror.System("writing artifact", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, apperror.System("writing artifact", err)
	}

	s.live.Store(path, struct{}{})
	metrics.ArtifactsLive.Inc()

	return &model.Artifact{
		ID:        id,
		Path:      path,
		CreatedAt: time.Now(),
	}, nil
}

// Remove deletes the artifact. Failures are logged and swallowed so they can
// never replace the request's real result.
//
// ArtifactsLive drops once per artifact, and only when the file is really
// gone: a failed delete leaves it counted, a repeated Remove is a no-op for
// the gauge.
func (s *Store) Remove(a *model.Artifact) {
	if a == nil {
		return
	}

	err := os.Remove(a.Path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		if _, counted := s.live.LoadAndDelete(a.Path); counted {
			metrics.ArtifactsLive.Dec()
		}
	}
	if err != nil {
		metrics.ArtifactCleanupFailuresTotal.Inc()
		s.logger.Error("failed to remove artifact",
			slog.String("id", a.ID),
			slog.String("path", a.Path),
			slog.String("error", err.Error()),
		)
	}
}
