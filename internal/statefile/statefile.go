// Package statefile defines the on-disk layout shared by the benchmark
// writer and the monitor, and the atomic write / retried read primitives
// that make the filesystem a safe channel between the two processes.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benchtools/benchwatch/internal/metrics"
)

const (
	StateDirName      = ".tui_state"
	RunStateFile      = "run_state.json"
	LauncherStateFile = "launcher_state.json"
	CheckpointFile    = "checkpoint.json"
	ResultsDirName    = "results"
)

// Paths resolves the well-known state file locations under a base directory
type Paths struct {
	Base string
}

func (p Paths) StateDir() string {
	return filepath.Join(p.Base, StateDirName)
}

func (p Paths) ResultsDir() string {
	return filepath.Join(p.Base, ResultsDirName)
}

func (p Paths) RunState() string {
	return filepath.Join(p.StateDir(), RunStateFile)
}

func (p Paths) LauncherState() string {
	return filepath.Join(p.StateDir(), LauncherStateFile)
}

func (p Paths) Checkpoint() string {
	return filepath.Join(p.StateDir(), CheckpointFile)
}

// EnsureDirs creates the state and results directories if missing
func (p Paths) EnsureDirs() error {
	if err := os.MkdirAll(p.StateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.MkdirAll(p.ResultsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	return nil
}

// SafeName sanitizes a model or architecture name for use in a filename
func SafeName(s string) string {
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

// ResultFileName returns the conventional name for a completed run's
// result file.
func ResultFileName(model, architecture string) string {
	return fmt.Sprintf("%s_%s.json", SafeName(model), SafeName(architecture))
}

// WriteAtomic marshals v and writes it to path via a temporary file in the
// same directory followed by a rename. A concurrent reader observes either
// the complete previous document or the complete new one, never a partial
// write. This is the only consistency mechanism between the writer and the
// monitor; there is no cross-process locking.
func WriteAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// ReadJSON reads and unmarshals path into v. A missing file is returned
// as-is (os.IsNotExist) so callers can treat it as "no state yet".
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadJSONRetry reads path with bounded retries on I/O errors, covering
// the window where a rename can race an open. Parse failures are not
// retried; the document is complete, just invalid. A missing file fails
// immediately for the same reason.
func ReadJSONRetry(path string, v any, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			metrics.RecordReadRetry()
			time.Sleep(backoff)
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				return readErr
			}
			err = readErr
			continue
		}
		if parseErr := json.Unmarshal(data, v); parseErr != nil {
			return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), parseErr)
		}
		return nil
	}
	return fmt.Errorf("failed to read %s after %d attempts: %w", filepath.Base(path), attempts, err)
}
