package writer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benchtools/benchwatch/internal/metrics"
	"github.com/benchtools/benchwatch/internal/statefile"
	"github.com/benchtools/benchwatch/pkg/models"
)

// LauncherWriter owns launcher_state.json: the outer loop over the grid
// of (model, architecture) combinations. It operates independently of the
// per-run writer and uses the same atomic write discipline.
type LauncherWriter struct {
	paths  statefile.Paths
	logger *slog.Logger

	mu    sync.Mutex
	state *models.LauncherState
}

// NewLauncherWriter creates a launcher writer rooted at base
func NewLauncherWriter(base string, logger *slog.Logger) (*LauncherWriter, error) {
	paths := statefile.Paths{Base: base}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return &LauncherWriter{paths: paths, logger: logger}, nil
}

// StartGrid begins a new launcher session over the given grid
func (w *LauncherWriter) StartGrid(items []models.GridItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = &models.LauncherState{
		Grid:      append([]models.GridItem{}, items...),
		TotalRuns: len(items),
		StartedAt: time.Now(),
	}

	w.logger.Info("Launcher grid started", "total_runs", len(items))
	return w.write()
}

// StartItem marks the grid item at index as the one currently running
func (w *LauncherWriter) StartItem(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return ErrNoGrid
	}
	if index < 0 || index >= len(w.state.Grid) {
		return fmt.Errorf("grid index %d out of range for grid of %d", index, len(w.state.Grid))
	}

	item := &w.state.Grid[index]
	w.state.CurrentIndex = index
	w.state.CurrentModel = item.Model
	w.state.CurrentArchitecture = item.Architecture

	w.logger.Info("Grid item started",
		"index", index,
		"model", item.Model,
		"architecture", item.Architecture)
	return w.write()
}

// FinishItem marks the grid item at index as completed with its result
// file and score.
func (w *LauncherWriter) FinishItem(index int, resultFile string, score float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return ErrNoGrid
	}
	if index < 0 || index >= len(w.state.Grid) {
		return fmt.Errorf("grid index %d out of range for grid of %d", index, len(w.state.Grid))
	}

	item := &w.state.Grid[index]
	if !item.Completed {
		item.Completed = true
		w.state.CompletedRuns++
	}
	item.ResultFile = resultFile
	s := score
	item.Score = &s

	w.logger.Info("Grid item finished",
		"index", index,
		"model", item.Model,
		"score", score,
		"completed_runs", w.state.CompletedRuns)
	return w.write()
}

// Snapshot returns a deep copy of the current launcher state
func (w *LauncherWriter) Snapshot() (models.LauncherState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return models.LauncherState{}, false
	}
	out := *w.state
	out.Grid = append([]models.GridItem{}, w.state.Grid...)
	return out, true
}

func (w *LauncherWriter) write() error {
	if err := statefile.WriteAtomic(w.paths.LauncherState(), w.state); err != nil {
		w.logger.Warn("Failed to write launcher state", "error", err)
		return err
	}
	metrics.RecordStateWrite("launcher_state")
	return nil
}
