package writer

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchtools/benchwatch/internal/metrics"
	"github.com/benchtools/benchwatch/internal/statefile"
	"github.com/benchtools/benchwatch/pkg/models"
)

// CheckpointWriter persists the launcher's resumption marker. Saves for
// routine progress go through a background writer so the launcher loop is
// never blocked on disk; the final save on Close is synchronous.
type CheckpointWriter struct {
	paths    statefile.Paths
	logger   *slog.Logger
	interval int // Save every N completed items

	mu         sync.Mutex
	checkpoint *models.Checkpoint
	counter    int // Items since last save

	writeChan  chan *models.Checkpoint
	stopWriter chan struct{}
	writeWg    sync.WaitGroup
	writeMu    sync.Mutex // Protects concurrent disk writes

	errMu     sync.Mutex
	writerErr error

	closeOnce sync.Once
}

// NewCheckpointWriter creates a checkpoint writer rooted at base.
// interval controls how many completed grid items may pass between saves;
// values below 1 save on every completion.
func NewCheckpointWriter(base string, interval int, logger *slog.Logger) (*CheckpointWriter, error) {
	paths := statefile.Paths{Base: base}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	if interval < 1 {
		interval = 1
	}

	w := &CheckpointWriter{
		paths:    paths,
		logger:   logger,
		interval: interval,
		checkpoint: &models.Checkpoint{
			SessionID:          uuid.New().String(),
			LastCompletedIndex: -1,
			SavedAt:            time.Now(),
		},
		writeChan:  make(chan *models.Checkpoint, 10),
		stopWriter: make(chan struct{}),
	}
	w.startAsyncWriter()
	return w, nil
}

func (w *CheckpointWriter) startAsyncWriter() {
	w.writeWg.Add(1)
	go func() {
		defer w.writeWg.Done()
		for {
			select {
			case cp := <-w.writeChan:
				if err := w.writeToDisk(cp); err != nil {
					w.errMu.Lock()
					w.writerErr = err
					w.errMu.Unlock()
					w.logger.Error("Failed to write checkpoint", "error", err)
				}
			case <-w.stopWriter:
				// Drain remaining writes before stopping
				for len(w.writeChan) > 0 {
					cp := <-w.writeChan
					if err := w.writeToDisk(cp); err != nil {
						w.logger.Error("Failed to write checkpoint during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

func (w *CheckpointWriter) writeToDisk(cp *models.Checkpoint) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := statefile.WriteAtomic(w.paths.Checkpoint(), cp); err != nil {
		return err
	}
	metrics.RecordStateWrite("checkpoint")
	w.logger.Debug("Checkpoint saved", "last_completed_index", cp.LastCompletedIndex)
	return nil
}

// MarkItemComplete records a finished grid item. The checkpoint is queued
// for an async write once every interval completions.
func (w *CheckpointWriter) MarkItemComplete(index int, lastRun *models.RunState) error {
	w.mu.Lock()
	w.checkpoint.LastCompletedIndex = index
	w.checkpoint.SavedAt = time.Now()
	if lastRun != nil {
		run := copyRunState(lastRun)
		w.checkpoint.LastRunState = &run
	}
	w.counter++
	shouldSave := w.counter >= w.interval
	if shouldSave {
		w.counter = 0
	}
	cp := w.copyCheckpoint()
	w.mu.Unlock()

	if !shouldSave {
		return nil
	}

	select {
	case w.writeChan <- cp:
		return nil
	default:
		// Buffer full, write synchronously
		w.logger.Warn("Checkpoint write buffer full, writing synchronously")
		return w.writeToDisk(cp)
	}
}

// SaveSync writes the current checkpoint immediately
func (w *CheckpointWriter) SaveSync() error {
	w.mu.Lock()
	w.checkpoint.SavedAt = time.Now()
	cp := w.copyCheckpoint()
	w.mu.Unlock()

	return w.writeToDisk(cp)
}

// copyCheckpoint deep-copies the checkpoint. Callers hold w.mu.
func (w *CheckpointWriter) copyCheckpoint() *models.Checkpoint {
	cp := *w.checkpoint
	if w.checkpoint.LastRunState != nil {
		run := copyRunState(w.checkpoint.LastRunState)
		cp.LastRunState = &run
	}
	return &cp
}

// Clear removes the checkpoint file
func (w *CheckpointWriter) Clear() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := os.Remove(w.paths.Checkpoint()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close stops the async writer, drains pending saves and reports any
// write error seen. Idempotent.
func (w *CheckpointWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stopWriter)
		w.writeWg.Wait()
	})

	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.writerErr
}

// LoadCheckpoint reads the checkpoint file under base, if present
func LoadCheckpoint(base string, logger *slog.Logger) (*models.Checkpoint, error) {
	paths := statefile.Paths{Base: base}

	var cp models.Checkpoint
	if err := statefile.ReadJSON(paths.Checkpoint(), &cp); err != nil {
		return nil, err
	}

	logger.Info("Checkpoint loaded",
		"session_id", cp.SessionID,
		"last_completed_index", cp.LastCompletedIndex)
	return &cp, nil
}
