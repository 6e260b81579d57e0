// Package writer is the producer side of the state channel. The benchmark
// process drives a narrow lifecycle API; every call serializes the full
// current state to its well-known path with an atomic temp+rename write,
// so the monitor in the other process never observes a torn document.
package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchtools/benchwatch/internal/metrics"
	"github.com/benchtools/benchwatch/internal/statefile"
	"github.com/benchtools/benchwatch/pkg/models"
)

// RunWriter owns the run_state.json document for one benchmark process.
// The lifecycle is StartRun -> (StartQuestion -> UpdateTokens* ->
// StartTests -> FinishQuestion)* -> FinishRun; calls outside that order
// return a precondition error and write nothing.
type RunWriter struct {
	paths  statefile.Paths
	logger *slog.Logger

	mu       sync.Mutex
	state    *models.RunState
	finished bool
}

// NewRunWriter creates a run writer rooted at base, creating the state
// and results directories if needed.
func NewRunWriter(base string, logger *slog.Logger) (*RunWriter, error) {
	paths := statefile.Paths{Base: base}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return &RunWriter{paths: paths, logger: logger}, nil
}

// StartRun begins a new run, replacing any previous one wholesale. This is
// the only call that resets counters and the results list. Resumed results
// from a checkpoint seed the completed count and token totals so progress
// carries over.
func (w *RunWriter) StartRun(model, architecture string, totalQuestions int, resumed []models.QuestionResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := &models.RunState{
		SessionID:      uuid.New().String(),
		Model:          model,
		Architecture:   architecture,
		Status:         models.StatusLoadingModel,
		StartedAt:      time.Now(),
		TotalQuestions: totalQuestions,
		Results:        []models.QuestionResult{},
	}

	for _, r := range resumed {
		state.Results = append(state.Results, r)
		state.TotalInputTokens += r.InputTokens
		state.TotalOutputTokens += r.OutputTokens
		state.TotalTime += r.TotalTime
	}
	state.CompletedQuestions = len(state.Results)
	state.CurrentScore = state.Score()

	w.state = state
	w.finished = false

	w.logger.Info("Run started",
		"model", model,
		"architecture", architecture,
		"total_questions", totalQuestions,
		"resumed_results", len(resumed))
	return w.write()
}

// ModelLoaded marks the model as loaded and the run as generating code
func (w *RunWriter) ModelLoaded() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}
	w.state.Status = models.StatusGeneratingCode
	return w.write()
}

// StartQuestion begins processing one question. The previous current
// question, if any, is replaced, not mutated.
func (w *RunWriter) StartQuestion(questionID, difficulty string, index, total int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}
	if index < 1 || index > total {
		return fmt.Errorf("question index %d out of range [1, %d]", index, total)
	}

	now := time.Now()
	w.state.Status = models.StatusGeneratingCode
	w.state.CurrentQuestion = &models.QuestionState{
		QuestionID: questionID,
		Difficulty: difficulty,
		Title:      questionID,
		Index:      index,
		Total:      total,
		Status:     models.StatusGeneratingCode,
		StartedAt:  &now,
	}
	return w.write()
}

// UpdateTokens adds deltas to the current question's and the run's token
// counters. Counters only ever grow; negative deltas are rejected.
func (w *RunWriter) UpdateTokens(inputDelta, outputDelta int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}
	if w.state.CurrentQuestion == nil {
		return ErrNoActiveQuestion
	}
	if inputDelta < 0 || outputDelta < 0 {
		return ErrNegativeDelta
	}

	w.state.CurrentQuestion.InputTokens += inputDelta
	w.state.CurrentQuestion.OutputTokens += outputDelta
	w.state.TotalInputTokens += inputDelta
	w.state.TotalOutputTokens += outputDelta
	return w.write()
}

// StartTests marks the current question as running its test suite
func (w *RunWriter) StartTests(totalTests int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}
	if w.state.CurrentQuestion == nil {
		return ErrNoActiveQuestion
	}

	w.state.Status = models.StatusRunningTests
	w.state.CurrentQuestion.Status = models.StatusRunningTests
	w.state.CurrentQuestion.TotalTests = totalTests
	return w.write()
}

// TestProgress updates per-test progress on the current question
func (w *RunWriter) TestProgress(currentTest, passedTests int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}
	if w.state.CurrentQuestion == nil {
		return ErrNoActiveQuestion
	}

	q := w.state.CurrentQuestion
	if currentTest > q.CurrentTest {
		q.CurrentTest = currentTest
	}
	if passedTests > q.PassedTests {
		q.PassedTests = passedTests
	}
	return w.write()
}

// FinishQuestion records the outcome of the current question, appends it
// to the run's results and clears the current-question slot.
func (w *RunWriter) FinishQuestion(passedTests, totalTests int, successRate, totalTime float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}
	q := w.state.CurrentQuestion
	if q == nil {
		return ErrNoActiveQuestion
	}

	result := models.QuestionResult{
		QuestionID:   q.QuestionID,
		Difficulty:   q.Difficulty,
		TotalTime:    totalTime,
		PassedTests:  passedTests,
		TotalTests:   totalTests,
		SuccessRate:  successRate,
		InputTokens:  q.InputTokens,
		OutputTokens: q.OutputTokens,
	}

	w.state.Results = append(w.state.Results, result)
	w.state.CompletedQuestions++
	w.state.TotalTime += totalTime
	w.state.CurrentQuestion = nil
	w.state.Status = models.StatusSavingResults
	w.state.CurrentScore = w.state.Score()

	w.logger.Debug("Question finished",
		"question_id", result.QuestionID,
		"success_rate", result.SuccessRate,
		"completed", w.state.CompletedQuestions,
		"total", w.state.TotalQuestions)
	return w.write()
}

// FinishRun freezes the run as completed (or errored). Further lifecycle
// calls fail until a new StartRun.
func (w *RunWriter) FinishRun(success bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.active(); err != nil {
		return err
	}

	if success {
		w.state.Status = models.StatusCompleted
	} else {
		w.state.Status = models.StatusError
	}
	w.state.CurrentQuestion = nil
	w.finished = true

	w.logger.Info("Run finished",
		"model", w.state.Model,
		"status", w.state.Status,
		"score", w.state.CurrentScore)
	return w.write()
}

// SetError moves the run to the error state from wherever it is
func (w *RunWriter) SetError(msg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return ErrNoActiveRun
	}

	w.state.Status = models.StatusError
	w.state.CurrentQuestion = nil
	w.finished = true

	w.logger.Error("Run errored", "model", w.state.Model, "error", msg)
	return w.write()
}

// WriteResult persists the finished run as a result file under results/,
// returning the path written.
func (w *RunWriter) WriteResult() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return "", ErrNoActiveRun
	}

	result := models.ResultFile{
		Model:         w.state.Model,
		Architecture:  w.state.Architecture,
		StartedAt:     w.state.StartedAt,
		Results:       append([]models.QuestionResult{}, w.state.Results...),
		TotalTestTime: w.state.TotalTime,
	}
	if w.state.TotalTime > 0 {
		result.TokensPerSecond = float64(w.state.TotalOutputTokens) / w.state.TotalTime
	}

	path := filepath.Join(w.paths.ResultsDir(), statefile.ResultFileName(w.state.Model, w.state.Architecture))
	if err := statefile.WriteAtomic(path, &result); err != nil {
		return "", err
	}
	metrics.RecordStateWrite("result")
	return path, nil
}

// Clear removes the run state file, leaving no current run on disk
func (w *RunWriter) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = nil
	w.finished = false
	if err := os.Remove(w.paths.RunState()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Snapshot returns a deep copy of the current run state
func (w *RunWriter) Snapshot() (models.RunState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == nil {
		return models.RunState{}, false
	}
	return copyRunState(w.state), true
}

func (w *RunWriter) active() error {
	if w.state == nil {
		return ErrNoActiveRun
	}
	if w.finished {
		return ErrRunFinished
	}
	return nil
}

// write serializes the full current state. Callers hold w.mu.
func (w *RunWriter) write() error {
	if err := statefile.WriteAtomic(w.paths.RunState(), w.state); err != nil {
		w.logger.Warn("Failed to write run state", "error", err)
		return err
	}
	metrics.RecordStateWrite("run_state")
	return nil
}

func copyRunState(s *models.RunState) models.RunState {
	out := *s
	out.Results = append([]models.QuestionResult{}, s.Results...)
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		out.CurrentQuestion = &q
	}
	return out
}
