package monitor

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benchtools/benchwatch/internal/dataset"
	"github.com/benchtools/benchwatch/internal/statefile"
	"github.com/benchtools/benchwatch/internal/writer"
	"github.com/benchtools/benchwatch/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestManager builds a manager over a temp base with a small dataset
// index and a fast poll so tests do not depend on fsnotify delivery.
func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	base := t.TempDir()

	datasetPath := filepath.Join(base, "dataset.jsonl")
	lines := strings.Join([]string{
		`{"question_id": "q1", "difficulty": "easy"}`,
		`{"question_id": "q2", "difficulty": "medium"}`,
		`{"question_id": "q3", "difficulty": "hard"}`,
	}, "\n")
	if err := os.WriteFile(datasetPath, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	index := dataset.New(datasetPath)
	if err := index.Load(); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(base, index, Options{
		PollInterval:            25 * time.Millisecond,
		ReadRetryAttempts:       3,
		ReadRetryBackoff:        5 * time.Millisecond,
		ResultsReloadsPerSecond: 1000, // Tests write fast; don't throttle
	}, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr, base
}

func waitRunState(t *testing.T, ch <-chan models.RunState, match func(models.RunState) bool) models.RunState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if match(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for run state callback")
		}
	}
}

func TestRunStateDispatch(t *testing.T) {
	mgr, base := newTestManager(t)

	ch := make(chan models.RunState, 32)
	mgr.OnRunStateChange(func(st models.RunState) { ch <- st })

	if err := mgr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	w, err := writer.NewRunWriter(base, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.StartRun("m", "a", 3, nil); err != nil {
		t.Fatal(err)
	}

	st := waitRunState(t, ch, func(st models.RunState) bool {
		return st.Status == models.StatusLoadingModel
	})
	if st.Model != "m" || st.TotalQuestions != 3 {
		t.Errorf("dispatched state = %+v", st)
	}

	// Drive the run forward; coalescing may skip intermediate values but
	// the final one must arrive, and the getter must agree.
	if err := w.StartQuestion("q1", models.DifficultyEasy, 1, 3); err != nil {
		t.Fatal(err)
	}
	if err := w.UpdateTokens(10, 20); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishQuestion(2, 2, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.FinishRun(true); err != nil {
		t.Fatal(err)
	}

	final := waitRunState(t, ch, func(st models.RunState) bool {
		return st.Status == models.StatusCompleted
	})
	if len(final.Results) != 1 {
		t.Errorf("final results length = %d, want 1", len(final.Results))
	}

	cached, ok := mgr.RunState()
	if !ok || cached.Status != models.StatusCompleted {
		t.Errorf("cached state = %+v, ok=%v", cached, ok)
	}
}

func TestUnchangedContentNoCallback(t *testing.T) {
	mgr, base := newTestManager(t)
	paths := statefile.Paths{Base: base}

	ch := make(chan models.RunState, 32)
	mgr.OnRunStateChange(func(st models.RunState) { ch <- st })

	st := models.RunState{
		Model:          "m",
		Architecture:   "a",
		Status:         models.StatusGeneratingCode,
		StartedAt:      time.Now().UTC(),
		TotalQuestions: 2,
		Results:        []models.QuestionResult{},
	}
	if err := statefile.WriteAtomic(paths.RunState(), &st); err != nil {
		t.Fatal(err)
	}

	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}
	waitRunState(t, ch, func(got models.RunState) bool { return got.Model == "m" })

	// Rewrite the identical document. Watch events and poll ticks both
	// fire, but the parsed value is equal, so no callback may follow.
	if err := statefile.WriteAtomic(paths.RunState(), &st); err != nil {
		t.Fatal(err)
	}
	mgr.PollNow()

	select {
	case got := <-ch:
		t.Errorf("unexpected callback for unchanged content: %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSingleFieldChangeSingleCallback(t *testing.T) {
	mgr, base := newTestManager(t)
	paths := statefile.Paths{Base: base}

	ch := make(chan models.RunState, 32)
	mgr.OnRunStateChange(func(st models.RunState) { ch <- st })

	st := models.RunState{
		Model:          "m",
		Architecture:   "a",
		Status:         models.StatusGeneratingCode,
		StartedAt:      time.Now().UTC(),
		TotalQuestions: 2,
		Results:        []models.QuestionResult{},
	}
	if err := statefile.WriteAtomic(paths.RunState(), &st); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}
	waitRunState(t, ch, func(got models.RunState) bool { return got.Model == "m" })

	st.TotalInputTokens++
	if err := statefile.WriteAtomic(paths.RunState(), &st); err != nil {
		t.Fatal(err)
	}

	got := waitRunState(t, ch, func(got models.RunState) bool { return got.TotalInputTokens == 1 })
	if got.TotalInputTokens != 1 {
		t.Errorf("dispatched tokens = %d, want 1", got.TotalInputTokens)
	}

	select {
	case extra := <-ch:
		t.Errorf("second callback for a single change: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMalformedDocumentKeepsLastGood(t *testing.T) {
	mgr, base := newTestManager(t)
	paths := statefile.Paths{Base: base}

	stateCh := make(chan models.RunState, 32)
	errCh := make(chan error, 32)
	mgr.OnRunStateChange(func(st models.RunState) { stateCh <- st })
	mgr.OnError(func(kind Kind, err error) {
		if kind == KindRunState {
			errCh <- err
		}
	})

	good := models.RunState{
		Model:          "m",
		Architecture:   "a",
		Status:         models.StatusGeneratingCode,
		StartedAt:      time.Now().UTC(),
		TotalQuestions: 1,
		Results:        []models.QuestionResult{},
	}
	if err := statefile.WriteAtomic(paths.RunState(), &good); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}
	waitRunState(t, stateCh, func(got models.RunState) bool { return got.Model == "m" })

	// Structurally broken JSON.
	if err := os.WriteFile(paths.RunState(), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}

	cached, ok := mgr.RunState()
	if !ok || cached.Model != "m" || cached.Status != models.StatusGeneratingCode {
		t.Errorf("last-known-good not retained: %+v, ok=%v", cached, ok)
	}

	// Parses but fails validation: status missing.
	if err := os.WriteFile(paths.RunState(), []byte(`{"model": "m", "architecture": "a"}`), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for validation error callback")
	}
	if cached, _ := mgr.RunState(); cached.Status != models.StatusGeneratingCode {
		t.Errorf("invalid document overwrote the cache: %+v", cached)
	}

	// Recovery: a good document resumes data callbacks.
	good.TotalInputTokens = 5
	if err := statefile.WriteAtomic(paths.RunState(), &good); err != nil {
		t.Fatal(err)
	}
	waitRunState(t, stateCh, func(got models.RunState) bool { return got.TotalInputTokens == 5 })
}

func TestLauncherAndCheckpointDispatch(t *testing.T) {
	mgr, base := newTestManager(t)

	launcherCh := make(chan models.LauncherState, 32)
	checkpointCh := make(chan models.Checkpoint, 32)
	mgr.OnLauncherStateChange(func(st models.LauncherState) { launcherCh <- st })
	mgr.OnCheckpointChange(func(cp models.Checkpoint) { checkpointCh <- cp })

	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}

	lw, err := writer.NewLauncherWriter(base, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := lw.StartGrid([]models.GridItem{
		{Model: "m1", Architecture: "a"},
		{Model: "m2", Architecture: "a"},
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case st := <-launcherCh:
		if st.TotalRuns != 2 {
			t.Errorf("launcher state = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for launcher callback")
	}

	cw, err := writer.NewCheckpointWriter(base, 1, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer cw.Close()
	if err := cw.MarkItemComplete(0, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case cp := <-checkpointCh:
		if cp.LastCompletedIndex != 0 {
			t.Errorf("checkpoint = %+v", cp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for checkpoint callback")
	}
	if !mgr.HasCheckpoint() {
		t.Error("HasCheckpoint() = false after checkpoint dispatch")
	}

	// Quiesce the reconcile loop so the clear cannot race an in-flight
	// read of the old file.
	mgr.Stop()
	if err := mgr.ClearCheckpoint(); err != nil {
		t.Fatalf("ClearCheckpoint failed: %v", err)
	}
	if mgr.HasCheckpoint() {
		t.Error("HasCheckpoint() = true after ClearCheckpoint")
	}
	// Removing an already-removed checkpoint is fine.
	if err := mgr.ClearCheckpoint(); err != nil {
		t.Errorf("second ClearCheckpoint failed: %v", err)
	}
}

func TestResultsDispatchFullList(t *testing.T) {
	mgr, base := newTestManager(t)
	paths := statefile.Paths{Base: base}

	ch := make(chan []models.CompletedRunSummary, 32)
	mgr.OnResultsChange(func(s []models.CompletedRunSummary) { ch <- s })

	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}

	rf := models.ResultFile{
		Model:        "m1",
		Architecture: "a",
		Results: []models.QuestionResult{
			{QuestionID: "q1", SuccessRate: 1, TotalTests: 2, PassedTests: 2},
		},
	}
	path1 := filepath.Join(paths.ResultsDir(), statefile.ResultFileName("m1", "a"))
	if err := statefile.WriteAtomic(path1, &rf); err != nil {
		t.Fatal(err)
	}

	waitResults := func(want int) []models.CompletedRunSummary {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case s := <-ch:
				if len(s) == want {
					return s
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %d summaries", want)
			}
		}
	}

	first := waitResults(1)
	if first[0].Model != "m1" || first[0].TotalQuestions != 1 {
		t.Errorf("summary = %+v", first[0])
	}
	// q1 is easy in the test dataset: full easy credit and nothing else.
	if first[0].EasyPercentage != 100 {
		t.Errorf("easy percentage = %f, want 100", first[0].EasyPercentage)
	}

	rf2 := models.ResultFile{
		Model:        "m2",
		Architecture: "a",
		Results: []models.QuestionResult{
			{QuestionID: "q3", SuccessRate: 0.5, TotalTests: 2, PassedTests: 1},
		},
	}
	path2 := filepath.Join(paths.ResultsDir(), statefile.ResultFileName("m2", "a"))
	if err := statefile.WriteAtomic(path2, &rf2); err != nil {
		t.Fatal(err)
	}

	both := waitResults(2)
	if both[0].ResultFile > both[1].ResultFile {
		t.Error("summaries not ordered by file name")
	}

	// Removal shrinks the list.
	if err := os.Remove(path2); err != nil {
		t.Fatal(err)
	}
	waitResults(1)
}

func TestCallbackRegistrationOrder(t *testing.T) {
	mgr, base := newTestManager(t)

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		mgr.OnRunStateChange(func(models.RunState) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}

	w, err := writer.NewRunWriter(base, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.StartRun("m", "a", 1, nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for callbacks")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order[:3] {
		if got != i+1 {
			t.Fatalf("callback order = %v, want registration order", order)
		}
	}
}

func TestPollNowWithoutTicker(t *testing.T) {
	base := t.TempDir()
	datasetPath := filepath.Join(base, "dataset.jsonl")
	if err := os.WriteFile(datasetPath, []byte(`{"question_id": "q1", "difficulty": "easy"}`), 0644); err != nil {
		t.Fatal(err)
	}
	index := dataset.New(datasetPath)
	if err := index.Load(); err != nil {
		t.Fatal(err)
	}

	// An hour-long poll interval: only the watch and PollNow can deliver.
	mgr, err := New(base, index, Options{
		PollInterval:            time.Hour,
		ResultsReloadsPerSecond: 1000,
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Stop)

	ch := make(chan models.RunState, 32)
	mgr.OnRunStateChange(func(st models.RunState) { ch <- st })
	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}

	w, err := writer.NewRunWriter(base, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.StartRun("m", "a", 1, nil); err != nil {
		t.Fatal(err)
	}
	mgr.PollNow()

	select {
	case st := <-ch:
		if st.Model != "m" {
			t.Errorf("state = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback after PollNow")
	}
}

func TestStopIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}
	mgr.Stop()
	mgr.Stop()
}
