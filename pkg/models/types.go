package models

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle phase of a benchmark run
type RunStatus string

const (
	StatusIdle           RunStatus = "idle"
	StatusLoadingModel   RunStatus = "loading_model"
	StatusGeneratingCode RunStatus = "generating_code"
	StatusRunningTests   RunStatus = "running_tests"
	StatusSavingResults  RunStatus = "saving_results"
	StatusCompleted      RunStatus = "completed"
	StatusError          RunStatus = "error"
)

// Valid reports whether s is one of the known statuses
func (s RunStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusLoadingModel, StatusGeneratingCode,
		StatusRunningTests, StatusSavingResults, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends the run. A terminal run state is only
// superseded by a whole new run.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Difficulty tags used by the dataset and the statistics engine
const (
	DifficultyEasy    = "easy"
	DifficultyMedium  = "medium"
	DifficultyHard    = "hard"
	DifficultyUnknown = "unknown"
)

// DifficultyWeight returns the scoring weight for a difficulty tag.
// Unknown tags weigh the same as easy.
func DifficultyWeight(difficulty string) float64 {
	switch difficulty {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 3
	case DifficultyHard:
		return 5
	}
	return 1
}

// QuestionResult is the immutable outcome of a single finished question
type QuestionResult struct {
	QuestionID         string  `json:"question_id"`
	Difficulty         string  `json:"difficulty"`
	TotalTime          float64 `json:"total_time"`
	PassedTests        int     `json:"passed_tests"`
	TotalTests         int     `json:"total_tests"`
	SuccessRate        float64 `json:"success_rate"`
	CodeGenerationTime float64 `json:"code_generation_time,omitempty"`
	InputTokens        int     `json:"input_tokens"`
	OutputTokens       int     `json:"output_tokens"`
	Error              string  `json:"error,omitempty"`
}

// QuestionState tracks the question currently being processed.
// Token counters only ever grow; a new question replaces the whole value.
type QuestionState struct {
	QuestionID   string     `json:"question_id"`
	Difficulty   string     `json:"difficulty"`
	Title        string     `json:"title,omitempty"`
	Index        int        `json:"index"` // 1-based
	Total        int        `json:"total"`
	Status       RunStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	CurrentTest  int        `json:"current_test"`
	TotalTests   int        `json:"total_tests"`
	PassedTests  int        `json:"passed_tests"`
}

// RunState is the full snapshot of one benchmark execution for a single
// (model, architecture) pair. The writer serializes the entire value on
// every lifecycle call; readers never see a partial update.
type RunState struct {
	SessionID    string    `json:"session_id,omitempty"`
	Model        string    `json:"model"`
	Architecture string    `json:"architecture"`
	Status       RunStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`

	TotalQuestions     int `json:"total_questions"`
	CompletedQuestions int `json:"completed_questions"`

	CurrentQuestion *QuestionState `json:"current_question,omitempty"`

	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalTime         float64 `json:"total_time"`
	CurrentScore      float64 `json:"current_score"`

	// Append-only within one run; carried over on resume.
	Results []QuestionResult `json:"results"`
}

// Score computes the weighted score over the accumulated results.
// Each result contributes its success rate weighted by difficulty
// (easy=1, medium=3, hard=5), normalized to 0-100.
func (r *RunState) Score() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	var weighted, total float64
	for _, res := range r.Results {
		w := DifficultyWeight(res.Difficulty)
		weighted += res.SuccessRate * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total * 100
}

// GridItem is one (model, architecture) cell in the launcher's grid
type GridItem struct {
	Model        string   `json:"model"`
	Architecture string   `json:"architecture"`
	Completed    bool     `json:"completed"`
	ResultFile   string   `json:"result_file,omitempty"`
	Score        *float64 `json:"score,omitempty"`
}

// LauncherState is the outer loop over the grid of runs
type LauncherState struct {
	Grid          []GridItem `json:"grid"`
	TotalRuns     int        `json:"total_runs"`
	CompletedRuns int        `json:"completed_runs"`
	CurrentIndex  int        `json:"current_index"`
	StartedAt     time.Time  `json:"started_at"`

	CurrentModel        string `json:"current_model,omitempty"`
	CurrentArchitecture string `json:"current_architecture,omitempty"`
}

// CurrentItem returns the grid item at CurrentIndex, or nil if the index
// is out of range.
func (l *LauncherState) CurrentItem() *GridItem {
	if l.CurrentIndex < 0 || l.CurrentIndex >= len(l.Grid) {
		return nil
	}
	return &l.Grid[l.CurrentIndex]
}

// Checkpoint is the resumption marker the launcher writes periodically so
// a crashed session can pick up at the next grid cell.
type Checkpoint struct {
	SessionID          string    `json:"session_id"`
	LastCompletedIndex int       `json:"last_completed_index"`
	SavedAt            time.Time `json:"saved_at"`

	// Optional snapshot used to seed StartRun on resume.
	LastRunState *RunState `json:"last_run_state,omitempty"`
}

// ResultFile is the on-disk shape of one completed run under results/
type ResultFile struct {
	Model           string           `json:"model"`
	Architecture    string           `json:"architecture"`
	StartedAt       time.Time        `json:"started_at,omitempty"`
	Results         []QuestionResult `json:"results"`
	TotalTestTime   float64          `json:"total_test_time,omitempty"`
	TokensPerSecond float64          `json:"tokens_per_second,omitempty"`
}

// CompletedRunSummary is the display-ready aggregate of one finished run.
// Produced once from a result file plus the difficulty breakdown; never
// mutated afterwards.
type CompletedRunSummary struct {
	Model        string `json:"model"`
	Architecture string `json:"architecture"`

	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	Score             float64 `json:"score"`
	TotalQuestions    int     `json:"total_questions"`

	StartedAt   time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ResultFile  string     `json:"result_file,omitempty"`

	TotalTime       float64 `json:"total_time"`
	TokensPerSecond float64 `json:"tokens_per_second"`

	EasyPercentage   float64 `json:"easy_percentage"`
	MediumPercentage float64 `json:"medium_percentage"`
	HardPercentage   float64 `json:"hard_percentage"`
	TotalPercentage  float64 `json:"total_percentage"`

	// Passed counters carry fractional credit (sum of success rates),
	// not boolean pass counts.
	EasyTotal    int     `json:"easy_total"`
	EasyPassed   float64 `json:"easy_passed"`
	MediumTotal  int     `json:"medium_total"`
	MediumPassed float64 `json:"medium_passed"`
	HardTotal    int     `json:"hard_total"`
	HardPassed   float64 `json:"hard_passed"`
	TotalPassed  float64 `json:"total_passed"`
}

// Key uniquely identifies a summary across repeated runs of the same
// model/architecture pair.
func (s *CompletedRunSummary) Key() string {
	return fmt.Sprintf("%s|%s|%d", s.Model, s.Architecture, s.StartedAt.Unix())
}
