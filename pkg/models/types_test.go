package models

import (
	"testing"
	"time"
)

func TestRunStatusValid(t *testing.T) {
	valid := []RunStatus{
		StatusIdle, StatusLoadingModel, StatusGeneratingCode,
		StatusRunningTests, StatusSavingResults, StatusCompleted, StatusError,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if RunStatus("finished").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusError.Terminal() {
		t.Error("completed and error must be terminal")
	}
	for _, s := range []RunStatus{StatusIdle, StatusLoadingModel, StatusGeneratingCode, StatusRunningTests, StatusSavingResults} {
		if s.Terminal() {
			t.Errorf("%q must not be terminal", s)
		}
	}
}

func TestRunStateScore(t *testing.T) {
	tests := []struct {
		name    string
		results []QuestionResult
		want    float64
	}{
		{
			name:    "no results",
			results: nil,
			want:    0,
		},
		{
			name: "all passed",
			results: []QuestionResult{
				{Difficulty: DifficultyEasy, SuccessRate: 1},
				{Difficulty: DifficultyMedium, SuccessRate: 1},
				{Difficulty: DifficultyHard, SuccessRate: 1},
			},
			want: 100,
		},
		{
			name: "hard counts five times easy",
			results: []QuestionResult{
				{Difficulty: DifficultyEasy, SuccessRate: 0},
				{Difficulty: DifficultyHard, SuccessRate: 1},
			},
			want: 5.0 / 6.0 * 100,
		},
		{
			name: "unknown difficulty weighs one",
			results: []QuestionResult{
				{Difficulty: "mystery", SuccessRate: 1},
				{Difficulty: DifficultyEasy, SuccessRate: 0},
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RunState{Results: tt.results}
			got := r.Score()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRunStateValidate(t *testing.T) {
	base := func() RunState {
		return RunState{
			Model:          "m",
			Architecture:   "a",
			Status:         StatusGeneratingCode,
			TotalQuestions: 5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*RunState)
		wantErr bool
	}{
		{"valid", func(r *RunState) {}, false},
		{"missing model", func(r *RunState) { r.Model = "" }, true},
		{"missing architecture", func(r *RunState) { r.Architecture = "" }, true},
		{"bad status", func(r *RunState) { r.Status = "nope" }, true},
		{"negative tokens", func(r *RunState) { r.TotalInputTokens = -1 }, true},
		{
			"question index out of range",
			func(r *RunState) {
				r.CurrentQuestion = &QuestionState{QuestionID: "q", Index: 6, Total: 5}
			},
			true,
		},
		{
			"question index zero",
			func(r *RunState) {
				r.CurrentQuestion = &QuestionState{QuestionID: "q", Index: 0, Total: 5}
			},
			true,
		},
		{
			"valid current question",
			func(r *RunState) {
				r.CurrentQuestion = &QuestionState{QuestionID: "q", Index: 1, Total: 5}
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLauncherStateCurrentItem(t *testing.T) {
	l := LauncherState{
		Grid: []GridItem{
			{Model: "m1", Architecture: "a"},
			{Model: "m2", Architecture: "a"},
		},
		CurrentIndex: 1,
	}
	item := l.CurrentItem()
	if item == nil || item.Model != "m2" {
		t.Fatalf("CurrentItem() = %+v, want m2", item)
	}

	l.CurrentIndex = 2
	if l.CurrentItem() != nil {
		t.Error("expected nil item for out-of-range index")
	}
}

func TestCompletedRunSummaryKey(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := CompletedRunSummary{Model: "m", Architecture: "x", StartedAt: started}
	b := CompletedRunSummary{Model: "m", Architecture: "x", StartedAt: started.Add(time.Hour)}
	c := CompletedRunSummary{Model: "m", Architecture: "x", StartedAt: started}

	if a.Key() == b.Key() {
		t.Error("runs started at different times must have different keys")
	}
	if a.Key() != c.Key() {
		t.Error("identical runs must share a key")
	}
}
