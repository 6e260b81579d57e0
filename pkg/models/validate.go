package models

import "fmt"

// Validate checks the structural invariants a run state document must hold
// before the monitor accepts it.
func (r *RunState) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("run state missing model")
	}
	if r.Architecture == "" {
		return fmt.Errorf("run state missing architecture")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("run state has invalid status %q", r.Status)
	}
	if r.TotalQuestions < 0 {
		return fmt.Errorf("run state has negative total_questions %d", r.TotalQuestions)
	}
	if r.TotalInputTokens < 0 || r.TotalOutputTokens < 0 {
		return fmt.Errorf("run state has negative token counters")
	}
	if len(r.Results) > r.TotalQuestions && r.TotalQuestions > 0 {
		return fmt.Errorf("run state has %d results for %d questions", len(r.Results), r.TotalQuestions)
	}
	if q := r.CurrentQuestion; q != nil {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("current question: %w", err)
		}
	}
	return nil
}

// Validate checks the invariants of an in-flight question snapshot
func (q *QuestionState) Validate() error {
	if q.QuestionID == "" {
		return fmt.Errorf("question state missing question_id")
	}
	if q.Index < 1 || (q.Total > 0 && q.Index > q.Total) {
		return fmt.Errorf("question index %d out of range [1, %d]", q.Index, q.Total)
	}
	if q.InputTokens < 0 || q.OutputTokens < 0 {
		return fmt.Errorf("question state has negative token counters")
	}
	return nil
}

// Validate checks the invariants of a launcher state document
func (l *LauncherState) Validate() error {
	if l.TotalRuns < 0 || l.CompletedRuns < 0 {
		return fmt.Errorf("launcher state has negative run counters")
	}
	if l.CompletedRuns > l.TotalRuns {
		return fmt.Errorf("launcher state completed %d of %d runs", l.CompletedRuns, l.TotalRuns)
	}
	if len(l.Grid) > 0 && (l.CurrentIndex < 0 || l.CurrentIndex >= len(l.Grid)) {
		return fmt.Errorf("launcher current_index %d out of range for grid of %d", l.CurrentIndex, len(l.Grid))
	}
	return nil
}

// Validate checks the invariants of a checkpoint document
func (c *Checkpoint) Validate() error {
	if c.LastCompletedIndex < -1 {
		return fmt.Errorf("checkpoint has invalid last_completed_index %d", c.LastCompletedIndex)
	}
	if c.SavedAt.IsZero() {
		return fmt.Errorf("checkpoint missing saved_at")
	}
	return nil
}

// Validate checks that a result file carries enough to summarize
func (f *ResultFile) Validate() error {
	if f.Model == "" {
		return fmt.Errorf("result file missing model")
	}
	if f.Architecture == "" {
		return fmt.Errorf("result file missing architecture")
	}
	return nil
}
