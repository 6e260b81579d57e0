// Package stats computes difficulty aggregates and the weighted score for
// a set of question results. Pure functions, no I/O.
package stats

import "github.com/benchtools/benchwatch/pkg/models"

// DifficultyLookup resolves a question ID to its difficulty tag.
// Satisfied by dataset.Index.
type DifficultyLookup interface {
	DifficultyOf(questionID string) string
}

// Bucket holds the aggregate for one difficulty.
// Passed carries fractional credit: the sum of success rates, not a count
// of fully-passing questions.
type Bucket struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Passed     float64 `json:"passed"`
	Percentage float64 `json:"percentage"`
}

func (b *Bucket) add(r models.QuestionResult) {
	b.Total++
	if r.TotalTests > 0 {
		b.Completed++
	}
	b.Passed += r.SuccessRate
}

func (b *Bucket) finalize() {
	if b.Total > 0 {
		b.Percentage = b.Passed / float64(b.Total) * 100
	}
}

// Breakdown is the per-difficulty aggregate plus an overall bucket
type Breakdown struct {
	Easy   Bucket `json:"easy"`
	Medium Bucket `json:"medium"`
	Hard   Bucket `json:"hard"`
	Total  Bucket `json:"total"`
}

// AggregateByDifficulty groups results into difficulty buckets using the
// dataset index. A result whose question is not indexed (or carries an
// unrecognized tag) counts as medium, matching how the benchmark treats
// unclassified questions. Buckets with no results stay zeroed.
func AggregateByDifficulty(results []models.QuestionResult, index DifficultyLookup) Breakdown {
	var b Breakdown
	for _, r := range results {
		difficulty := index.DifficultyOf(r.QuestionID)
		switch difficulty {
		case models.DifficultyEasy:
			b.Easy.add(r)
		case models.DifficultyHard:
			b.Hard.add(r)
		default:
			b.Medium.add(r)
		}
		b.Total.add(r)
	}
	b.Easy.finalize()
	b.Medium.finalize()
	b.Hard.finalize()
	b.Total.finalize()
	return b
}

// WeightedScore combines the per-difficulty percentages into one score:
//
//	score = (easy% * 1 + medium% * 3 + hard% * 5) / 9
//
// The exact weights are a contract shared with downstream tooling and
// must not change.
func WeightedScore(b Breakdown) float64 {
	return (b.Easy.Percentage*1 + b.Medium.Percentage*3 + b.Hard.Percentage*5) / 9
}
