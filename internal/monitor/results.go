package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/benchtools/benchwatch/internal/statefile"
	"github.com/benchtools/benchwatch/internal/stats"
	"github.com/benchtools/benchwatch/pkg/models"
)

// LoadSummaries enumerates the result files in resultsDir and converts
// each into a CompletedRunSummary via the statistics engine. Files that
// fail to parse are skipped with a warning; one broken file must not hide
// the rest of the table. The returned list is ordered by file name so
// repeated scans of unchanged contents compare equal.
func LoadSummaries(resultsDir string, index stats.DifficultyLookup, logger *slog.Logger) ([]models.CompletedRunSummary, error) {
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.CompletedRunSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	summaries := make([]models.CompletedRunSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(resultsDir, entry.Name())

		summary, err := LoadSummary(path, index)
		if err != nil {
			logger.Warn("Skipping unreadable result file", "path", path, "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ResultFile < summaries[j].ResultFile
	})
	return summaries, nil
}

// LoadSummary reads a single result file and summarizes it
func LoadSummary(path string, index stats.DifficultyLookup) (models.CompletedRunSummary, error) {
	var file models.ResultFile
	if err := statefile.ReadJSON(path, &file); err != nil {
		return models.CompletedRunSummary{}, err
	}
	if err := file.Validate(); err != nil {
		return models.CompletedRunSummary{}, err
	}

	var completedAt *time.Time
	if info, err := os.Stat(path); err == nil {
		mtime := info.ModTime()
		completedAt = &mtime
	}

	return Summarize(file, path, completedAt, index), nil
}

// Summarize turns a parsed result file into its display-ready aggregate.
// Produced once per file; the summary is never mutated afterwards.
func Summarize(file models.ResultFile, path string, completedAt *time.Time, index stats.DifficultyLookup) models.CompletedRunSummary {
	breakdown := stats.AggregateByDifficulty(file.Results, index)

	var totalIn, totalOut int
	for _, r := range file.Results {
		totalIn += r.InputTokens
		totalOut += r.OutputTokens
	}

	totalTime := file.TotalTestTime
	if totalTime == 0 {
		for _, r := range file.Results {
			totalTime += r.TotalTime
		}
	}
	tokensPerSecond := file.TokensPerSecond
	if tokensPerSecond == 0 && totalTime > 0 {
		tokensPerSecond = float64(totalOut) / totalTime
	}

	return models.CompletedRunSummary{
		Model:             file.Model,
		Architecture:      file.Architecture,
		TotalInputTokens:  totalIn,
		TotalOutputTokens: totalOut,
		Score:             stats.WeightedScore(breakdown),
		TotalQuestions:    len(file.Results),
		StartedAt:         file.StartedAt,
		CompletedAt:       completedAt,
		ResultFile:        path,
		TotalTime:         totalTime,
		TokensPerSecond:   tokensPerSecond,
		EasyPercentage:    breakdown.Easy.Percentage,
		MediumPercentage:  breakdown.Medium.Percentage,
		HardPercentage:    breakdown.Hard.Percentage,
		TotalPercentage:   breakdown.Total.Percentage,
		EasyTotal:         breakdown.Easy.Total,
		EasyPassed:        breakdown.Easy.Passed,
		MediumTotal:       breakdown.Medium.Total,
		MediumPassed:      breakdown.Medium.Passed,
		HardTotal:         breakdown.Hard.Total,
		HardPassed:        breakdown.Hard.Passed,
		TotalPassed:       breakdown.Total.Passed,
	}
}
