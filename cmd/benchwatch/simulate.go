package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/benchtools/benchwatch/internal/logging"
	"github.com/benchtools/benchwatch/internal/writer"
	"github.com/benchtools/benchwatch/pkg/models"
)

var simulateDifficulties = []string{
	models.DifficultyEasy,
	models.DifficultyMedium,
	models.DifficultyHard,
}

// runSimulate plays the producer role: it drives the writer lifecycle
// with synthetic runs so a monitor in another process has something to
// observe.
func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := logging.New(logLevel)

	seed := cfg.Simulate.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	if err := writeSimulatedDataset(cfg.Monitor.DatasetPath, cfg.Simulate.NumQuestions); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}

	base := cfg.Monitor.BasePath
	runWriter, err := writer.NewRunWriter(base, logger)
	if err != nil {
		return err
	}
	launcherWriter, err := writer.NewLauncherWriter(base, logger)
	if err != nil {
		return err
	}
	checkpointWriter, err := writer.NewCheckpointWriter(base, 1, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := checkpointWriter.Close(); err != nil {
			logger.Error("Checkpoint writer close failed", "error", err)
		}
	}()

	var grid []models.GridItem
	for _, model := range cfg.Simulate.Models {
		for _, arch := range cfg.Simulate.Architectures {
			grid = append(grid, models.GridItem{Model: model, Architecture: arch})
		}
	}
	if err := launcherWriter.StartGrid(grid); err != nil {
		return err
	}

	delay := time.Duration(cfg.Simulate.QuestionDelayMS) * time.Millisecond

	for i, item := range grid {
		if err := launcherWriter.StartItem(i); err != nil {
			return err
		}
		if err := simulateRun(runWriter, rng, item, cfg.Simulate.NumQuestions, delay); err != nil {
			return err
		}

		resultPath, err := runWriter.WriteResult()
		if err != nil {
			return err
		}
		snapshot, _ := runWriter.Snapshot()
		if err := launcherWriter.FinishItem(i, resultPath, snapshot.CurrentScore); err != nil {
			return err
		}
		if err := checkpointWriter.MarkItemComplete(i, &snapshot); err != nil {
			return err
		}
	}

	return checkpointWriter.SaveSync()
}

func simulateRun(w *writer.RunWriter, rng *rand.Rand, item models.GridItem, numQuestions int, delay time.Duration) error {
	if err := w.StartRun(item.Model, item.Architecture, numQuestions, nil); err != nil {
		return err
	}
	time.Sleep(delay)
	if err := w.ModelLoaded(); err != nil {
		return err
	}

	label := fmt.Sprintf("%s/%s", item.Model, item.Architecture)
	bar := progressbar.Default(int64(numQuestions), label)

	for i := 1; i <= numQuestions; i++ {
		questionID := simulatedQuestionID(i)
		difficulty := simulateDifficulties[(i-1)%len(simulateDifficulties)]

		if err := w.StartQuestion(questionID, difficulty, i, numQuestions); err != nil {
			return err
		}
		if err := w.UpdateTokens(200+rng.Intn(400), 0); err != nil {
			return err
		}
		time.Sleep(delay)
		if err := w.UpdateTokens(0, 100+rng.Intn(600)); err != nil {
			return err
		}

		totalTests := 3 + rng.Intn(5)
		if err := w.StartTests(totalTests); err != nil {
			return err
		}
		passed := rng.Intn(totalTests + 1)
		for t := 1; t <= totalTests; t++ {
			p := passed
			if t < totalTests {
				p = min(passed, t)
			}
			if err := w.TestProgress(t, p); err != nil {
				return err
			}
		}

		successRate := float64(passed) / float64(totalTests)
		if err := w.FinishQuestion(passed, totalTests, successRate, delay.Seconds()); err != nil {
			return err
		}
		_ = bar.Add(1)
	}

	return w.FinishRun(true)
}

func simulatedQuestionID(i int) string {
	return fmt.Sprintf("q%04d", i)
}

// writeSimulatedDataset generates the difficulty index matching the
// simulated question IDs, unless one already exists.
func writeSimulatedDataset(path string, numQuestions int) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := 1; i <= numQuestions; i++ {
		difficulty := simulateDifficulties[(i-1)%len(simulateDifficulties)]
		if _, err := fmt.Fprintf(f, "{\"question_id\": %q, \"difficulty\": %q}\n", simulatedQuestionID(i), difficulty); err != nil {
			return err
		}
	}
	return nil
}
