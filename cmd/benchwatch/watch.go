package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchtools/benchwatch/internal/dataset"
	"github.com/benchtools/benchwatch/internal/logging"
	"github.com/benchtools/benchwatch/internal/monitor"
	"github.com/benchtools/benchwatch/pkg/models"
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := logging.New(logLevel)
	if logFilePath != "" {
		fileLogger, logFile, err := logging.Setup(logFilePath, logLevel)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		logger = fileLogger
	}

	index := dataset.New(cfg.Monitor.DatasetPath)
	if err := index.Load(); err != nil {
		// Scoring is undefined without the index.
		return fmt.Errorf("failed to load dataset index: %w", err)
	}
	logger.Info("Dataset index loaded", "path", cfg.Monitor.DatasetPath, "questions", index.Len())

	mgr, err := monitor.New(cfg.Monitor.BasePath, index, monitor.Options{
		PollInterval:            time.Duration(cfg.Monitor.PollIntervalMS) * time.Millisecond,
		ReadRetryAttempts:       cfg.Monitor.ReadRetryAttempts,
		ReadRetryBackoff:        time.Duration(cfg.Monitor.ReadRetryBackoffMS) * time.Millisecond,
		ResultsReloadsPerSecond: cfg.Monitor.ResultsReloadsPerSecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	var lastStatus models.RunStatus
	mgr.OnRunStateChange(func(st models.RunState) {
		if st.Status != lastStatus {
			lastStatus = st.Status
			logger.Info("Run status changed",
				"model", st.Model,
				"architecture", st.Architecture,
				"status", string(st.Status),
				"completed", st.CompletedQuestions,
				"total", st.TotalQuestions,
				"score", fmt.Sprintf("%.2f", st.CurrentScore))
			return
		}
		attrs := []any{
			"completed", st.CompletedQuestions,
			"total", st.TotalQuestions,
			"input_tokens", st.TotalInputTokens,
			"output_tokens", st.TotalOutputTokens,
		}
		if q := st.CurrentQuestion; q != nil {
			attrs = append(attrs, "question", q.QuestionID, "index", q.Index)
		}
		logger.Debug("Run progress", attrs...)
	})

	mgr.OnLauncherStateChange(func(st models.LauncherState) {
		logger.Info("Launcher progress",
			"completed_runs", st.CompletedRuns,
			"total_runs", st.TotalRuns,
			"current_model", st.CurrentModel,
			"current_architecture", st.CurrentArchitecture)
	})

	mgr.OnCheckpointChange(func(cp models.Checkpoint) {
		logger.Debug("Checkpoint updated",
			"session_id", cp.SessionID,
			"last_completed_index", cp.LastCompletedIndex)
	})

	mgr.OnResultsChange(func(summaries []models.CompletedRunSummary) {
		logger.Info("Results updated", "completed_runs", len(summaries))
		for _, s := range summaries {
			logger.Info("Result",
				"model", s.Model,
				"architecture", s.Architecture,
				"score", fmt.Sprintf("%.2f", s.Score),
				"questions", s.TotalQuestions)
		}
	})

	mgr.OnError(func(kind monitor.Kind, err error) {
		logger.Warn("State error", "kind", string(kind), "error", err)
	})

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	defer mgr.Stop()

	logger.Info("Watching for benchmark state changes",
		"base", cfg.Monitor.BasePath,
		"poll_interval_ms", cfg.Monitor.PollIntervalMS)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down")
	return nil
}
