package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benchtools/benchwatch/internal/dataset"
	"github.com/benchtools/benchwatch/internal/logging"
	"github.com/benchtools/benchwatch/internal/monitor"
	"github.com/benchtools/benchwatch/internal/statefile"
)

func runResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.New(slog.LevelWarn)

	index := dataset.New(cfg.Monitor.DatasetPath)
	if err := index.Load(); err != nil {
		return fmt.Errorf("failed to load dataset index: %w", err)
	}

	paths := statefile.Paths{Base: cfg.Monitor.BasePath}
	summaries, err := monitor.LoadSummaries(paths.ResultsDir(), index, logger)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No completed runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tARCH\tSCORE\tEASY\tMEDIUM\tHARD\tQUESTIONS\tTOKENS OUT\tTOK/S")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f%%\t%.1f%%\t%.1f%%\t%d\t%d\t%.1f\n",
			s.Model, s.Architecture, s.Score,
			s.EasyPercentage, s.MediumPercentage, s.HardPercentage,
			s.TotalQuestions, s.TotalOutputTokens, s.TokensPerSecond)
	}
	return w.Flush()
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	index := dataset.New(cfg.Monitor.DatasetPath)
	if err := index.Load(); err != nil {
		return fmt.Errorf("failed to load dataset index: %w", err)
	}

	summary, err := monitor.LoadSummary(args[0], index)
	if err != nil {
		return fmt.Errorf("failed to load result file: %w", err)
	}

	fmt.Printf("Model:        %s\n", summary.Model)
	fmt.Printf("Architecture: %s\n", summary.Architecture)
	fmt.Printf("Questions:    %d\n", summary.TotalQuestions)
	fmt.Printf("Easy:         %.2f%% (%.2f/%d)\n", summary.EasyPercentage, summary.EasyPassed, summary.EasyTotal)
	fmt.Printf("Medium:       %.2f%% (%.2f/%d)\n", summary.MediumPercentage, summary.MediumPassed, summary.MediumTotal)
	fmt.Printf("Hard:         %.2f%% (%.2f/%d)\n", summary.HardPercentage, summary.HardPassed, summary.HardTotal)
	fmt.Printf("Overall:      %.2f%%\n", summary.TotalPercentage)
	fmt.Printf("Score:        %.2f\n", summary.Score)
	return nil
}
