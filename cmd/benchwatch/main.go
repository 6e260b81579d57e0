package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchtools/benchwatch/internal/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath  string
	basePath    string
	datasetPath string
	logFilePath string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "benchwatch",
		Short: "benchwatch - file-backed benchmark progress monitor",
		Long: `benchwatch observes the state files a running benchmark writes to disk,
reconstructs typed progress state and reports changes, without ever
executing or controlling the benchmark itself.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "benchwatch.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&basePath, "base", "", "Base directory holding .tui_state/ and results/ (overrides config)")
	rootCmd.PersistentFlags().StringVar(&datasetPath, "dataset", "", "Path to the dataset JSONL file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "Also write logs as JSON to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the state directory and report changes",
		Long: `Watch the benchmark's state and results directories. Filesystem
notifications are used when available, with a polling fallback running
alongside. State transitions and new results are logged as they happen.`,
		RunE: runWatch,
	}

	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Print a summary table of all completed runs",
		RunE:  runResults,
	}

	scoreCmd := &cobra.Command{
		Use:   "score <result-file>",
		Short: "Score a single result file",
		Long:  "Compute the per-difficulty breakdown and weighted score for one result file.",
		Args:  cobra.ExactArgs(1),
		RunE:  runScore,
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a fake benchmark that exercises the state writers",
		Long: `Drive the full writer lifecycle with synthetic runs so the watch
command (in another terminal) can be exercised end to end.`,
		RunE: runSimulate,
	}

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file if present and applies CLI overrides.
// A missing config file is not an error; defaults cover the common case
// of running from the benchmark's working directory.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if basePath != "" {
		cfg.Monitor.BasePath = basePath
	}
	if datasetPath != "" {
		cfg.Monitor.DatasetPath = datasetPath
	}
	return cfg, nil
}
