package config

import "fmt"

// Config represents the complete application configuration
type Config struct {
	Monitor  MonitorConfig  `toml:"monitor"`
	Simulate SimulateConfig `toml:"simulate"`
}

// MonitorConfig holds the settings shared by the watcher and the writers
type MonitorConfig struct {
	BasePath    string `toml:"base_path"`    // Directory holding .tui_state/ and results/
	DatasetPath string `toml:"dataset_path"` // JSONL file mapping question_id -> difficulty

	PollIntervalMS int `toml:"poll_interval_ms"` // Polling fallback interval (default: 500)

	// Bounded retry for reads that race a rename. Tuning knobs, not a
	// correctness contract.
	ReadRetryAttempts  int `toml:"read_retry_attempts"`   // default: 3
	ReadRetryBackoffMS int `toml:"read_retry_backoff_ms"` // default: 50

	ResultsReloadsPerSecond float64 `toml:"results_reloads_per_second"` // Rate limit on results rescans (default: 2)
}

// SimulateConfig drives the fake benchmark used to exercise the monitor
type SimulateConfig struct {
	Models          []string `toml:"models"`
	Architectures   []string `toml:"architectures"`
	NumQuestions    int      `toml:"num_questions"`     // default: 10
	QuestionDelayMS int      `toml:"question_delay_ms"` // default: 200
	Seed            int64    `toml:"seed"`              // 0 = time-based
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Monitor.BasePath == "" {
		return fmt.Errorf("monitor.base_path must not be empty")
	}
	if c.Monitor.DatasetPath == "" {
		return fmt.Errorf("monitor.dataset_path must not be empty")
	}
	if c.Monitor.PollIntervalMS < 0 {
		return fmt.Errorf("monitor.poll_interval_ms must not be negative (got %d)", c.Monitor.PollIntervalMS)
	}
	if c.Monitor.ReadRetryAttempts < 0 {
		return fmt.Errorf("monitor.read_retry_attempts must not be negative (got %d)", c.Monitor.ReadRetryAttempts)
	}
	if c.Monitor.ReadRetryBackoffMS < 0 {
		return fmt.Errorf("monitor.read_retry_backoff_ms must not be negative (got %d)", c.Monitor.ReadRetryBackoffMS)
	}
	if c.Monitor.ResultsReloadsPerSecond < 0 {
		return fmt.Errorf("monitor.results_reloads_per_second must not be negative (got %f)", c.Monitor.ResultsReloadsPerSecond)
	}
	if c.Simulate.NumQuestions < 0 {
		return fmt.Errorf("simulate.num_questions must not be negative (got %d)", c.Simulate.NumQuestions)
	}
	return nil
}
