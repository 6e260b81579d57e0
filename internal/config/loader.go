package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is present
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Monitor.BasePath == "" {
		cfg.Monitor.BasePath = "."
	}
	if cfg.Monitor.DatasetPath == "" {
		cfg.Monitor.DatasetPath = "data/dataset.jsonl"
	}
	if cfg.Monitor.PollIntervalMS == 0 {
		cfg.Monitor.PollIntervalMS = 500
	}
	if cfg.Monitor.ReadRetryAttempts == 0 {
		cfg.Monitor.ReadRetryAttempts = 3
	}
	if cfg.Monitor.ReadRetryBackoffMS == 0 {
		cfg.Monitor.ReadRetryBackoffMS = 50
	}
	if cfg.Monitor.ResultsReloadsPerSecond == 0 {
		cfg.Monitor.ResultsReloadsPerSecond = 2
	}

	if len(cfg.Simulate.Models) == 0 {
		cfg.Simulate.Models = []string{"demo-model:7b"}
	}
	if len(cfg.Simulate.Architectures) == 0 {
		cfg.Simulate.Architectures = []string{"baseline"}
	}
	if cfg.Simulate.NumQuestions == 0 {
		cfg.Simulate.NumQuestions = 10
	}
	if cfg.Simulate.QuestionDelayMS == 0 {
		cfg.Simulate.QuestionDelayMS = 200
	}
}
