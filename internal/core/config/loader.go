package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Upstream.URL == "" {
		return nil, fmt.Errorf("upstream.url is required")
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = Duration(10 * time.Second)
	}
	if cfg.Dispatch.MaxBatchSize == 0 {
		cfg.Dispatch.MaxBatchSize = 1000
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 16
	}
	if cfg.Dispatch.InitialRetryDelay == 0 {
		cfg.Dispatch.InitialRetryDelay = Duration(60 * time.Second)
	}
	if cfg.Dispatch.RetryPollInterval == 0 {
		cfg.Dispatch.RetryPollInterval = Duration(10 * time.Second)
	}
	if cfg.Dispatch.DispatchStopTimeout == 0 {
		cfg.Dispatch.DispatchStopTimeout = Duration(10 * time.Second)
	}
	if cfg.Dispatch.RetryStopTimeout == 0 {
		cfg.Dispatch.RetryStopTimeout = Duration(15 * time.Second)
	}

	return &cfg, nil
}
