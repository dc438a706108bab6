package config

import (
	"fmt"
	"time"

	redisclient "github.com/vietddude/relay/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Upstream UpstreamConfig     `yaml:"upstream"`
	Dispatch DispatchConfig     `yaml:"dispatch"`
	Logging  LoggingConfig      `yaml:"logging"`
	Redis    redisclient.Config `yaml:"redis"`
}

// ServerConfig holds the ingest HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig holds the remote ingestion endpoint settings.
type UpstreamConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// DispatchConfig tunes batching, retry backoff and shutdown waits.
type DispatchConfig struct {
	MaxBatchSize        int      `yaml:"max_batch_size"`
	MaxRetries          int      `yaml:"max_retries"`
	InitialRetryDelay   Duration `yaml:"initial_retry_delay"`
	RetryPollInterval   Duration `yaml:"retry_poll_interval"`
	DispatchStopTimeout Duration `yaml:"dispatch_stop_timeout"`
	RetryStopTimeout    Duration `yaml:"retry_stop_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Duration parses YAML duration strings ("90s", "2m"); bare numbers are
// taken as seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := unmarshal(&seconds); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %w", err)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}
