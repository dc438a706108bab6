package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: https://ingest.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Upstream.Timeout.Std() != 10*time.Second {
		t.Errorf("upstream timeout = %v, want 10s", cfg.Upstream.Timeout)
	}
	if cfg.Dispatch.MaxBatchSize != 1000 {
		t.Errorf("max batch size = %d, want 1000", cfg.Dispatch.MaxBatchSize)
	}
	if cfg.Dispatch.MaxRetries != 16 {
		t.Errorf("max retries = %d, want 16", cfg.Dispatch.MaxRetries)
	}
	if cfg.Dispatch.InitialRetryDelay.Std() != 60*time.Second {
		t.Errorf("initial retry delay = %v, want 60s", cfg.Dispatch.InitialRetryDelay)
	}
	if cfg.Dispatch.RetryPollInterval.Std() != 10*time.Second {
		t.Errorf("retry poll interval = %v, want 10s", cfg.Dispatch.RetryPollInterval)
	}
}

func TestLoad_EnvSubstitution(t *testing.T) {
	os.Setenv("TEST_INGEST_TOKEN", "tok-123")
	defer os.Unsetenv("TEST_INGEST_TOKEN")

	path := writeConfig(t, `
upstream:
  url: https://ingest.example.com
  token: ${TEST_INGEST_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Upstream.Token != "tok-123" {
		t.Errorf("token = %q, want tok-123", cfg.Upstream.Token)
	}
}

func TestLoad_ExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
upstream:
  url: https://ingest.example.com
  timeout: 3s
dispatch:
  max_batch_size: 50
  max_retries: 4
  initial_retry_delay: 1s
  retry_poll_interval: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Dispatch.MaxBatchSize != 50 || cfg.Dispatch.MaxRetries != 4 {
		t.Errorf("dispatch config not honored: %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.RetryPollInterval.Std() != 500*time.Millisecond {
		t.Errorf("retry poll interval = %v", cfg.Dispatch.RetryPollInterval)
	}
}

func TestLoad_MissingUpstreamURL(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing upstream.url")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
