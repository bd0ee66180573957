package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage != StorageFile || cfg.Uploader.Kind != UploaderSimulated || cfg.Agent.Interval != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("expected default port, got %d", cfg.Port)
	}
}

func TestLoadReadsAndNormalizes(t *testing.T) {
	path := writeConfig(t, `port: 9090
data_dir: testdata
log_level: DEBUG
storage: SQLite
agent:
  interval: 30s
  publish_timeout: 1m
uploader:
  kind: webhook
  webhook_url: http://localhost:9000/publish
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DataDir != "testdata" || cfg.Storage != StorageSQLite {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Agent.Interval != 30*time.Second || cfg.Agent.PublishTimeout != time.Minute {
		t.Fatalf("durations not parsed: %+v", cfg.Agent)
	}
	if cfg.Uploader.Timeout != defaultUploadTimeout {
		t.Fatalf("expected default uploader timeout, got %v", cfg.Uploader.Timeout)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", cfg.Level())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"storage":      "storage: postgres\n",
		"uploader":     "uploader:\n  kind: ftp\n",
		"webhook url":  "uploader:\n  kind: webhook\n",
		"log level":    "log_level: loud\n",
		"port":         "port: 70000\n",
		"neg interval": "agent:\n  interval: -5s\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
