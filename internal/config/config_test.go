package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"actas-cli/internal/model"
)

func withConfigDir(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ACTAS_CONFIG_DIR", dir)
	if yaml != "" {
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := withConfigDir(t, "")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Dir != dir || c.Scope != "default" || c.RemoteURL != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.SyncInterval != 4*time.Second || c.MaxBackoff != time.Minute || c.MaxAttempts != 5 {
		t.Fatalf("unexpected sync defaults: %+v", c)
	}
	e := c.Engine()
	if e.MinScore != 0 || e.MaxScore != 20 {
		t.Fatalf("unexpected engine: %+v", e)
	}
	s := c.Sync()
	if s.BaseBackoff != s.Interval || s.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected sync config: %+v", s)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	withConfigDir(t, "scope: term2\nmax_score: 10\nsync_interval: 1s\n")
	t.Setenv("ACTAS_SYNC_INTERVAL", "2s")
	t.Setenv("ACTAS_LOG_FORMAT", "json")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Scope != "term2" || c.MaxScore != 10 {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.SyncInterval != 2*time.Second || c.LogFormat != "json" {
		t.Fatalf("env must win over the file: %+v", c)
	}
}

func TestLoad_Invalid(t *testing.T) {
	withConfigDir(t, "min_score: 30\n")
	if _, err := Load(); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input for min > max, got %v", err)
	}

	withConfigDir(t, "scope: [unclosed\n")
	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed yaml error")
	}
}
