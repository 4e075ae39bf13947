package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Workers != 8 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "taskwell.db" {
		t.Fatalf("Storage = %+v", cfg.Storage)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `
listen: ":9090"
workers: 4
storage:
  driver: redis
  dsn: localhost:6379
  redis_db: 2
scheduler:
  recurrent_tick: 30s
  idle_wait: 15m
  retention: 48h
log:
  level: debug
  pretty: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.Workers != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage.Driver != "redis" || cfg.Storage.RedisDB != 2 {
		t.Fatalf("Storage = %+v", cfg.Storage)
	}
	if cfg.Scheduler.RecurrentTick.Std() != 30*time.Second {
		t.Fatalf("RecurrentTick = %v", cfg.Scheduler.RecurrentTick.Std())
	}
	if cfg.Scheduler.IdleWait.Std() != 15*time.Minute {
		t.Fatalf("IdleWait = %v", cfg.Scheduler.IdleWait.Std())
	}
	if cfg.Scheduler.Retention.Std() != 48*time.Hour {
		t.Fatalf("Retention = %v", cfg.Scheduler.Retention.Std())
	}
	if cfg.Log.Level != "debug" || cfg.Log.Pretty {
		t.Fatalf("Log = %+v", cfg.Log)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "workers: 2\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 2 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
	if cfg.Listen != ":8080" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "scheduler:\n  idle_wait: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an unparseable duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}
