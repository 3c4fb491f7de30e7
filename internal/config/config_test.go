package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8787" {
		t.Errorf("default listen = %q", cfg.Listen)
	}
	if cfg.Sweep.Schedule != "@every 30s" {
		t.Errorf("default sweep schedule = %q", cfg.Sweep.Schedule)
	}
	if cfg.Invoke.MaxConcurrent != 4 {
		t.Errorf("default max concurrent = %d", cfg.Invoke.MaxConcurrent)
	}

	// Defaults were written to disk
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := &Config{
		DataDir:  "/tmp/test-data",
		LogLevel: "debug",
		Listen:   "127.0.0.1:9999",
	}
	original.Sweep.Schedule = "@every 5s"
	original.Invoke.MaxConcurrent = 8
	original.Invoke.ContextMessages = 10
	original.Invoke.TimeoutSeconds = 60

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.Listen != original.Listen {
		t.Errorf("Listen mismatch: %v != %v", loaded.Listen, original.Listen)
	}
	if loaded.Sweep.Schedule != original.Sweep.Schedule {
		t.Errorf("Sweep.Schedule mismatch: %v != %v", loaded.Sweep.Schedule, original.Sweep.Schedule)
	}
	if loaded.Invoke != original.Invoke {
		t.Errorf("Invoke mismatch: %+v != %+v", loaded.Invoke, original.Invoke)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify no temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	t.Setenv("TALKTO_LISTEN", "0.0.0.0:8000")
	t.Setenv("TALKTO_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:8000" {
		t.Errorf("Listen = %q, want env override", cfg.Listen)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := SetValue(path, "invoke.max_concurrent", "8"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	val, err := GetValue(path, "invoke.max_concurrent")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	// JSON round-trip yields float64 for numbers
	if f, ok := val.(float64); !ok || f != 8 {
		t.Errorf("invoke.max_concurrent = %v (%T), want 8", val, val)
	}

	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("SetValue accepted unknown key")
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"data_dir": "/tmp/x",
		"sweep": map[string]any{
			"schedule": "@every 30s",
		},
		"invoke": map[string]any{
			"max_concurrent": float64(4),
		},
	}

	flat := Flatten(nested)
	if flat["sweep.schedule"] != "@every 30s" {
		t.Errorf("flatten lost sweep.schedule: %v", flat)
	}

	back := Unflatten(flat)
	if !reflect.DeepEqual(nested, back) {
		t.Errorf("round trip mismatch:\n nested=%v\n back=%v", nested, back)
	}
}
