package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsAndResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	raw := `{
		"basic_config": {"upload_dir": "uploads"},
		"databases": {"sqlite3": {"dsn": "data/app.db"}},
		"providers": {"gemini": {"api_key": "k", "model": "gemini-2.0-flash"}}
	}`
	if err := os.WriteFile(cfgPath, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.BasicConfig.ServerAddress != ":8081" {
		t.Fatalf("default server address not applied: %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.MinWorkers != 2 || cfg.BasicConfig.MaxWorkers != 2 {
		t.Fatalf("worker defaults wrong: %d/%d", cfg.BasicConfig.MinWorkers, cfg.BasicConfig.MaxWorkers)
	}
	if cfg.BasicConfig.InsightWindow != 60 {
		t.Fatalf("insight window default wrong: %d", cfg.BasicConfig.InsightWindow)
	}
	if got, want := cfg.Databases["sqlite3"].DSN, filepath.Join(dir, "data", "app.db"); got != want {
		t.Fatalf("sqlite dsn not resolved: got %q want %q", got, want)
	}
	if got, want := cfg.BasicConfig.UploadDir, filepath.Join(dir, "uploads"); got != want {
		t.Fatalf("upload dir not resolved: got %q want %q", got, want)
	}
}

func TestLoadRejectsMissingDatabases(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfgPath, []byte(`{"basic_config": {}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for config without databases")
	}
}
