package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := Defaults()
	original.DownloadRoot = filepath.Join(dir, "downloads")
	original.DatabasePath = filepath.Join(dir, "feeds.db")
	original.ColorTheme = "high_contrast"
	original.TLSVerify = false

	if err := Save(path, original); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != original {
		t.Fatalf("Load() = %+v, want %+v", loaded, original)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() error = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadFillsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database_path: /srv/podcasts/feeds.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/srv/podcasts/feeds.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.DownloadRoot != "." {
		t.Errorf("DownloadRoot = %q, want .", cfg.DownloadRoot)
	}
	if cfg.Schedule != "@every 6h" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if !cfg.TLSVerify {
		t.Error("TLSVerify should default to true")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, Defaults()); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PODKEEP_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("PODKEEP_TLS_VERIFY", "false")
	t.Setenv("PODKEEP_FEED_TIMEOUT_SECONDS", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabasePath != "/tmp/override.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.TLSVerify {
		t.Error("TLSVerify should be overridden to false")
	}
	if cfg.FeedTimeoutSeconds != 42 {
		t.Errorf("FeedTimeoutSeconds = %d", cfg.FeedTimeoutSeconds)
	}
}

func TestEnsureCreatesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	downloadDir := filepath.Join(dir, "downloads")
	t.Setenv("PODKEEP_DOWNLOAD_ROOT", downloadDir)

	cfg, err := Ensure(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if cfg.DownloadRoot != downloadDir {
		t.Fatalf("DownloadRoot = %q, want %q", cfg.DownloadRoot, downloadDir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
	if _, err := os.Stat(downloadDir); err != nil {
		t.Fatalf("expected download directory to be created: %v", err)
	}
}

func TestEnsureWithoutPromptKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("PODKEEP_DOWNLOAD_ROOT", "")

	cfg, err := Ensure(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if cfg.DownloadRoot != "." || cfg.DatabasePath != "feeds.db" {
		t.Fatalf("Ensure() = %+v", cfg)
	}
}
