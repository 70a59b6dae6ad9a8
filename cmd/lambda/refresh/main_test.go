package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_DefaultsToTmp(t *testing.T) {
	t.Setenv("FINAL_JSON", "")
	t.Setenv("BACKUP_DIR", "")

	cfg := loadConfig()
	if cfg.Output.FinalJSON != "/tmp/articles.json" || cfg.Output.BackupDir != "/tmp/backups" {
		t.Errorf("Output = %+v", cfg.Output)
	}
}

func TestHandle(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "batch.json")
	if err := os.WriteFile(batch, []byte(`[{"url":"https://a.example/1","title":"One"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINAL_JSON", filepath.Join(dir, "articles.json"))
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("SOURCES", "none")
	t.Setenv("BATCH_FILES", batch)
	t.Setenv("DISABLE_TRANSLATION", "1")
	t.Setenv("NOTION_TOKEN", "")
	t.Setenv("EMAIL_FROM", "")

	resp, err := handle(context.Background(), loadConfig())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.StatusCode != 200 || resp.Added != 1 || resp.Total != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandle_InvalidConfig(t *testing.T) {
	cfg := loadConfig()
	cfg.Input.Concurrency = 0
	resp, err := handle(context.Background(), cfg)
	if err == nil || resp.StatusCode != 400 {
		t.Errorf("resp = %+v, err = %v", resp, err)
	}
}
