package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadMappingsOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "mappings.yml", `
categories:
  Operations: "Ops"
future_list: "Someday"
`)

	m, err := LoadMappings(path)
	if err != nil {
		t.Fatalf("LoadMappings failed: %v", err)
	}
	if len(m.Categories) != 1 || m.Categories["Operations"] != "Ops" {
		t.Errorf("expected categories replaced by file, got %v", m.Categories)
	}
	if m.FutureList != "Someday" {
		t.Errorf("expected future list 'Someday', got %q", m.FutureList)
	}
	if m.FutureBoard != "Product Roadmap" {
		t.Errorf("expected default future board, got %q", m.FutureBoard)
	}
	if m.Users["zhenz-uchicago"] != "Zhuo Zhen" {
		t.Errorf("expected default user map kept, got %v", m.Users)
	}
}

func TestLoadMappingsInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yml", "categories: [unclosed")
	if _, err := LoadMappings(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(EnvTrelloAPIKey, "key")
	t.Setenv(EnvTrelloToken, "token")
	t.Setenv(EnvTrelloBoard, "board")
	t.Setenv(EnvRedmineURL, "https://redmine.example")
	t.Setenv(EnvRedmineAPIKey, "rkey")
	t.Setenv(EnvRedmineProject, "")
	t.Setenv(EnvTimezone, "")
	t.Setenv(EnvMappings, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RedmineProject != DefaultRedmineProject {
		t.Errorf("expected default project, got %q", cfg.RedmineProject)
	}
	if err := cfg.ValidateTrello(); err != nil {
		t.Errorf("unexpected trello validation error: %v", err)
	}
	if err := cfg.ValidateRedmine(); err != nil {
		t.Errorf("unexpected redmine validation error: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc.String() != DefaultTimezone {
		t.Errorf("expected %s, got %s", DefaultTimezone, loc)
	}

	cfg.RedmineAPIKey = ""
	if err := cfg.ValidateRedmine(); err == nil {
		t.Error("expected validation error for missing api key")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TRELLO_USER=jason\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv(EnvTrelloUser, "")
	os.Unsetenv(EnvTrelloUser)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TrelloUser != "jason" {
		t.Errorf("expected user from .env, got %q", cfg.TrelloUser)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
