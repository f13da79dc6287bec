package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after positionals are moved first",
			args:     []string{"week", "2024-03-13", "--force"},
			expected: []string{"--force", "week", "2024-03-13"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "sourdough"},
			expected: []string{"-limit", "5", "sourdough"},
		},
		{
			name:     "positionals only returns unchanged",
			args:     []string{"morning walk"},
			expected: []string{"morning walk"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"sourdough"}, "sourdough"},
		{"multiple words", []string{"morning", "walk"}, "morning walk"},
		{"quoted phrase", []string{"morning walk"}, "morning walk"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
timezone: UTC
storage:
  database_path: "./journal.db"
  search_index_path: "./summaries"
inbox:
  directories: ["./inbox"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "journal.db") {
		t.Errorf("database path = %s", cfg.Storage.DatabasePath)
	}
}

func TestInitializeComponents_andDirectStatus(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := loadConfig(writeConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}

	c, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	if c.Rollups.Location().String() != "UTC" {
		t.Errorf("location = %s, want UTC", c.Rollups.Location())
	}
	c.Close()
	c.Close()

	status, err := directStatus(context.Background(), cfg)
	if err != nil {
		t.Fatalf("directStatus: %v", err)
	}
	if status.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", status.Chunks)
	}
	if status.Config["timezone"] != "UTC" {
		t.Errorf("timezone = %v", status.Config["timezone"])
	}
}
