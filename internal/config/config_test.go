package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Transcription.Concurrency != DefaultConcurrency {
		t.Errorf("concurrency: got %d, want %d", cfg.Transcription.Concurrency, DefaultConcurrency)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/journal.db"
inbox:
  directories: ["./inbox"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "journal.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Inbox.Directories) != 1 {
		t.Fatalf("inbox directories: got %d", len(cfg.Inbox.Directories))
	}
	if want := filepath.Join(dir, "inbox"); cfg.Inbox.Directories[0] != want {
		t.Errorf("inbox directory = %s, want %s", cfg.Inbox.Directories[0], want)
	}
}

func TestLoad_envOverridesSecrets(t *testing.T) {
	t.Setenv("NIKKI_OPENAI_API_KEY", "sk-test")
	t.Setenv("NIKKI_REDIS_PASSWORD", "hunter2")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("summarizer:\n  engine: openai\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Summarizer.APIKey != "sk-test" || cfg.Transcription.APIKey != "sk-test" {
		t.Errorf("api keys not taken from env: %q %q", cfg.Summarizer.APIKey, cfg.Transcription.APIKey)
	}
	if cfg.Guard.RedisPassword != "hunter2" {
		t.Errorf("redis password not taken from env: %q", cfg.Guard.RedisPassword)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8086 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Transcription.Engine != "sidecar" {
		t.Errorf("default transcription engine: got %s", cfg.Transcription.Engine)
	}
	if cfg.Summarizer.Engine != "extractive" {
		t.Errorf("default summarizer engine: got %s", cfg.Summarizer.Engine)
	}
	if cfg.Guard.Backend != "memory" || cfg.Guard.TTL != 10*time.Minute {
		t.Errorf("default guard: got %+v", cfg.Guard)
	}
	if len(cfg.Inbox.Suffixes) != 1 || cfg.Inbox.Suffixes[0] != ".chunk.json" {
		t.Errorf("inbox suffixes: got %v", cfg.Inbox.Suffixes)
	}
}

func TestApplyDefaults_redisAddr(t *testing.T) {
	cfg := &Config{Guard: GuardConfig{Backend: "redis"}}
	ApplyDefaults(cfg)
	if cfg.Guard.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr: got %q", cfg.Guard.RedisAddr)
	}
}

func TestConfig_Location(t *testing.T) {
	if loc := (&Config{}).Location(); loc != time.Local {
		t.Errorf("empty timezone should be Local, got %v", loc)
	}
	if loc := (&Config{Timezone: "UTC"}).Location(); loc.String() != "UTC" {
		t.Errorf("UTC: got %v", loc)
	}
	if loc := (&Config{Timezone: "Not/AZone"}).Location(); loc != time.Local {
		t.Errorf("unknown timezone should fall back to Local, got %v", loc)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
