// Package config provides configuration loading and structs for the nikki daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Timezone      string              `yaml:"timezone"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Guard         GuardConfig         `yaml:"guard"`
	Inbox         InboxConfig         `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and the summary search index.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	SearchIndexPath string `yaml:"search_index_path"`
}

// TranscriptionConfig selects the speech-to-text backend and its concurrency.
type TranscriptionConfig struct {
	Engine      string `yaml:"engine"` // "sidecar" or "whisper"
	Concurrency int    `yaml:"concurrency"`
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
}

// SummarizerConfig selects the summarization backend.
type SummarizerConfig struct {
	Engine         string `yaml:"engine"` // "extractive" or "openai"
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	IncludeNotes   bool   `yaml:"include_notes"`
	ChunkCacheSize int    `yaml:"chunk_cache_size"`
	MaxSentences   int    `yaml:"max_sentences"`
	MaxTopics      int    `yaml:"max_topics"`
}

// GuardConfig selects where in-progress generation markers live.
type GuardConfig struct {
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// InboxConfig holds the directories where chunk manifests are dropped by the recorder.
type InboxConfig struct {
	Directories []string `yaml:"directories"`
	Suffixes    []string `yaml:"suffixes"`
	Recursive   bool     `yaml:"recursive"`
}

// Location returns the configured time zone, or time.Local when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads and parses the config file at path, expands paths, applies env overrides and defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SearchIndexPath = expandPath(cfg.Storage.SearchIndexPath, configDir)
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnv lets secrets come from the environment instead of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NIKKI_OPENAI_API_KEY"); v != "" {
		if cfg.Summarizer.APIKey == "" {
			cfg.Summarizer.APIKey = v
		}
		if cfg.Transcription.APIKey == "" {
			cfg.Transcription.APIKey = v
		}
	}
	if v := os.Getenv("NIKKI_REDIS_PASSWORD"); v != "" && cfg.Guard.RedisPassword == "" {
		cfg.Guard.RedisPassword = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
