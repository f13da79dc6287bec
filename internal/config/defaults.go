package config

import "time"

// DefaultConcurrency is the number of chunks transcribed at once.
const DefaultConcurrency = 3

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8086
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/nikki/data/db/journal.db"
	}
	if cfg.Storage.SearchIndexPath == "" {
		cfg.Storage.SearchIndexPath = "/usr/local/var/nikki/data/indices/summaries"
	}
	if cfg.Transcription.Engine == "" {
		cfg.Transcription.Engine = "sidecar"
	}
	if cfg.Transcription.Concurrency <= 0 {
		cfg.Transcription.Concurrency = DefaultConcurrency
	}
	if cfg.Transcription.Endpoint == "" {
		cfg.Transcription.Endpoint = "https://api.openai.com/v1/audio/transcriptions"
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = "whisper-1"
	}
	if cfg.Summarizer.Engine == "" {
		cfg.Summarizer.Engine = "extractive"
	}
	if cfg.Summarizer.Endpoint == "" {
		cfg.Summarizer.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "gpt-4o-mini"
	}
	if cfg.Summarizer.ChunkCacheSize == 0 {
		cfg.Summarizer.ChunkCacheSize = 1000
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 2
	}
	if cfg.Summarizer.MaxTopics == 0 {
		cfg.Summarizer.MaxTopics = 5
	}
	if cfg.Guard.Backend == "" {
		cfg.Guard.Backend = "memory"
	}
	if cfg.Guard.Backend == "redis" && cfg.Guard.RedisAddr == "" {
		cfg.Guard.RedisAddr = "localhost:6379"
	}
	if cfg.Guard.TTL == 0 {
		cfg.Guard.TTL = 10 * time.Minute
	}
	if cfg.Inbox.Suffixes == nil {
		cfg.Inbox.Suffixes = []string{".chunk.json"}
	}
}
