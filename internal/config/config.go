package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main mnemo configuration
type Config struct {
	// Data directory, the base for every default path
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Memory store
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Hybrid search
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Embedding model
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Speech-to-text model
	Transcription TranscriptionConfig `json:"transcription" mapstructure:"transcription"`

	// Web server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// MemoryConfig locates the memory store and its embedding cache
type MemoryConfig struct {
	File    string `json:"file" mapstructure:"file"`         // one memory per line
	CacheDB string `json:"cache_db" mapstructure:"cache_db"` // empty keeps the cache in memory only
	Watch   bool   `json:"watch" mapstructure:"watch"`       // embed memories appended by other processes
}

// SearchConfig holds hybrid search settings
type SearchConfig struct {
	SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	OnEmbeddingError    string  `json:"on_embedding_error" mapstructure:"on_embedding_error"` // degrade, fail
	EmbedOnAppend       bool    `json:"embed_on_append" mapstructure:"embed_on_append"`
}

// EmbeddingConfig holds embedding provider settings
type EmbeddingConfig struct {
	Provider       string `json:"provider" mapstructure:"provider"` // openai
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" mapstructure:"model"`
	BatchSize      int    `json:"batch_size" mapstructure:"batch_size"`
	MaxConcurrency int    `json:"max_concurrency" mapstructure:"max_concurrency"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// TranscriptionConfig holds speech-to-text provider settings
type TranscriptionConfig struct {
	Provider       string `json:"provider" mapstructure:"provider"` // openai
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ServerConfig holds web server configuration
type ServerConfig struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	MaxUploadBytes         int64  `json:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	VoiceRatePerMinute     int    `json:"voice_rate_per_minute" mapstructure:"voice_rate_per_minute"` // 0 disables limiting
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`

	// TrustedProxies are the IPs or CIDRs allowed to name the client in
	// X-Forwarded-For or X-Real-IP. Empty means the connecting peer is the client.
	TrustedProxies []string `json:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values. Paths are left empty
// and derived from DataDir by the loader.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			Watch: true,
		},
		Search: SearchConfig{
			SimilarityThreshold: 0.4,
			OnEmbeddingError:    "degrade",
			EmbedOnAppend:       true,
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai",
			Model:          "text-embedding-3-small",
			BatchSize:      256,
			MaxConcurrency: 2,
			TimeoutSeconds: 60,
		},
		Transcription: TranscriptionConfig{
			Provider:       "openai",
			Model:          "whisper-1",
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   5000,
			MaxUploadBytes:         25 << 20,
			VoiceRatePerMinute:     10,
			ShutdownTimeoutSeconds: 10,
			TrustedProxies:         []string{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   false,
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Embedding.APIKey = maskSecret(c.Embedding.APIKey)
	masked.Transcription.APIKey = maskSecret(c.Transcription.APIKey)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:3] + "****" + s[len(s)-4:]
}

// Validate checks if the configuration is valid and returns the first problem.
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return nil
}
