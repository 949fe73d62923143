package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	appDir         = ".mnemo"
	configFileName = "mnemo.json"
	envPrefix      = "MNEMO"

	// DefaultMemoryFile is the store file name inside the data directory.
	DefaultMemoryFile = "memories.txt"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file if it exists, applies MNEMO_* environment
// overrides and fills in derived paths. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// MNEMO_SEARCH_SIMILARITY_THRESHOLD overrides search.similarity_threshold
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDerived(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetDefault("memory.file", cfg.Memory.File)
	v.SetDefault("memory.cache_db", cfg.Memory.CacheDB)
	v.SetDefault("memory.watch", cfg.Memory.Watch)

	v.SetDefault("search.similarity_threshold", cfg.Search.SimilarityThreshold)
	v.SetDefault("search.on_embedding_error", cfg.Search.OnEmbeddingError)
	v.SetDefault("search.embed_on_append", cfg.Search.EmbedOnAppend)

	v.SetDefault("embedding.provider", cfg.Embedding.Provider)
	v.SetDefault("embedding.api_key", cfg.Embedding.APIKey)
	v.SetDefault("embedding.base_url", cfg.Embedding.BaseURL)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("embedding.batch_size", cfg.Embedding.BatchSize)
	v.SetDefault("embedding.max_concurrency", cfg.Embedding.MaxConcurrency)
	v.SetDefault("embedding.timeout_seconds", cfg.Embedding.TimeoutSeconds)

	v.SetDefault("transcription.provider", cfg.Transcription.Provider)
	v.SetDefault("transcription.api_key", cfg.Transcription.APIKey)
	v.SetDefault("transcription.base_url", cfg.Transcription.BaseURL)
	v.SetDefault("transcription.model", cfg.Transcription.Model)
	v.SetDefault("transcription.timeout_seconds", cfg.Transcription.TimeoutSeconds)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.max_upload_bytes", cfg.Server.MaxUploadBytes)
	v.SetDefault("server.voice_rate_per_minute", cfg.Server.VoiceRatePerMinute)
	v.SetDefault("server.shutdown_timeout_seconds", cfg.Server.ShutdownTimeoutSeconds)
	v.SetDefault("server.trusted_proxies", cfg.Server.TrustedProxies)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)
}

// applyDerived fills paths from DataDir and the shared OpenAI key.
func applyDerived(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, appDir)
	}

	if cfg.Memory.File == "" {
		cfg.Memory.File = filepath.Join(cfg.DataDir, DefaultMemoryFile)
	}
	if cfg.Memory.CacheDB == "" {
		cfg.Memory.CacheDB = filepath.Join(cfg.DataDir, "embeddings.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "mnemo.log")
	}

	// Both models default to the standard OpenAI key.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
		if cfg.Transcription.APIKey == "" {
			cfg.Transcription.APIKey = key
		}
	}
	if cfg.Transcription.APIKey == "" {
		cfg.Transcription.APIKey = cfg.Embedding.APIKey
	}

	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("data_dir", cfg.DataDir)
	v.Set("memory", cfg.Memory)
	v.Set("search", cfg.Search)
	v.Set("embedding", cfg.Embedding)
	v.Set("transcription", cfg.Transcription)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	// The file may hold API keys.
	return os.Chmod(configPath, 0600)
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, appDir, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
