package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format. An empty key is allowed: models
// load lazily and report the missing key when first used.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return nil
	}

	switch provider {
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates a model provider name
func (v *Validator) ValidateProvider(provider string) error {
	if provider != "openai" {
		return fmt.Errorf("invalid provider %q (must be: openai)", provider)
	}
	return nil
}

// ValidateBaseURL validates an optional OpenAI-compatible endpoint
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", raw)
	}
	return nil
}

// ValidateThreshold validates the semantic similarity threshold
func (v *Validator) ValidateThreshold(threshold float64) error {
	if threshold <= -1 || threshold >= 1 {
		return fmt.Errorf("similarity threshold must be within (-1, 1), got %v", threshold)
	}
	return nil
}

// ValidateTrustedProxy validates a proxy given as an IP or a CIDR
func (v *Validator) ValidateTrustedProxy(proxy string) error {
	proxy = strings.TrimSpace(proxy)
	if strings.Contains(proxy, "/") {
		if _, err := netip.ParsePrefix(proxy); err != nil {
			return fmt.Errorf("invalid trusted proxy %q", proxy)
		}
		return nil
	}
	if _, err := netip.ParseAddr(proxy); err != nil {
		return fmt.Errorf("invalid trusted proxy %q", proxy)
	}
	return nil
}

// ValidateFailurePolicy validates the embedding failure policy
func (v *Validator) ValidateFailurePolicy(policy string) error {
	switch policy {
	case "", "degrade", "fail":
		return nil
	}
	return fmt.Errorf("invalid on_embedding_error %q (must be: degrade, fail)", policy)
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if strings.ToLower(level) == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if strings.TrimSpace(cfg.Memory.File) == "" {
		errors = append(errors, fmt.Errorf("memory.file is required"))
	}

	if err := v.ValidateThreshold(cfg.Search.SimilarityThreshold); err != nil {
		errors = append(errors, fmt.Errorf("search: %w", err))
	}
	if err := v.ValidateFailurePolicy(cfg.Search.OnEmbeddingError); err != nil {
		errors = append(errors, fmt.Errorf("search: %w", err))
	}

	// Embedding
	if err := v.ValidateProvider(cfg.Embedding.Provider); err != nil {
		errors = append(errors, fmt.Errorf("embedding: %w", err))
	}
	if err := v.ValidateAPIKey(cfg.Embedding.APIKey, cfg.Embedding.Provider); err != nil {
		errors = append(errors, fmt.Errorf("embedding: %w", err))
	}
	if err := v.ValidateBaseURL(cfg.Embedding.BaseURL); err != nil {
		errors = append(errors, fmt.Errorf("embedding: %w", err))
	}
	if strings.TrimSpace(cfg.Embedding.Model) == "" {
		errors = append(errors, fmt.Errorf("embedding: model is required"))
	}
	if cfg.Embedding.BatchSize < 0 {
		errors = append(errors, fmt.Errorf("embedding.batch_size must be >= 0"))
	}
	if cfg.Embedding.MaxConcurrency < 0 {
		errors = append(errors, fmt.Errorf("embedding.max_concurrency must be >= 0"))
	}

	// Transcription
	if err := v.ValidateProvider(cfg.Transcription.Provider); err != nil {
		errors = append(errors, fmt.Errorf("transcription: %w", err))
	}
	if err := v.ValidateAPIKey(cfg.Transcription.APIKey, cfg.Transcription.Provider); err != nil {
		errors = append(errors, fmt.Errorf("transcription: %w", err))
	}
	if err := v.ValidateBaseURL(cfg.Transcription.BaseURL); err != nil {
		errors = append(errors, fmt.Errorf("transcription: %w", err))
	}

	// Server
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errors = append(errors, fmt.Errorf("server.max_upload_bytes must be > 0"))
	}
	if cfg.Server.VoiceRatePerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.voice_rate_per_minute must be >= 0"))
	}
	for _, proxy := range cfg.Server.TrustedProxies {
		if err := v.ValidateTrustedProxy(proxy); err != nil {
			errors = append(errors, fmt.Errorf("server: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be within [0, 1]"))
	}

	return errors
}
