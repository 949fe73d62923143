package daemon

import (
	"fmt"
	"time"

	"github.com/harun/mnemo/internal/config"
	"github.com/harun/mnemo/pkg/memory"
	"github.com/rs/zerolog"
)

// NewMemoryService builds the memory service from configuration: store,
// embedding cache, lazily loaded models and the search engine.
func NewMemoryService(cfg *config.Config, log zerolog.Logger) (*memory.Service, error) {
	store, err := memory.NewStore(cfg.Memory.File, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	var cache memory.EmbeddingCache
	if cfg.Memory.CacheDB != "" {
		sqliteCache, err := memory.NewSQLiteCache(cfg.Memory.CacheDB, log)
		if err != nil {
			// Search still works without a durable cache, only slower.
			log.Warn().Err(err).Str("path", cfg.Memory.CacheDB).Msg("Failed to open embedding cache, using in-memory cache")
		} else {
			cache = sqliteCache
		}
	}

	models := memory.NewModels(memory.ModelsConfig{
		EmbeddingModel: cfg.Embedding.Model,
		NewEmbedder: func() (memory.EmbeddingProvider, error) {
			return memory.NewOpenAIEmbedder(memory.OpenAIConfig{
				APIKey:  cfg.Embedding.APIKey,
				BaseURL: cfg.Embedding.BaseURL,
				Model:   cfg.Embedding.Model,
				Timeout: seconds(cfg.Embedding.TimeoutSeconds),
			})
		},
		NewTranscriber: func() (memory.Transcriber, error) {
			return memory.NewOpenAITranscriber(memory.OpenAIConfig{
				APIKey:  cfg.Transcription.APIKey,
				BaseURL: cfg.Transcription.BaseURL,
				Model:   cfg.Transcription.Model,
				Timeout: seconds(cfg.Transcription.TimeoutSeconds),
			})
		},
		Logger: log,
	})

	threshold := cfg.Search.SimilarityThreshold
	engine, err := memory.NewEngine(memory.EngineConfig{
		Embedder:       models.Embedder(),
		Cache:          cache,
		Threshold:      &threshold,
		OnError:        memory.FailurePolicy(cfg.Search.OnEmbeddingError),
		BatchSize:      cfg.Embedding.BatchSize,
		MaxConcurrency: cfg.Embedding.MaxConcurrency,
		Logger:         log,
	})
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	return memory.NewService(memory.ServiceConfig{
		Store:         store,
		Engine:        engine,
		Models:        models,
		EmbedOnAppend: cfg.Search.EmbedOnAppend,
		Logger:        log,
	})
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
