package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// warmTimeout bounds a background cache warm-up triggered by the watcher.
const warmTimeout = 2 * time.Minute

// ServiceConfig holds memory service configuration
type ServiceConfig struct {
	Store  *Store
	Engine *Engine
	Models *Models // Optional, required only for voice memories

	// EmbedOnAppend embeds each new memory right after it is stored so the
	// next search finds it cached.
	EmbedOnAppend bool
	Logger        zerolog.Logger
}

// Status represents the current state of the memory service
type Status struct {
	Entries           int      `json:"entries"`
	StorePath         string   `json:"store_path"`
	CacheEntries      int      `json:"cache_entries"`
	CacheHitRate      *float64 `json:"cache_hit_rate,omitempty"`
	Threshold         float64  `json:"similarity_threshold"`
	EmbedderLoaded    bool     `json:"embedder_loaded"`
	TranscriberLoaded bool     `json:"transcriber_loaded"`
	Watching          bool     `json:"watching"`
}

// Service is the entry point adapters use: append, search and list memories.
type Service struct {
	store         *Store
	engine        *Engine
	models        *Models
	embedOnAppend bool
	logger        zerolog.Logger

	mu      sync.Mutex
	watcher *FileWatcher
}

// NewService creates a new memory service
func NewService(cfg ServiceConfig) (*Service, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("search engine is required")
	}

	return &Service{
		store:         cfg.Store,
		engine:        cfg.Engine,
		models:        cfg.Models,
		embedOnAppend: cfg.EmbedOnAppend,
		logger:        cfg.Logger,
	}, nil
}

// Append stores text as a new memory. Blank text is rejected with
// ErrEmptyMemory and nothing is written.
func (s *Service) Append(ctx context.Context, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.append")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	text = NormalizeMemory(text)
	if text == "" {
		return ErrEmptyMemory
	}

	if err := s.store.Append(ctx, text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Info().Int("length", len(text)).Msg("Memory added")

	if s.embedOnAppend {
		if err := s.engine.Warm(ctx, []string{text}); err != nil {
			logger.Warn().Err(err).Msg("Failed to embed new memory, it will be embedded on next search")
		}
	}

	return nil
}

// AppendVoice transcribes audio and stores the transcription as a memory.
// It returns the stored text, or ErrEmptyTranscription when nothing was heard.
func (s *Service) AppendVoice(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.append_voice",
		attribute.String("filename", filename),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if s.models == nil {
		return "", fmt.Errorf("%w: no transcriber configured", ErrModelUnavailable)
	}

	start := time.Now()
	text, err := s.models.Transcriber().Transcribe(ctx, audio, filename)
	observability.RecordTranscription(time.Since(start), err == nil)
	if err != nil {
		logger.Error().Err(err).Msg("Transcription failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	text = NormalizeMemory(text)
	if text == "" {
		logger.Info().Msg("Transcription was empty, nothing to add")
		return "", ErrEmptyTranscription
	}

	if err := s.Append(ctx, text); err != nil {
		return "", err
	}

	return text, nil
}

// Search runs a hybrid search over every stored memory.
func (s *Service) Search(ctx context.Context, query string) (SearchResult, error) {
	memories, err := s.store.ReadAll(ctx)
	if err != nil {
		return SearchResult{}, err
	}
	return s.engine.Search(ctx, query, memories)
}

// List returns every stored memory in insertion order.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.ReadAll(ctx)
}

// Watch keeps the embedding cache warm when other processes append to the store.
func (s *Service) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	watcher, err := NewFileWatcher(s.store.Path(), s.logger, s.warmStore)
	if err != nil {
		return fmt.Errorf("failed to watch memory store: %w", err)
	}
	s.watcher = watcher

	s.logger.Info().Str("path", s.store.Path()).Msg("Watching memory store")
	return nil
}

// Warm embeds every stored memory missing from the cache.
func (s *Service) Warm(ctx context.Context) error {
	memories, err := s.store.ReadAll(ctx)
	if err != nil {
		return err
	}
	if err := s.engine.Warm(ctx, memories); err != nil {
		return err
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Int("entries", len(memories)).Msg("Embedding cache warmed")
	return nil
}

// warmStore is the watcher callback.
func (s *Service) warmStore() {
	ctx, cancel := context.WithTimeout(tracing.NewRequestContext(context.Background()), warmTimeout)
	defer cancel()

	if err := s.Warm(ctx); err != nil {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Msg("Cache warm-up failed")
	}
}

// Status returns current memory service status
func (s *Service) Status(ctx context.Context) Status {
	status := Status{
		StorePath: s.store.Path(),
		Threshold: s.engine.Threshold(),
	}

	if n, err := s.store.Count(ctx); err == nil {
		status.Entries = n
	}

	stats := s.engine.Stats()
	status.CacheEntries = stats.CacheEntries
	status.CacheHitRate = stats.CacheHitRate

	if s.models != nil {
		status.EmbedderLoaded, status.TranscriberLoaded = s.models.Loaded()
	}

	s.mu.Lock()
	status.Watching = s.watcher != nil
	s.mu.Unlock()

	return status
}

// Close stops the watcher and releases the embedding cache.
func (s *Service) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	var errs []error
	if watcher != nil {
		errs = append(errs, watcher.Stop())
	}
	errs = append(errs, s.engine.Close())

	return errors.Join(errs...)
}
