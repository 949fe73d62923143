package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EmbedderFactory builds the embedding capability. It runs at most once per Models.
type EmbedderFactory func() (EmbeddingProvider, error)

// TranscriberFactory builds the transcription capability. It runs at most once per Models.
type TranscriberFactory func() (Transcriber, error)

// ModelsConfig configures the model holder.
type ModelsConfig struct {
	// EmbeddingModel names the embedding space before the embedder is loaded,
	// so cache keys can be computed without initializing it.
	EmbeddingModel string
	NewEmbedder    EmbedderFactory
	NewTranscriber TranscriberFactory
	Logger         zerolog.Logger
}

// Models owns the process-wide model capabilities. Each one is initialized on
// first use, held for the life of the process and never torn down. A failed
// initialization is remembered and reported on every later use.
type Models struct {
	cfg    ModelsConfig
	logger zerolog.Logger

	embedderOnce   sync.Once
	embedder       EmbeddingProvider
	embedderErr    error
	embedderLoaded atomic.Bool

	transcriberOnce   sync.Once
	transcriber       Transcriber
	transcriberErr    error
	transcriberLoaded atomic.Bool
}

// NewModels creates a model holder. Nothing is loaded until first use.
func NewModels(cfg ModelsConfig) *Models {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	return &Models{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "models").Logger(),
	}
}

// LoadEmbedder returns the embedding capability, initializing it on first call.
func (m *Models) LoadEmbedder() (EmbeddingProvider, error) {
	m.embedderOnce.Do(func() {
		if m.cfg.NewEmbedder == nil {
			m.embedderErr = fmt.Errorf("%w: no embedder configured", ErrModelUnavailable)
			return
		}

		m.logger.Info().Str("model", m.cfg.EmbeddingModel).Msg("Loading embedding model for the first time")
		embedder, err := m.cfg.NewEmbedder()
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to load embedding model")
			m.embedderErr = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
			return
		}
		m.embedder = embedder
		m.embedderLoaded.Store(true)
		m.logger.Info().Msg("Embedding model loaded")
	})
	return m.embedder, m.embedderErr
}

// LoadTranscriber returns the transcription capability, initializing it on first call.
func (m *Models) LoadTranscriber() (Transcriber, error) {
	m.transcriberOnce.Do(func() {
		if m.cfg.NewTranscriber == nil {
			m.transcriberErr = fmt.Errorf("%w: no transcriber configured", ErrModelUnavailable)
			return
		}

		m.logger.Info().Msg("Loading transcription model for the first time")
		transcriber, err := m.cfg.NewTranscriber()
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to load transcription model")
			m.transcriberErr = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
			return
		}
		m.transcriber = transcriber
		m.transcriberLoaded.Store(true)
		m.logger.Info().Msg("Transcription model loaded")
	})
	return m.transcriber, m.transcriberErr
}

// Loaded reports which capabilities have been initialized successfully.
func (m *Models) Loaded() (embedder, transcriber bool) {
	return m.embedderLoaded.Load(), m.transcriberLoaded.Load()
}

// Embedder returns an EmbeddingProvider that defers to the lazily loaded one.
func (m *Models) Embedder() EmbeddingProvider {
	return &lazyEmbedder{models: m}
}

// Transcriber returns a Transcriber that defers to the lazily loaded one.
func (m *Models) Transcriber() Transcriber {
	return &lazyTranscriber{models: m}
}

type lazyEmbedder struct {
	models *Models
}

func (l *lazyEmbedder) Model() string {
	return l.models.cfg.EmbeddingModel
}

func (l *lazyEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embedder, err := l.models.LoadEmbedder()
	if err != nil {
		return nil, err
	}
	return embedder.GenerateEmbedding(ctx, text)
}

func (l *lazyEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	embedder, err := l.models.LoadEmbedder()
	if err != nil {
		return nil, err
	}
	return embedder.GenerateEmbeddings(ctx, texts)
}

type lazyTranscriber struct {
	models *Models
}

func (l *lazyTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	transcriber, err := l.models.LoadTranscriber()
	if err != nil {
		return "", err
	}
	return transcriber.Transcribe(ctx, audio, filename)
}

// IsModelUnavailable reports whether err came from a model that failed to load.
func IsModelUnavailable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}
