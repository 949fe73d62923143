package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// EmbeddingProvider generates vector embeddings from text
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// GenerateEmbeddings returns one vector per input, aligned by index.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	// Model names the embedding space; vectors from different models never mix.
	Model() string
}

// OpenAIConfig configures the OpenAI-compatible model clients.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // Optional, for OpenAI-compatible servers
	Model   string
	Timeout time.Duration
}

func (c OpenAIConfig) requestOptions() []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		// Model calls are single-attempt; failures surface to the search policy.
		option.WithMaxRetries(0),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	if c.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.Timeout))
	}
	return opts
}

// OpenAIEmbedder implements EmbeddingProvider for the OpenAI embeddings API
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates a new OpenAI embedding provider
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("embedding api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(cfg.requestOptions()...),
		model:  cfg.Model,
	}, nil
}

func (p *OpenAIEmbedder) Model() string {
	return p.model
}

func (p *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *OpenAIEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", idx)
		}

		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		embeddings[idx] = vec
	}

	for i, vec := range embeddings {
		if vec == nil {
			return nil, fmt.Errorf("embedding response is missing index %d", i)
		}
	}

	return embeddings, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Mismatched dimensions and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp rounding drift.
	return math.Max(-1, math.Min(1, sim))
}
