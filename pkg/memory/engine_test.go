package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scoredEngine builds an engine whose similarity for each entry is fixed by
// scores. Entries missing from scores score 0.
func scoredEngine(t *testing.T, scores map[string]float64, cfg EngineConfig) (*Engine, *fakeEmbedder) {
	t.Helper()

	vectors := make(map[string][]float32, len(scores))
	byID := make(map[int]float64, len(scores))
	id := 1
	for text, score := range scores {
		vectors[text] = []float32{float32(id)}
		byID[id] = score
		id++
	}

	embedder := newFakeEmbedder(vectors)
	cfg.Embedder = embedder
	cfg.Logger = zerolog.Nop()
	cfg.Similarity = func(_, entry []float32) float64 {
		if len(entry) != 1 {
			return 0
		}
		return byID[int(entry[0])]
	}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return engine, embedder
}

func TestNewEngine(t *testing.T) {
	t.Run("requires embedder", func(t *testing.T) {
		_, err := NewEngine(EngineConfig{})
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		engine, err := NewEngine(EngineConfig{Embedder: newFakeEmbedder(nil)})
		require.NoError(t, err)
		assert.Equal(t, DefaultSimilarityThreshold, engine.Threshold())
		assert.Equal(t, PolicyDegrade, engine.policy)
		assert.Equal(t, DefaultBatchSize, engine.batchSize)
		assert.Equal(t, DefaultMaxConcurrency, engine.maxConcurrency)
	})

	t.Run("invalid policy", func(t *testing.T) {
		_, err := NewEngine(EngineConfig{Embedder: newFakeEmbedder(nil), OnError: "retry"})
		assert.Error(t, err)
	})
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    FailurePolicy
		wantErr bool
	}{
		{"", PolicyDegrade, false},
		{"degrade", PolicyDegrade, false},
		{" FAIL ", PolicyFail, false},
		{"ignore", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngineSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("blank query returns the corpus", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{})
		corpus := []string{"b", "a", "b"}

		for _, query := range []string{"", "   ", "\t\n"} {
			result, err := engine.Search(ctx, query, corpus)
			require.NoError(t, err)
			assert.Equal(t, corpus, result.Memories)
			assert.False(t, result.Degraded)
		}
		assert.Zero(t, embedder.callCount())
	})

	t.Run("empty corpus makes no embedding call", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{})

		result, err := engine.Search(ctx, "anything", []string{})
		require.NoError(t, err)
		assert.NotNil(t, result.Memories)
		assert.Empty(t, result.Memories)
		assert.Zero(t, embedder.callCount())

		result, err = engine.Search(ctx, "anything", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Memories)
		assert.Zero(t, embedder.callCount())
	})

	t.Run("keyword matches ignore case", func(t *testing.T) {
		engine, _ := scoredEngine(t, nil, EngineConfig{})
		corpus := []string{"Buy MILK", "call mom", "milkshake recipe"}

		result, err := engine.Search(ctx, "Milk", corpus)
		require.NoError(t, err)
		assert.Equal(t, []string{"Buy MILK", "milkshake recipe"}, result.Memories)
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		engine, _ := scoredEngine(t, map[string]float64{
			"at threshold":    0.4,
			"just above":      0.4000001,
			"below threshold": 0.39,
		}, EngineConfig{})
		corpus := []string{"at threshold", "just above", "below threshold"}

		result, err := engine.Search(ctx, "zzz", corpus)
		require.NoError(t, err)
		assert.Equal(t, []string{"just above"}, result.Memories)
	})

	t.Run("configured threshold", func(t *testing.T) {
		threshold := 0.7
		engine, _ := scoredEngine(t, map[string]float64{
			"close": 0.8,
			"near":  0.6,
		}, EngineConfig{Threshold: &threshold})

		result, err := engine.Search(ctx, "zzz", []string{"close", "near"})
		require.NoError(t, err)
		assert.Equal(t, []string{"close"}, result.Memories)
	})

	t.Run("zero threshold is kept", func(t *testing.T) {
		threshold := 0.0
		engine, _ := scoredEngine(t, map[string]float64{
			"faint":     0.01,
			"unrelated": 0,
			"opposite":  -0.3,
		}, EngineConfig{Threshold: &threshold})
		assert.Equal(t, 0.0, engine.Threshold())

		result, err := engine.Search(ctx, "zzz", []string{"faint", "unrelated", "opposite"})
		require.NoError(t, err)
		assert.Equal(t, []string{"faint"}, result.Memories)
	})

	t.Run("union without duplicates", func(t *testing.T) {
		engine, _ := scoredEngine(t, map[string]float64{
			"coffee with anna": 0.9,
			"espresso beans":   0.7,
		}, EngineConfig{})
		corpus := []string{"coffee with anna", "espresso beans", "coffee with anna", "tax return"}

		result, err := engine.Search(ctx, "coffee", corpus)
		require.NoError(t, err)
		assert.Equal(t, []string{"coffee with anna", "espresso beans"}, result.Memories)
	})

	t.Run("keyword matches survive a low score", func(t *testing.T) {
		engine, _ := scoredEngine(t, map[string]float64{
			"I left my keys at the gym":        0.1,
			"Dentist appointment next Tuesday": 0.05,
		}, EngineConfig{})
		corpus := []string{"I left my keys at the gym", "Dentist appointment next Tuesday"}

		result, err := engine.Search(ctx, "keys", corpus)
		require.NoError(t, err)
		assert.Equal(t, []string{"I left my keys at the gym"}, result.Memories)
	})

	t.Run("semantic match without keyword overlap", func(t *testing.T) {
		corpus := []string{"I feel anxious about the exam"}

		similar, _ := scoredEngine(t, map[string]float64{corpus[0]: 0.72}, EngineConfig{})
		result, err := similar.Search(ctx, "nervous about a test", corpus)
		require.NoError(t, err)
		assert.Equal(t, corpus, result.Memories)

		distant, _ := scoredEngine(t, map[string]float64{corpus[0]: 0.2}, EngineConfig{})
		result, err = distant.Search(ctx, "nervous about a test", corpus)
		require.NoError(t, err)
		assert.Empty(t, result.Memories)
	})

	t.Run("embedding failure degrades to keyword matches", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{})
		embedder.err = errProviderDown

		result, err := engine.Search(ctx, "milk", []string{"buy milk", "call mom"})
		require.NoError(t, err)
		assert.True(t, result.Degraded)
		assert.Equal(t, []string{"buy milk"}, result.Memories)
	})

	t.Run("embedding failure fails the search", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{OnError: PolicyFail})
		embedder.err = errProviderDown

		_, err := engine.Search(ctx, "milk", []string{"buy milk"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
		assert.ErrorIs(t, err, errProviderDown)
	})

	t.Run("nil context", func(t *testing.T) {
		engine, _ := scoredEngine(t, nil, EngineConfig{})

		//nolint:staticcheck // nil context is tolerated
		result, err := engine.Search(nil, "a", []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, result.Memories)
	})
}

func TestEngineCache(t *testing.T) {
	ctx := context.Background()

	t.Run("corpus embeddings are reused", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{})
		corpus := []string{"one", "two", "one"}

		_, err := engine.Search(ctx, "x", corpus)
		require.NoError(t, err)
		// One batch for the distinct entries plus one for the query.
		assert.Equal(t, 2, embedder.callCount())
		assert.ElementsMatch(t, []string{"one", "two", "x"}, embedder.embedded)

		_, err = engine.Search(ctx, "y", corpus)
		require.NoError(t, err)
		assert.Equal(t, 3, embedder.callCount())

		stats := engine.Stats()
		assert.Equal(t, 2, stats.CacheEntries)
		assert.Equal(t, int64(2), stats.CacheHits)
		assert.Equal(t, int64(2), stats.CacheMisses)
		require.NotNil(t, stats.CacheHitRate)
		assert.InDelta(t, 0.5, *stats.CacheHitRate, 1e-9)
	})

	t.Run("warm fills the cache", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{})

		require.NoError(t, engine.Warm(ctx, []string{"a", "b", "a", ""}))
		assert.Equal(t, 2, engine.Stats().CacheEntries)

		require.NoError(t, engine.Warm(ctx, []string{"a", "b"}))
		assert.Equal(t, 1, embedder.callCount())
	})

	t.Run("failed embeddings are not cached", func(t *testing.T) {
		engine, embedder := scoredEngine(t, nil, EngineConfig{})
		embedder.err = errProviderDown

		assert.Error(t, engine.Warm(ctx, []string{"a"}))
		assert.Zero(t, engine.Stats().CacheEntries)
	})

	t.Run("cache keys separate models", func(t *testing.T) {
		assert.NotEqual(t, CacheKey("m1", "text"), CacheKey("m2", "text"))
		assert.Equal(t, CacheKey("m1", "text"), CacheKey("m1", "text"))
	})

	t.Run("stats before any lookup", func(t *testing.T) {
		engine, _ := scoredEngine(t, nil, EngineConfig{})
		assert.Nil(t, engine.Stats().CacheHitRate)
	})
}

func TestEngineBatching(t *testing.T) {
	engine, embedder := scoredEngine(t, nil, EngineConfig{BatchSize: 3, MaxConcurrency: 2})

	corpus := make([]string, 8)
	for i := range corpus {
		corpus[i] = fmt.Sprintf("entry %d", i)
	}

	require.NoError(t, engine.Warm(context.Background(), corpus))
	assert.ElementsMatch(t, []int{3, 3, 2}, embedder.batchSizes)
	assert.ElementsMatch(t, corpus, embedder.embedded)
	assert.Equal(t, len(corpus), engine.Stats().CacheEntries)
}

func TestEngineBatchMismatch(t *testing.T) {
	engine, err := NewEngine(EngineConfig{Embedder: shortEmbedder{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	err = engine.Warm(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

// shortEmbedder drops the last vector of every batch.
type shortEmbedder struct{}

func (shortEmbedder) Model() string { return "short" }

func (shortEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (shortEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts)-1)
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}
