package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSimilarityThreshold is the cosine similarity an entry must exceed
	// to count as a semantic match.
	DefaultSimilarityThreshold = 0.4

	DefaultBatchSize      = 256
	DefaultMaxConcurrency = 2
)

// FailurePolicy decides what a search does when the semantic phase fails.
type FailurePolicy string

const (
	// PolicyDegrade returns keyword matches only and flags the result as degraded.
	PolicyDegrade FailurePolicy = "degrade"
	// PolicyFail fails the whole search with ErrEmbeddingUnavailable.
	PolicyFail FailurePolicy = "fail"
)

// ParseFailurePolicy parses a policy name; the empty string means PolicyDegrade.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDegrade:
		return PolicyDegrade, nil
	case PolicyFail:
		return PolicyFail, nil
	}
	return "", fmt.Errorf("invalid embedding failure policy %q (must be: degrade, fail)", s)
}

// SimilarityFunc scores two embeddings; CosineSimilarity is the default.
type SimilarityFunc func(a, b []float32) float64

// SearchResult is the set of memories matching a query. Each distinct text
// appears once, except for a blank query which returns the corpus verbatim.
// The order carries no relevance meaning.
type SearchResult struct {
	Memories []string `json:"memories"`
	// Degraded is set when the semantic phase failed and only keyword
	// matches were returned.
	Degraded bool `json:"degraded"`
}

// EngineConfig holds search engine configuration
type EngineConfig struct {
	Embedder EmbeddingProvider
	Cache    EmbeddingCache // Optional, defaults to an in-memory cache

	// Threshold is the exclusive lower bound on similarity for a semantic
	// match. Nil means DefaultSimilarityThreshold; any set value, zero
	// included, is used as is.
	Threshold  *float64
	Similarity SimilarityFunc
	OnError    FailurePolicy

	BatchSize      int
	MaxConcurrency int
	Logger         zerolog.Logger
}

// EngineStats reports embedding cache effectiveness.
type EngineStats struct {
	CacheEntries int      `json:"cache_entries"`
	CacheHits    int64    `json:"cache_hits"`
	CacheMisses  int64    `json:"cache_misses"`
	CacheHitRate *float64 `json:"cache_hit_rate,omitempty"`
}

// Engine resolves queries against a corpus by keyword containment and
// embedding similarity, and returns the union of both.
type Engine struct {
	embedder       EmbeddingProvider
	cache          EmbeddingCache
	threshold      float64
	similarity     SimilarityFunc
	policy         FailurePolicy
	batchSize      int
	maxConcurrency int
	logger         zerolog.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewEngine creates a new search engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedding provider is required")
	}

	policy, err := ParseFailurePolicy(string(cfg.OnError))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		embedder:       cfg.Embedder,
		cache:          cfg.Cache,
		threshold:      DefaultSimilarityThreshold,
		similarity:     cfg.Similarity,
		policy:         policy,
		batchSize:      cfg.BatchSize,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         cfg.Logger.With().Str("component", "engine").Logger(),
	}

	if e.cache == nil {
		e.cache = NewMemoryCache()
	}
	if cfg.Threshold != nil {
		e.threshold = *cfg.Threshold
	}
	if e.similarity == nil {
		e.similarity = CosineSimilarity
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	if e.maxConcurrency <= 0 {
		e.maxConcurrency = DefaultMaxConcurrency
	}

	return e, nil
}

// Threshold returns the similarity threshold in effect.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Search matches query against corpus.
//
// A blank query returns the whole corpus in order. An empty corpus returns an
// empty result without calling the embedder. Otherwise the result is the union
// of entries containing the query case-insensitively and entries whose
// similarity to the query is strictly above the threshold.
func (e *Engine) Search(ctx context.Context, query string, corpus []string) (SearchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.String("query", query),
		attribute.Int("corpus", len(corpus)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	start := time.Now()
	defer func() {
		observability.RecordMemorySearch(time.Since(start))
	}()

	if strings.TrimSpace(query) == "" {
		all := make([]string, len(corpus))
		copy(all, corpus)
		return SearchResult{Memories: all}, nil
	}

	if len(corpus) == 0 {
		return SearchResult{Memories: []string{}}, nil
	}

	lexical := lexicalMatches(query, corpus)

	semantic, err := e.semanticMatches(ctx, query, corpus)
	degraded := false
	if err != nil {
		span.RecordError(err)
		if e.policy == PolicyFail {
			span.SetStatus(codes.Error, "semantic search failed")
			logger.Error().Err(err).Msg("Semantic search failed")
			return SearchResult{}, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
		}

		logger.Warn().Err(err).Msg("Semantic search failed, using keyword matches only")
		observability.RecordSearchDegraded()
		degraded = true
		semantic = nil
	}

	memories := union(corpus, lexical, semantic)
	observability.RecordSearchMatches(len(lexical), len(semantic))

	span.SetAttributes(
		attribute.Int("lexical_matches", len(lexical)),
		attribute.Int("semantic_matches", len(semantic)),
		attribute.Bool("degraded", degraded),
	)

	logger.Debug().
		Str("query", query).
		Int("lexical", len(lexical)).
		Int("semantic", len(semantic)).
		Int("results", len(memories)).
		Msg("Search completed")

	return SearchResult{Memories: memories, Degraded: degraded}, nil
}

// lexicalMatches returns the entries containing query, ignoring case.
func lexicalMatches(query string, corpus []string) map[string]struct{} {
	needle := strings.ToLower(query)
	matches := make(map[string]struct{})
	for _, entry := range corpus {
		if strings.Contains(strings.ToLower(entry), needle) {
			matches[entry] = struct{}{}
		}
	}
	return matches
}

// semanticMatches returns the entries whose similarity to query exceeds the threshold.
func (e *Engine) semanticMatches(ctx context.Context, query string, corpus []string) (map[string]struct{}, error) {
	entries := distinct(corpus)

	vectors, err := e.embedAll(ctx, entries)
	if err != nil {
		return nil, err
	}

	queryVector, err := e.embedder.GenerateEmbedding(ctx, query)
	observability.RecordEmbeddingRequest(1, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	matches := make(map[string]struct{})
	for _, entry := range entries {
		if e.similarity(queryVector, vectors[entry]) > e.threshold {
			matches[entry] = struct{}{}
		}
	}
	return matches, nil
}

// Warm embeds and caches any of texts not cached yet.
func (e *Engine) Warm(ctx context.Context, texts []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.warm", attribute.Int("texts", len(texts)))
	defer span.End()

	entries := make([]string, 0, len(texts))
	for _, text := range distinct(texts) {
		if text != "" {
			entries = append(entries, text)
		}
	}

	if _, err := e.embedAll(ctx, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// embedAll returns a vector for every text, embedding only cache misses.
func (e *Engine) embedAll(ctx context.Context, texts []string) (map[string][]float32, error) {
	model := e.embedder.Model()
	vectors := make(map[string][]float32, len(texts))

	var missing []string
	for _, text := range texts {
		if v, ok := e.cache.Get(CacheKey(model, text)); ok {
			vectors[text] = v
			continue
		}
		missing = append(missing, text)
	}

	hits, misses := len(texts)-len(missing), len(missing)
	e.cacheHits.Add(int64(hits))
	e.cacheMisses.Add(int64(misses))
	observability.RecordEmbeddingCache(hits, misses)

	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := e.embedBatches(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to generate corpus embeddings: %w", err)
	}

	for i, text := range missing {
		vectors[text] = fresh[i]
		if err := e.cache.Put(CacheKey(model, text), fresh[i]); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to cache embedding")
		}
	}
	observability.SetEmbeddingCacheEntries(e.cache.Len())

	return vectors, nil
}

// embedBatches embeds texts in batches of batchSize with at most
// maxConcurrency requests in flight. The result is aligned with texts.
func (e *Engine) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		g.Go(func() error {
			vectors, err := e.embedder.GenerateEmbeddings(gctx, batch)
			observability.RecordEmbeddingRequest(len(batch), err == nil)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(batch))
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns cache statistics
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		CacheEntries: e.cache.Len(),
		CacheHits:    e.cacheHits.Load(),
		CacheMisses:  e.cacheMisses.Load(),
	}

	total := stats.CacheHits + stats.CacheMisses
	if total > 0 {
		rate := float64(stats.CacheHits) / float64(total)
		stats.CacheHitRate = &rate
	}
	return stats
}

// Close releases the embedding cache.
func (e *Engine) Close() error {
	return e.cache.Close()
}

// distinct returns texts without duplicates, keeping first occurrences in order.
func distinct(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	out := make([]string, 0, len(texts))
	for _, text := range texts {
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

// union collects the entries present in either set, once each, in corpus order.
func union(corpus []string, a, b map[string]struct{}) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, entry := range corpus {
		if _, ok := seen[entry]; ok {
			continue
		}
		_, inA := a[entry]
		_, inB := b[entry]
		if inA || inB {
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	return out
}
