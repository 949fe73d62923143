// Package memory stores short text memories in an append-only line file and
// answers free-text queries with hybrid search.
//
// Invariants:
// - The store only ever appends; one line per memory, insertion order preserved.
// - A query matches an entry when it is a case-insensitive substring of it, or when
//   the cosine similarity of their embeddings is strictly above the configured threshold.
// - A blank query returns the whole corpus in order; an empty corpus never reaches the embedder.
// - Embeddings are cached by model and content hash and are only ever added to.
//
// Usage:
//
//	store, _ := memory.NewStore("/data/memories.txt", logger)
//	models := memory.NewModels(memory.ModelsConfig{NewEmbedder: newEmbedder, Logger: logger})
//	engine, _ := memory.NewEngine(memory.EngineConfig{Embedder: models.Embedder(), Logger: logger})
//	svc, _ := memory.NewService(memory.ServiceConfig{Store: store, Engine: engine, Models: models, Logger: logger})
//	_ = svc.Append(ctx, "I left my keys at the gym")
//	result, _ := svc.Search(ctx, "keys")
//	_ = result.Memories
package memory
