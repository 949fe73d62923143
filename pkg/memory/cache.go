package memory

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// EmbeddingCache maps a cache key to an embedding vector. Entries are only
// ever added: stored memories never change, so neither do their vectors.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Put(key string, embedding []float32) error
	Len() int
	Close() error
}

// CacheKey identifies the embedding of text in the given model's space.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local EmbeddingCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

func (c *MemoryCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *MemoryCache) Put(key string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = embedding
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	return nil
}

// SQLiteCache persists embeddings across restarts so a fresh process does not
// re-embed the whole store. Reads are served from memory; writes go through
// to the database.
type SQLiteCache struct {
	db     *sql.DB
	mem    *MemoryCache
	logger zerolog.Logger
}

// NewSQLiteCache opens (or creates) the cache database at path and loads it.
func NewSQLiteCache(path string, logger zerolog.Logger) (*SQLiteCache, error) {
	if path == "" {
		return nil, errors.New("cache database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The memory map is the read path; one connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	c := &SQLiteCache{
		db:     db,
		mem:    NewMemoryCache(),
		logger: logger.With().Str("component", "embedding_cache").Logger(),
	}

	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := c.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load embedding cache: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err == nil {
		c.logger.Debug().Str("sqlite_vec", vecVersion).Msg("sqlite-vec available")
	}

	c.logger.Info().Int("entries", c.mem.Len()).Str("path", path).Msg("Embedding cache opened")
	return c, nil
}

func (c *SQLiteCache) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS embedding_cache (
			cache_key TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cache_created ON embedding_cache(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

func (c *SQLiteCache) load() error {
	rows, err := c.db.Query("SELECT cache_key, embedding, dimension FROM embedding_cache")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var blob []byte
		var dimension int
		if err := rows.Scan(&key, &blob, &dimension); err != nil {
			return err
		}

		embedding, err := deserializeFloat32(blob)
		if err != nil || len(embedding) != dimension {
			c.logger.Warn().Str("key", key).Msg("Skipping corrupt cached embedding")
			continue
		}
		c.mem.Put(key, embedding)
	}

	return rows.Err()
}

func (c *SQLiteCache) Get(key string) ([]float32, bool) {
	return c.mem.Get(key)
}

func (c *SQLiteCache) Put(key string, embedding []float32) error {
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO embedding_cache (cache_key, embedding, dimension, created_at) VALUES (?, ?, ?, ?)",
		key, blob, len(embedding), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}

	return c.mem.Put(key, embedding)
}

func (c *SQLiteCache) Len() int {
	return c.mem.Len()
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// deserializeFloat32 reads the little-endian float32 blob layout produced by
// sqlite_vec.SerializeFloat32.
func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(blob))
	}

	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}
