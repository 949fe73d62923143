package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	tracerName = "mnemo.memory"

	// maxLineSize bounds a single memory line when reading the store.
	maxLineSize = 16 * 1024 * 1024
)

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// NormalizeMemory strips surrounding whitespace and replaces line breaks,
// which the line-delimited store cannot represent, with spaces.
func NormalizeMemory(text string) string {
	return strings.TrimSpace(newlineReplacer.Replace(text))
}

// Store is an append-only, line-delimited memory file.
//
// Writers in this process serialize on mu; writers in other processes
// serialize through an advisory lock on the file itself.
type Store struct {
	path   string
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewStore creates a store backed by the file at path. The file is created
// lazily on first append; its directory is created immediately.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	return &Store{
		path:   path,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes text as one line at the end of the store. The text is
// normalized but not validated; rejecting blank input is the caller's job.
// ReadAll skips blank lines, so a blank append is written but never read back.
func (s *Store) Append(ctx context.Context, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.store.append",
		attribute.Int("length", len(text)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	line := NormalizeMemory(text) + "\n"

	s.mu.Lock()
	err := s.appendLine(line)
	s.mu.Unlock()

	observability.RecordMemoryAppend(time.Since(start), err == nil)

	if err != nil {
		logger.Error().Err(err).Str("path", s.path).Msg("Failed to append memory")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	logger.Debug().Str("path", s.path).Msg("Memory appended")
	return nil
}

func (s *Store) appendLine(line string) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := lockFile(f, true); err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	defer unlockFile(f)

	// One write per line so concurrent appenders never interleave inside a record.
	if _, err := f.WriteString(line); err != nil {
		return err
	}

	return f.Sync()
}

// ReadAll returns every stored memory in append order. A store that has
// never been written reads as empty.
func (s *Store) ReadAll(ctx context.Context) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.store.read_all")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.mu.RLock()
	memories, err := s.readLines()
	s.mu.RUnlock()

	if err != nil {
		logger.Error().Err(err).Str("path", s.path).Msg("Failed to read memories")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrStorageRead, err)
	}

	span.SetAttributes(attribute.Int("entries", len(memories)))
	observability.SetMemoryEntries(len(memories))
	return memories, nil
}

func (s *Store) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return nil, fmt.Errorf("failed to lock store: %w", err)
	}
	defer unlockFile(f)

	memories := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		memories = append(memories, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return memories, nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	memories, err := s.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(memories), nil
}
