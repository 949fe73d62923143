package memory

import "errors"

var (
	// ErrEmptyMemory is returned when a memory is blank after normalization.
	// Adapters drop such input silently.
	ErrEmptyMemory = errors.New("memory text is empty")

	// ErrEmptyTranscription is returned when transcription produced no text.
	ErrEmptyTranscription = errors.New("transcription produced no text")

	ErrStorageWrite = errors.New("failed to write memory store")
	ErrStorageRead  = errors.New("failed to read memory store")

	// ErrEmbeddingUnavailable is returned by a search when the semantic phase
	// fails and the engine is configured to fail instead of degrading.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")

	// ErrModelUnavailable wraps a model initialization failure.
	ErrModelUnavailable = errors.New("model unavailable")
)
