package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultTranscriptionModel is used when no model is configured.
const DefaultTranscriptionModel = "whisper-1"

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// OpenAITranscriber implements Transcriber with the OpenAI audio transcription API.
type OpenAITranscriber struct {
	client openai.Client
	model  string
}

// NewOpenAITranscriber creates a new OpenAI transcriber
func NewOpenAITranscriber(cfg OpenAIConfig) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("transcription api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultTranscriptionModel
	}

	return &OpenAITranscriber{
		client: openai.NewClient(cfg.requestOptions()...),
		model:  cfg.Model,
	}, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "recording.webm"
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filepath.Base(filename), audioContentType(filename)),
		Model: openai.AudioModel(t.model),
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

func audioContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".webm":
		return "audio/webm"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
