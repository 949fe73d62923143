package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("applies answers", func(t *testing.T) {
		in := strings.NewReader("sk-new-key\n0.5\nfail\n8080\ndebug\n")
		var out bytes.Buffer

		cfg, err := NewWizard(in, &out).Run(DefaultConfig())
		require.NoError(t, err)

		assert.Equal(t, "sk-new-key", cfg.Embedding.APIKey)
		assert.Equal(t, "sk-new-key", cfg.Transcription.APIKey)
		assert.Equal(t, 0.5, cfg.Search.SimilarityThreshold)
		assert.Equal(t, "fail", cfg.Search.OnEmbeddingError)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Configuration complete!")
	})

	t.Run("re-prompts on invalid input", func(t *testing.T) {
		in := strings.NewReader("bad-key\nsk-ok\n7\n0.3\n\n\n\n")
		var out bytes.Buffer

		cfg, err := NewWizard(in, &out).Run(DefaultConfig())
		require.NoError(t, err)

		assert.Equal(t, "sk-ok", cfg.Embedding.APIKey)
		assert.Equal(t, 0.3, cfg.Search.SimilarityThreshold)
		assert.Equal(t, 2, strings.Count(out.String(), "Error:"))
	})

	t.Run("EOF keeps current values", func(t *testing.T) {
		base := DefaultConfig()
		base.Server.Port = 6000

		cfg, err := NewWizard(strings.NewReader(""), &bytes.Buffer{}).Run(base)
		require.NoError(t, err)

		assert.Equal(t, 6000, cfg.Server.Port)
		assert.Equal(t, 0.4, cfg.Search.SimilarityThreshold)
	})
}
