package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/mnemo.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/mnemo.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("HOME", tmpDir)

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()
		require.NoError(t, err)

		assert.Equal(t, 0.4, cfg.Search.SimilarityThreshold)
		assert.Equal(t, filepath.Join(tmpDir, ".mnemo"), cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, ".mnemo", "memories.txt"), cfg.Memory.File)
		assert.Equal(t, filepath.Join(tmpDir, ".mnemo", "embeddings.db"), cfg.Memory.CacheDB)
		assert.Equal(t, filepath.Join(tmpDir, ".mnemo", "mnemo.log"), cfg.Logging.File)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "mnemo.json")

		testConfig := `{
			"data_dir": "` + tmpDir + `",
			"search": {
				"similarity_threshold": 0.55,
				"on_embedding_error": "fail"
			},
			"embedding": {
				"api_key": "sk-test-key",
				"model": "text-embedding-3-large"
			},
			"server": {"port": 8081, "trusted_proxies": ["10.0.0.1", "172.16.0.0/12"]}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)

		assert.Equal(t, 0.55, cfg.Search.SimilarityThreshold)
		assert.Equal(t, "fail", cfg.Search.OnEmbeddingError)
		assert.True(t, cfg.Search.EmbedOnAppend, "unset keys keep defaults")
		assert.Equal(t, "sk-test-key", cfg.Embedding.APIKey)
		assert.Equal(t, "sk-test-key", cfg.Transcription.APIKey)
		assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
		assert.Equal(t, 256, cfg.Embedding.BatchSize)
		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Server.TrustedProxies)
		assert.Equal(t, filepath.Join(tmpDir, "memories.txt"), cfg.Memory.File)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("MNEMO_DATA_DIR", tmpDir)
		t.Setenv("MNEMO_SEARCH_SIMILARITY_THRESHOLD", "0.3")
		t.Setenv("MNEMO_SERVER_PORT", "9090")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()
		require.NoError(t, err)

		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, 0.3, cfg.Search.SimilarityThreshold)
		assert.Equal(t, 9090, cfg.Server.Port)
	})

	t.Run("OPENAI_API_KEY fallback", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("HOME", tmpDir)
		t.Setenv("OPENAI_API_KEY", "sk-from-env")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()
		require.NoError(t, err)

		assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
		assert.Equal(t, "sk-from-env", cfg.Transcription.APIKey)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	t.Run("save and reload", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nested", "mnemo.json")

		cfg := DefaultConfig()
		cfg.DataDir = tmpDir
		cfg.Embedding.APIKey = "sk-test-key"
		cfg.Search.SimilarityThreshold = 0.45
		cfg.Server.Port = 5050

		loader := NewLoader(configPath)
		require.NoError(t, loader.Save(cfg))

		info, err := os.Stat(configPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		loaded, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-test-key", loaded.Embedding.APIKey)
		assert.Equal(t, 0.45, loaded.Search.SimilarityThreshold)
		assert.Equal(t, 5050, loaded.Server.Port)
		assert.Equal(t, tmpDir, loaded.DataDir)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/mnemo.json")
		assert.Equal(t, "/custom/path/mnemo.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		t.Setenv("HOME", "/home/tester")
		path := NewLoader("").GetConfigPath()
		assert.Equal(t, filepath.Join("/home/tester", ".mnemo", "mnemo.json"), path)
	})
}
