package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("", "openai"))
	assert.NoError(t, v.ValidateAPIKey("sk-proj-abc", "openai"))
	assert.Error(t, v.ValidateAPIKey("abc", "openai"))
}

func TestValidateThreshold(t *testing.T) {
	v := NewValidator()

	for _, ok := range []float64{0, 0.4, -0.5, 0.99} {
		assert.NoError(t, v.ValidateThreshold(ok), "%v", ok)
	}
	for _, bad := range []float64{1, -1, 2} {
		assert.Error(t, v.ValidateThreshold(bad), "%v", bad)
	}
}

func TestValidateFailurePolicy(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateFailurePolicy(""))
	assert.NoError(t, v.ValidateFailurePolicy("degrade"))
	assert.NoError(t, v.ValidateFailurePolicy("fail"))
	assert.Error(t, v.ValidateFailurePolicy("ignore"))
}

func TestValidateBaseURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateBaseURL(""))
	assert.NoError(t, v.ValidateBaseURL("http://localhost:11434/v1"))
	assert.Error(t, v.ValidateBaseURL("ftp://example.com"))
	assert.Error(t, v.ValidateBaseURL("localhost"))
}

func TestValidateTrustedProxy(t *testing.T) {
	v := NewValidator()

	for _, ok := range []string{"10.0.0.1", "::1", "172.16.0.0/12", " 192.168.1.0/24 "} {
		assert.NoError(t, v.ValidateTrustedProxy(ok), ok)
	}
	for _, bad := range []string{"", "proxy.local", "10.0.0.0/40"} {
		assert.Error(t, v.ValidateTrustedProxy(bad), bad)
	}

	cfg := validConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.1", "bogus"}
	errs := v.ValidateConfig(cfg)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "bogus")
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("collects every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 0
		cfg.Logging.Level = "loud"
		cfg.Tracing.SampleRatio = 2

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 3)
	})

	t.Run("valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})
}
