package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinlab/digital-twin/internal/apperr"
)

func fullConfig() *Config {
	cfg := &Config{
		VectorURL:           "https://example-vector.upstash.io",
		VectorToken:         "rw-secret",
		VectorReadOnlyToken: "ro-secret",
		GroqAPIKey:          "gsk-secret",
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("complete config has nothing missing", func(t *testing.T) {
		assert.Empty(t, fullConfig().Validate())
		assert.NoError(t, fullConfig().ValidateOrError())
	})

	t.Run("returns exactly the missing names", func(t *testing.T) {
		cfg := fullConfig()
		cfg.VectorToken = ""
		cfg.GroqAPIKey = "   "

		assert.Equal(t, []string{EnvVectorToken, EnvGroqAPIKey}, cfg.Validate())
	})

	t.Run("error lists every missing name", func(t *testing.T) {
		cfg := &Config{}
		cfg.applyDefaults()

		err := cfg.ValidateOrError()
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrConfiguration))

		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, []string{EnvVectorURL, EnvVectorToken, EnvVectorReadOnlyToken, EnvGroqAPIKey}, e.Missing)
		for _, name := range e.Missing {
			assert.Contains(t, err.Error(), name)
		}
	})

	t.Run("gemini provider requires the gemini key", func(t *testing.T) {
		cfg := fullConfig()
		cfg.LLMProvider = ProviderGemini

		assert.Equal(t, []string{EnvGeminiAPIKey}, cfg.Validate())
	})
}

func TestPrintStatusNeverShowsSecrets(t *testing.T) {
	cfg := fullConfig()
	cfg.VectorReadOnlyToken = ""

	var buf bytes.Buffer
	cfg.PrintStatus(&buf)
	out := buf.String()

	assert.Contains(t, out, EnvVectorURL+": ✓ Set")
	assert.Contains(t, out, EnvVectorReadOnlyToken+": ✗ Missing")
	assert.NotContains(t, out, "rw-secret")
	assert.NotContains(t, out, "gsk-secret")
	assert.NotContains(t, out, "example-vector")
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvVectorURL, "https://env.upstash.io")
	t.Setenv(EnvVectorToken, "rw")
	t.Setenv(EnvVectorReadOnlyToken, "ro")
	t.Setenv(EnvGroqAPIKey, "key")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("HTTP_PORT", "9090")

	dir := t.TempDir()
	path := filepath.Join(dir, "twin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag_top_k: 5\nrequest_timeout: 10s\nhttp_port: \"7000\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.upstash.io", cfg.VectorURL)
	assert.Equal(t, "9090", cfg.HTTPPort, "environment overrides file")
	assert.Equal(t, ProviderGroq, cfg.LLMProvider)
	assert.Equal(t, DefaultGroqModel, cfg.LLMModel)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Empty(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{LLMProvider: " Gemini "}
	cfg.applyDefaults()

	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, DefaultGeminiModel, cfg.LLMModel)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, EnvGeminiAPIKey, cfg.LLMKeyName())
}
