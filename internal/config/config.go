package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/twinlab/digital-twin/internal/apperr"
)

// Environment variable names of the required credentials.
const (
	EnvVectorURL           = "UPSTASH_VECTOR_REST_URL"
	EnvVectorToken         = "UPSTASH_VECTOR_REST_TOKEN"
	EnvVectorReadOnlyToken = "UPSTASH_VECTOR_REST_READONLY_TOKEN"
	EnvGroqAPIKey          = "GROQ_API_KEY"
	EnvGeminiAPIKey        = "GEMINI_API_KEY"
)

const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"

	DefaultGroqModel      = "llama-3.1-8b-instant"
	DefaultGeminiModel    = "gemini-1.5-flash-latest"
	defaultHTTPPort       = "8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultRequestTimeout = 30 * time.Second
	defaultTopK           = 3
	defaultProfilePath    = "digitaltwin.json"
	defaultManifestPath   = "twin_manifest.db"
)

// Config is built once at process start and handed to every constructor.
// Treat it as read-only after Load returns.
type Config struct {
	VectorURL           string `koanf:"upstash_vector_rest_url"`
	VectorToken         string `koanf:"upstash_vector_rest_token"`
	VectorReadOnlyToken string `koanf:"upstash_vector_rest_readonly_token"`

	LLMProvider  string `koanf:"llm_provider"`
	LLMModel     string `koanf:"llm_model"`
	GroqAPIKey   string `koanf:"groq_api_key"`
	GroqBaseURL  string `koanf:"groq_base_url"`
	GeminiAPIKey string `koanf:"gemini_api_key"`

	HTTPPort       string        `koanf:"http_port"`
	LogLevel       string        `koanf:"log_level"`
	LogFormat      string        `koanf:"log_format"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	TopK           int           `koanf:"rag_top_k"`
	ProfilePath    string        `koanf:"profile_path"`
	ManifestPath   string        `koanf:"manifest_path"`
}

// Load resolves configuration from a .env file (if present), an optional
// YAML file and the process environment, in increasing precedence.
// Missing credentials are not an error here; see Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMProvider == "" {
		c.LLMProvider = ProviderGroq
	}
	if c.LLMModel == "" {
		if c.LLMProvider == ProviderGemini {
			c.LLMModel = DefaultGeminiModel
		} else {
			c.LLMModel = DefaultGroqModel
		}
	}
	if c.HTTPPort == "" {
		c.HTTPPort = defaultHTTPPort
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.ProfilePath == "" {
		c.ProfilePath = defaultProfilePath
	}
	if c.ManifestPath == "" {
		c.ManifestPath = defaultManifestPath
	}
}

// LLMKeyName is the environment variable holding the active provider's key.
func (c *Config) LLMKeyName() string {
	if c.LLMProvider == ProviderGemini {
		return EnvGeminiAPIKey
	}
	return EnvGroqAPIKey
}

// LLMAPIKey returns the active provider's key.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.GroqAPIKey
}

type credential struct {
	name  string
	value string
}

func (c *Config) credentials() []credential {
	return []credential{
		{EnvVectorURL, c.VectorURL},
		{EnvVectorToken, c.VectorToken},
		{EnvVectorReadOnlyToken, c.VectorReadOnlyToken},
		{c.LLMKeyName(), c.LLMAPIKey()},
	}
}

// Validate returns the names of all missing required settings, in a fixed order.
func (c *Config) Validate() []string {
	var missing []string
	for _, cred := range c.credentials() {
		if strings.TrimSpace(cred.value) == "" {
			missing = append(missing, cred.name)
		}
	}
	return missing
}

// ValidateOrError fails with a configuration error naming every missing setting.
func (c *Config) ValidateOrError() error {
	if missing := c.Validate(); len(missing) > 0 {
		return apperr.Missing("config", missing)
	}
	return nil
}

// PrintStatus writes the presence of each credential. Values are never printed.
func (c *Config) PrintStatus(w io.Writer) {
	fmt.Fprintln(w, "Configuration Status:")
	for _, cred := range c.credentials() {
		state := "✓ Set"
		if strings.TrimSpace(cred.value) == "" {
			state = "✗ Missing"
		}
		fmt.Fprintf(w, "  %s: %s\n", cred.name, state)
	}
	fmt.Fprintf(w, "  LLM_PROVIDER: %s (%s)\n", c.LLMProvider, c.LLMModel)
}
