package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	LLM        LLMConfig        `yaml:"llm"`
	CourseSage CourseSageConfig `yaml:"courseSage"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig contains ChatGPT/OpenAI-compatible chat and embedding settings.
// TODO : support other LLM providers and per-feature model selection.
type LLMConfig struct {
	APIKey         string  `yaml:"apiKey"`
	BaseURL        string  `yaml:"baseUrl"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embeddingModel"`
	Temperature    float32 `yaml:"temperature"`
}

// CourseSageConfig controls the course-materials Q&A domain (chunking,
// retrieval, the agent graph and its backing stores).
type CourseSageConfig struct {
	MaxChunkWords int                 `yaml:"maxChunkWords"`
	NumCandidates uint64              `yaml:"numCandidates"`
	Storage       ObjectStorageConfig `yaml:"storage"`
	Qdrant        QdrantConfig        `yaml:"qdrant"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Valkey        ValkeyConfig        `yaml:"valkey"`
	WebSearch     WebSearchConfig     `yaml:"webSearch"`
}

// ObjectStorageConfig configures the R2/S3-compatible object store holding
// source PDFs.
type ObjectStorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
}

// QdrantConfig contains connection information for the vector store.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"apiKey"`
	UseTLS     bool   `yaml:"useTls"`
	Collection string `yaml:"collection"`
}

// PostgresConfig contains DSN and pooling settings for the primary store.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// ValkeyConfig contains connection information for the cache store.
type ValkeyConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WebSearchConfig contains credentials for the web_search tool collaborator.
type WebSearchConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_READ_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = parsed
		}
	}
	if v := os.Getenv("HTTP_WRITE_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = parsed
		}
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_ENABLED"); v != "" {
		cfg.HTTP.Retry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RETRY_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Retry.MaxAttempts = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_BASE_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.Retry.BaseBackoff = parsed
		}
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	if v := os.Getenv("COURSESAGE_MAX_CHUNK_WORDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.CourseSage.MaxChunkWords = parsed
		}
	}
	if v := os.Getenv("COURSESAGE_NUM_CANDIDATES"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.CourseSage.NumCandidates = parsed
		}
	}
	if v := os.Getenv("COURSESAGE_STORAGE_ENDPOINT"); v != "" {
		cfg.CourseSage.Storage.Endpoint = v
	}
	if v := os.Getenv("COURSESAGE_STORAGE_ACCESS_KEY"); v != "" {
		cfg.CourseSage.Storage.AccessKey = v
	}
	if v := os.Getenv("COURSESAGE_STORAGE_SECRET_KEY"); v != "" {
		cfg.CourseSage.Storage.SecretKey = v
	}
	if v := os.Getenv("COURSESAGE_STORAGE_REGION"); v != "" {
		cfg.CourseSage.Storage.Region = v
	}
	if v := os.Getenv("COURSESAGE_QDRANT_HOST"); v != "" {
		cfg.CourseSage.Qdrant.Host = v
	}
	if v := os.Getenv("COURSESAGE_QDRANT_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.CourseSage.Qdrant.Port = parsed
		}
	}
	if v := os.Getenv("COURSESAGE_QDRANT_API_KEY"); v != "" {
		cfg.CourseSage.Qdrant.APIKey = v
	}
	if v := os.Getenv("COURSESAGE_QDRANT_USE_TLS"); v != "" {
		cfg.CourseSage.Qdrant.UseTLS = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("COURSESAGE_QDRANT_COLLECTION"); v != "" {
		cfg.CourseSage.Qdrant.Collection = v
	}
	if v := os.Getenv("COURSESAGE_POSTGRES_DSN"); v != "" {
		cfg.CourseSage.Postgres.DSN = v
	}
	if v := os.Getenv("COURSESAGE_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.CourseSage.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("COURSESAGE_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.CourseSage.Postgres.MinConns = int32(parsed)
		}
	}
	if v := os.Getenv("COURSESAGE_VALKEY_ADDR"); v != "" {
		cfg.CourseSage.Valkey.Addr = v
	}
	if v := os.Getenv("COURSESAGE_VALKEY_USERNAME"); v != "" {
		cfg.CourseSage.Valkey.Username = v
	}
	if v := os.Getenv("COURSESAGE_VALKEY_PASSWORD"); v != "" {
		cfg.CourseSage.Valkey.Password = v
	}
	if v := os.Getenv("COURSESAGE_WEBSEARCH_API_KEY"); v != "" {
		cfg.CourseSage.WebSearch.APIKey = v
	}
	if v := os.Getenv("COURSESAGE_WEBSEARCH_BASE_URL"); v != "" {
		cfg.CourseSage.WebSearch.BaseURL = v
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address: ":8080",
			AllowedOrigins: []string{
				"*",
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/v1/coursesage/ingest",
					"/api/v1/coursesage/ask",
				},
			},
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "voyage-3",
			Temperature:    0.2,
		},
		CourseSage: CourseSageConfig{
			MaxChunkWords: 350,
			NumCandidates: 10000,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "coursesage_chunks",
			},
			Postgres: PostgresConfig{
				DSN:      "",
				MaxConns: 10,
				MinConns: 2,
			},
			Valkey: ValkeyConfig{
				Addr: "localhost:6379",
			},
		},
	}
}

// Validate ensures the configuration is safe to use. Missing required
// options fail here, at startup, rather than surprising a request later.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("llm.embeddingModel cannot be empty")
	}
	if c.CourseSage.MaxChunkWords <= 0 {
		return errors.New("courseSage.maxChunkWords must be positive")
	}
	if c.CourseSage.NumCandidates == 0 {
		return errors.New("courseSage.numCandidates must be positive")
	}
	if strings.TrimSpace(c.CourseSage.Qdrant.Collection) == "" {
		return errors.New("courseSage.qdrant.collection cannot be empty")
	}
	if c.CourseSage.Postgres.DSN != "" {
		if c.CourseSage.Postgres.MaxConns <= 0 {
			return errors.New("courseSage.postgres.maxConns must be positive when postgres.dsn is set")
		}
	}
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var result []string
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
