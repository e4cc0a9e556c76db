package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for finrag. It is built once at startup and
// passed to constructors.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Index     IndexConfig     `yaml:"index"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Parser    ParserConfig    `yaml:"parser"`
	LLM       LLMConfig       `yaml:"llm"`
	Judge     JudgeConfig     `yaml:"judge"`
	Query     QueryConfig     `yaml:"query"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds index and chunking configuration.
type IndexConfig struct {
	Name         string `yaml:"name"`
	Backend      string `yaml:"backend"`      // "bolt", "pgvector", "memory"
	PostgresDSN  string `yaml:"postgres_dsn"` // pgvector backend only
	ChunkTokens  int    `yaml:"chunk_tokens"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// CacheConfig holds cache configuration.
type CacheConfig struct {
	Enabled    bool        `yaml:"enabled"`
	Backend    string      `yaml:"backend"` // "redis", "bolt", "memory"
	Redis      RedisConfig `yaml:"redis"`
	BoltPath   string      `yaml:"bolt_path"` // defaults to <data_dir>/cache.db
	MaxEntries int         `yaml:"max_entries"`
	TTL        TTLConfig   `yaml:"ttl"`
}

type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type TTLConfig struct {
	Query     time.Duration `yaml:"query"`
	Embedding time.Duration `yaml:"embedding"`
	Document  time.Duration `yaml:"document"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"` // "gemini", "openai", "ollama", "jina", "hugot", "hash", "mock"
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL     string        `yaml:"base_url"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	ModelDir    string        `yaml:"model_dir"` // hugot only
	Cache       bool          `yaml:"cache"`     // cache document embeddings
}

// ParserConfig holds PDF parsing configuration.
type ParserConfig struct {
	Provider     string        `yaml:"provider"` // "llamaparse"
	APIKeyEnv    string        `yaml:"api_key_env"`
	BaseURL      string        `yaml:"base_url"`
	ResultType   string        `yaml:"result_type"`
	NumWorkers   int           `yaml:"num_workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LLMConfig configures a chat model.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "gemini", "openai", "ollama"
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// JudgeConfig configures the reranking judge.
type JudgeConfig struct {
	LLMConfig   `yaml:",inline"`
	Concurrency int `yaml:"concurrency"`
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	TopK       int  `yaml:"top_k"`
	AnswerTopK int  `yaml:"answer_top_k"`
	Rerank     bool `yaml:"rerank"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Index: IndexConfig{
			Name:         "financial_reports",
			Backend:      "bolt",
			ChunkTokens:  512,
			ChunkOverlap: 50,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "redis",
			Redis: RedisConfig{
				Host:        "localhost",
				Port:        6379,
				DialTimeout: 2 * time.Second,
			},
			MaxEntries: 10000,
			TTL: TTLConfig{
				Query:     time.Hour,
				Embedding: 24 * time.Hour,
				Document:  7 * 24 * time.Hour,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:    "gemini",
			Model:       "text-embedding-004",
			APIKeyEnv:   "GOOGLE_API_KEY",
			BatchSize:   100,
			Concurrency: 4,
			Timeout:     60 * time.Second,
			Cache:       true,
		},
		Parser: ParserConfig{
			Provider:     "llamaparse",
			APIKeyEnv:    "LLAMA_API_KEY",
			ResultType:   "markdown",
			NumWorkers:   4,
			PollInterval: 2 * time.Second,
			Timeout:      10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			APIKeyEnv:   "GOOGLE_API_KEY",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Judge: JudgeConfig{
			LLMConfig: LLMConfig{
				Provider:  "gemini",
				Model:     "gemini-2.0-flash",
				APIKeyEnv: "GOOGLE_API_KEY",
				Timeout:   30 * time.Second,
			},
			Concurrency: 4,
		},
		Query: QueryConfig{
			TopK:       10,
			AnswerTopK: 5,
			Rerank:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies a .env file found
// next to it and FINRAG_* environment overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for finrag.yaml,
// then .finrag/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "finrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".finrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// defaults, still subject to .env and environment overrides
	return Load(filepath.Join(dir, "finrag.yaml"))
}

// loadDotEnv reads dir/.env without overriding variables already set.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("FINRAG_DATA_DIR", &c.DataDir)
	str("FINRAG_REDIS_HOST", &c.Cache.Redis.Host)
	str("FINRAG_REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("FINRAG_EMBEDDING_MODEL", &c.Embedding.Model)
	str("FINRAG_POSTGRES_DSN", &c.Index.PostgresDSN)
	str("FINRAG_LOG_LEVEL", &c.Logging.Level)

	return errors.Join(
		num("FINRAG_REDIS_PORT", &c.Cache.Redis.Port),
		num("FINRAG_REDIS_DB", &c.Cache.Redis.DB),
		num("FINRAG_EMBEDDING_DIMENSION", &c.Embedding.Dimension),
	)
}

// Validate reports configuration values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}

	check("index.backend", c.Index.Backend, "bolt", "pgvector", "memory")
	check("cache.backend", c.Cache.Backend, "redis", "bolt", "memory")
	check("embedding.provider", c.Embedding.Provider, "gemini", "openai", "ollama", "jina", "hugot", "hash", "mock")
	check("parser.provider", c.Parser.Provider, "llamaparse")
	check("llm.provider", c.LLM.Provider, "gemini", "openai", "ollama")
	check("judge.provider", c.Judge.Provider, "gemini", "openai", "ollama")
	check("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error")

	if c.Index.Backend == "pgvector" && c.Index.PostgresDSN == "" {
		errs = append(errs, errors.New("index.postgres_dsn is required for the pgvector backend"))
	}
	if c.Index.ChunkTokens <= 0 {
		errs = append(errs, fmt.Errorf("index.chunk_tokens must be positive, got %d", c.Index.ChunkTokens))
	}
	if c.Query.TopK <= 0 || c.Query.AnswerTopK <= 0 {
		errs = append(errs, errors.New("query.top_k and query.answer_top_k must be positive"))
	}

	return errors.Join(errs...)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) ReportsDir() string { return filepath.Join(c.DataDir, "reports") }
func (c *Config) ParsedDir() string  { return filepath.Join(c.DataDir, "parsed") }
func (c *Config) IndexesDir() string { return filepath.Join(c.DataDir, "indexes") }

// CacheBoltPath returns the bolt cache file, defaulting to <data_dir>/cache.db.
func (c *Config) CacheBoltPath() string {
	if c.Cache.BoltPath != "" {
		return c.Cache.BoltPath
	}
	return filepath.Join(c.DataDir, "cache.db")
}

// EnsureDataDirs creates the data directory layout.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{c.ReportsDir(), c.ParsedDir(), c.IndexesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
