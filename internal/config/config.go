package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"analyst-rag/internal/models"
)

type Config struct {
	Store    StoreConfig  `yaml:"store"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	LLM      LLMConfig    `yaml:"llm"`
	RAG      RAGConfig    `yaml:"rag"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend       string         `yaml:"backend"`
	Path          string         `yaml:"path"`
	Collection    string         `yaml:"collection"`
	InMemory      bool           `yaml:"in_memory"`
	Compress      bool           `yaml:"compress"`
	EncryptionKey string         `yaml:"encryption_key"`
	Postgres      PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN        string `yaml:"dsn"`
	Driver     string `yaml:"driver"`
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
	Debug      bool   `yaml:"debug"`
}

// LLMConfig describes a model endpoint, used both for embeddings and generation.
type LLMConfig struct {
	Provider      string  `yaml:"provider"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	Key           string  `yaml:"key"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	ContextLength int     `yaml:"context_length"`
}

type RAGConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	TopK          int `yaml:"top_k"`
	CharsPerToken int `yaml:"chars_per_token"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	GinMode     string `yaml:"gin_mode"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"
)

// Load reads the YAML config at path. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	applyDefaults(cfg)
	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present. Fields
// where zero is a meaningful setting are seeded here, before the file is
// decoded on top, instead of in applyDefaults.
func Default() *Config {
	cfg := &Config{
		LLM: LLMConfig{Temperature: 0.1},
		RAG: RAGConfig{ChunkOverlap: models.DefaultChunkOverlap},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendChromem
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = models.DefaultStorePath
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = models.DefaultCollectionName
	}
	if cfg.Store.Postgres.Driver == "" {
		cfg.Store.Postgres.Driver = DriverPGDriver
	}
	if cfg.Store.Postgres.Table == "" {
		cfg.Store.Postgres.Table = "analyst_chunks"
	}
	if cfg.Store.Postgres.Dimensions == 0 {
		cfg.Store.Postgres.Dimensions = 384
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOllama
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "all-minilm"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOllama
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "tinyllama"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.LLM.ContextLength == 0 {
		cfg.LLM.ContextLength = models.DefaultContextLen
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.RAG.CharsPerToken == 0 {
		cfg.RAG.CharsPerToken = models.DefaultCharsPerTok
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "uploads"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Server.GinMode == "" {
		cfg.Server.GinMode = "release"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func overrideByEnv(cfg *Config) {
	cfg.Store.Backend = getEnv("ANALYST_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = getEnv("ANALYST_STORE_PATH", cfg.Store.Path)
	cfg.Store.EncryptionKey = getEnv("ANALYST_ENCRYPTION_KEY", cfg.Store.EncryptionKey)
	cfg.Store.Postgres.DSN = getEnv("ANALYST_PG_DSN", cfg.Store.Postgres.DSN)
	cfg.EmbedLLM.BaseURL = getEnv("ANALYST_EMBED_BASE_URL", cfg.EmbedLLM.BaseURL)
	cfg.EmbedLLM.Model = getEnv("ANALYST_EMBED_MODEL", cfg.EmbedLLM.Model)
	cfg.LLM.BaseURL = getEnv("ANALYST_LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("ANALYST_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Key = getEnv("ANALYST_LLM_KEY", cfg.LLM.Key)
	cfg.LLM.ContextLength = getEnvAsInt("ANALYST_LLM_CONTEXT_LENGTH", cfg.LLM.ContextLength)
	cfg.RAG.TopK = getEnvAsInt("ANALYST_TOP_K", cfg.RAG.TopK)
	cfg.Server.Addr = getEnv("ANALYST_SERVER_ADDR", cfg.Server.Addr)
	cfg.Log.Level = getEnv("ANALYST_LOG_LEVEL", cfg.Log.Level)
}

// Validate rejects settings the pipeline cannot work with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendChromem, BackendPGVector:
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	for _, p := range []string{c.EmbedLLM.Provider, c.LLM.Provider} {
		if p != ProviderOllama && p != ProviderOpenAI {
			return fmt.Errorf("unknown llm provider: %s", p)
		}
	}
	if c.Store.EncryptionKey != "" && len(c.Store.EncryptionKey) != 32 {
		return errors.New("encryption key must be 32 bytes long")
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("invalid chunking: size=%d overlap=%d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
