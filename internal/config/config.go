// Package config loads the portal's YAML configuration with environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DataDir       string `yaml:"dataDir"`
	UsersFile     string `yaml:"usersFile"`
	TokenSecret   string `yaml:"tokenSecret"`
	TokenTTLHours int    `yaml:"tokenTTLHours"`

	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
	TopK         int `yaml:"topK"`
	Workers      int `yaml:"workers"`

	// local or postgres
	IndexBackend string `yaml:"indexBackend"`
	DatabaseURL  string `yaml:"databaseURL"`
	EmbeddingDim int    `yaml:"embeddingDim"`

	// local, redis or amqp
	QueueBackend string `yaml:"queueBackend"`
	RedisAddr    string `yaml:"redisAddr"`
	RedisPass    string `yaml:"redisPass"`
	QueueStream  string `yaml:"queueStream"`
	AMQPURL      string `yaml:"amqpURL"`

	// memory or redis
	StatusBackend string `yaml:"statusBackend"`

	// local or minio
	DocStoreBackend string `yaml:"docStoreBackend"`
	MinioEndpoint   string `yaml:"minioEndpoint"`
	MinioAccessKey  string `yaml:"minioAccessKey"`
	MinioSecretKey  string `yaml:"minioSecretKey"`
	MinioBucket     string `yaml:"minioBucket"`
	MinioUseSSL     bool   `yaml:"minioUseSSL"`

	// ollama or openai
	LLMProvider    string `yaml:"llmProvider"`
	OllamaBaseURL  string `yaml:"ollamaBaseURL"`
	EmbeddingModel string `yaml:"embeddingModel"`
	ChatModel      string `yaml:"chatModel"`
	OpenAIBaseURL  string `yaml:"openaiBaseURL"`
	OpenAIAPIKey   string `yaml:"openaiAPIKey"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = "data/users.json"
	}
	if cfg.TokenTTLHours <= 0 {
		cfg.TokenTTLHours = 24
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2200
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 400
	}
	if cfg.TopK == 0 {
		cfg.TopK = 12
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.IndexBackend == "" {
		cfg.IndexBackend = "local"
	}
	if cfg.QueueBackend == "" {
		cfg.QueueBackend = "local"
	}
	if cfg.StatusBackend == "" {
		cfg.StatusBackend = "memory"
	}
	if cfg.DocStoreBackend == "" {
		cfg.DocStoreBackend = "local"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "ollama"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "llama3.1"
	}
}

func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("RAGPORTAL_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("RAGPORTAL_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("RAGPORTAL_REDIS_PASS"); v != "" {
		cfg.RedisPass = v
	}
	if v := os.Getenv("RAGPORTAL_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.TokenSecret == "" {
		return errors.New("config: tokenSecret is required (set in config.yaml or RAGPORTAL_TOKEN_SECRET)")
	}
	if cfg.ChunkSize <= 0 {
		return errors.New("config: chunkSize must be positive")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be non-negative and smaller than chunkSize")
	}
	if cfg.TopK <= 0 {
		return errors.New("config: topK must be positive")
	}
	switch cfg.IndexBackend {
	case "local":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres index backend")
		}
		if cfg.EmbeddingDim <= 0 {
			return errors.New("config: embeddingDim is required for the postgres index backend")
		}
	default:
		return fmt.Errorf("config: unknown indexBackend %q", cfg.IndexBackend)
	}
	switch cfg.QueueBackend {
	case "local":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis queue backend")
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required for the amqp queue backend")
		}
	default:
		return fmt.Errorf("config: unknown queueBackend %q", cfg.QueueBackend)
	}
	switch cfg.StatusBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis status backend")
		}
	default:
		return fmt.Errorf("config: unknown statusBackend %q", cfg.StatusBackend)
	}
	switch cfg.DocStoreBackend {
	case "local":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio docstore backend")
		}
	default:
		return fmt.Errorf("config: unknown docStoreBackend %q", cfg.DocStoreBackend)
	}
	switch cfg.LLMProvider {
	case "ollama":
	case "openai":
		if cfg.OpenAIBaseURL == "" {
			return errors.New("config: openaiBaseURL is required for the openai provider")
		}
	default:
		return fmt.Errorf("config: unknown llmProvider %q", cfg.LLMProvider)
	}
	return nil
}
