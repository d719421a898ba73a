package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定
// YAMLファイルを読み、環境変数で上書きする
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Context   ContextConfig   `yaml:"context"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Retention RetentionConfig `yaml:"retention"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// Addr はListenAndServe用のアドレスを返す
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig はモデル選択と呼び出し設定
type LLMConfig struct {
	Provider           string        `yaml:"provider" env:"LLM_PROVIDER"`
	PrimaryModel       string        `yaml:"primary_model" env:"LLM_PRIMARY_MODEL"`
	SecondaryModel     string        `yaml:"secondary_model" env:"LLM_SECONDARY_MODEL"`
	EmbeddingModel     string        `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL"`
	EmbeddingDimension int           `yaml:"embedding_dimension" env:"LLM_EMBEDDING_DIMENSION"`
	RequestTimeout     time.Duration `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT"`
}

// OpenAIConfig はOpenAI APIの接続設定
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
}

// AnthropicConfig はAnthropic APIの接続設定
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	BaseURL string `yaml:"base_url" env:"ANTHROPIC_BASE_URL"`
}

// DatabaseConfig はPostgreSQLの接続設定
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_URL"`
}

// AuthConfig は外部認証プロバイダーの設定
type AuthConfig struct {
	BaseURL string `yaml:"base_url" env:"AUTH_BASE_URL"`
	APIKey  string `yaml:"api_key" env:"AUTH_API_KEY"`
}

// Enabled は認証検証が構成済みかを返す
func (c AuthConfig) Enabled() bool {
	return c.BaseURL != ""
}

// ContextConfig は類似検索の設定
type ContextConfig struct {
	TopK      int     `yaml:"top_k" env:"CONTEXT_TOP_K"`
	Threshold float64 `yaml:"threshold" env:"CONTEXT_THRESHOLD"`
}

// IngestionConfig は取り込みの分割設定
type IngestionConfig struct {
	ChunkSize    int `yaml:"chunk_size" env:"INGESTION_CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" env:"INGESTION_CHUNK_OVERLAP"`
}

// RetentionConfig は履歴保持の設定
type RetentionConfig struct {
	ProjectKeep int    `yaml:"project_keep" env:"RETENTION_PROJECT_KEEP"`
	UserKeep    int    `yaml:"user_keep" env:"RETENTION_USER_KEEP"`
	Schedule    string `yaml:"schedule" env:"RETENTION_SCHEDULE"`
}

// StorageConfig はアップロード保存の設定
type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir" env:"STORAGE_UPLOAD_DIR"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"STORAGE_MAX_UPLOAD_BYTES"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// LoadConfig は設定を読み込む
// 優先順位: 環境変数 > YAMLファイル > 既定値
// .envファイルがあれば先に読み込む（なくてもエラーにしない）
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.PrimaryModel == "" {
		c.LLM.PrimaryModel = "gpt-4o"
	}
	if c.LLM.SecondaryModel == "" {
		c.LLM.SecondaryModel = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.EmbeddingDimension == 0 {
		c.LLM.EmbeddingDimension = 1536
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = 8 * time.Second
	}
	if c.Context.TopK == 0 {
		c.Context.TopK = 5
	}
	if c.Context.Threshold == 0 {
		c.Context.Threshold = 0.7
	}
	if c.Ingestion.ChunkSize == 0 {
		c.Ingestion.ChunkSize = 500
	}
	if c.Ingestion.ChunkOverlap == 0 {
		c.Ingestion.ChunkOverlap = 50
	}
	if c.Retention.ProjectKeep == 0 {
		c.Retention.ProjectKeep = 50
	}
	if c.Retention.UserKeep == 0 {
		c.Retention.UserKeep = 10
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "./uploads"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = 5 * 1024 * 1024
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate は起動前の設定検証
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn (DATABASE_URL) is required")
	}
	switch c.LLM.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key (OPENAI_API_KEY) is required for provider openai")
		}
	case "claude":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic.api_key (ANTHROPIC_API_KEY) is required for provider claude")
		}
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key (OPENAI_API_KEY) is required for embeddings")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Context.Threshold < 0 || c.Context.Threshold >= 1 {
		return fmt.Errorf("context.threshold must be in [0, 1), got %f", c.Context.Threshold)
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap must be smaller than chunk_size")
	}
	return nil
}
