package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Captioner CaptionerConfig `mapstructure:"captioner"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Query     QueryConfig     `mapstructure:"query"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ChatConfig covers the text-generation endpoints: summarization, tool
// selection, and final answer synthesis all go through the same provider.
type ChatConfig struct {
	Model          string `mapstructure:"model"`
	SelectionModel string `mapstructure:"selection_model"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
}

type CaptionerConfig struct {
	Model               string `mapstructure:"model"`
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `mapstructure:"poll_timeout_seconds"`
}

type PipelineConfig struct {
	WorkDir               string  `mapstructure:"work_dir"`
	CaptionWorkers        int     `mapstructure:"caption_workers"`
	CaptionRetries        int     `mapstructure:"caption_retries"`
	EmbedWorkers          int     `mapstructure:"embed_workers"`
	UpsertBatchSize       int     `mapstructure:"upsert_batch_size"`
	ExistenceFetchBatch   int     `mapstructure:"existence_fetch_batch"`
	FallbackWindowSeconds float64 `mapstructure:"fallback_window_seconds"`
}

type ToolsConfig struct {
	ResearchSSEURL string `mapstructure:"research_sse_url"`
	// SelectionMode chooses between the keyword heuristic ("rule") and a
	// model-driven pick over the provider's tool list ("model").
	SelectionMode      string `mapstructure:"selection_mode"`
	CallTimeoutSeconds int    `mapstructure:"call_timeout_seconds"`
}

type QueryConfig struct {
	TopK int `mapstructure:"top_k"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "videos")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "video_segments")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.selection_model", "gpt-4o-mini")
	v.SetDefault("chat.base_url", "https://api.openai.com/v1")
	v.SetDefault("captioner.model", "gemini-1.5-flash")
	v.SetDefault("captioner.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("captioner.poll_interval_seconds", 2)
	v.SetDefault("captioner.poll_timeout_seconds", 300)
	v.SetDefault("pipeline.work_dir", "./data/work")
	v.SetDefault("pipeline.caption_workers", 8)
	v.SetDefault("pipeline.caption_retries", 5)
	v.SetDefault("pipeline.embed_workers", 8)
	v.SetDefault("pipeline.upsert_batch_size", 100)
	v.SetDefault("pipeline.existence_fetch_batch", 1000)
	v.SetDefault("pipeline.fallback_window_seconds", 4.0)
	v.SetDefault("tools.selection_mode", "rule")
	v.SetDefault("tools.call_timeout_seconds", 60)
	v.SetDefault("query.top_k", 3)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "S3_USE_SSL")
	v.BindEnv("storage.bucket", "S3_BUCKET_NAME")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.collection", "QDRANT_COLLECTION")
	v.BindEnv("embedding.api_key", "OPENAI_API_KEY")
	v.BindEnv("embedding.base_url", "OPENAI_BASE_URL")
	v.BindEnv("embedding.model", "EMBEDDING_MODEL")
	v.BindEnv("chat.api_key", "OPENAI_API_KEY")
	v.BindEnv("chat.base_url", "OPENAI_BASE_URL")
	v.BindEnv("chat.model", "CHAT_MODEL")
	v.BindEnv("chat.selection_model", "TOOL_SELECTION_MODEL")
	v.BindEnv("captioner.api_key", "CAPTIONER_API_KEY")
	v.BindEnv("captioner.base_url", "CAPTIONER_BASE_URL")
	v.BindEnv("captioner.model", "CAPTIONER_MODEL")
	v.BindEnv("tools.research_sse_url", "MCP_RESEARCH_SSE_URL")
	v.BindEnv("tools.selection_mode", "TOOL_SELECTION_MODE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
