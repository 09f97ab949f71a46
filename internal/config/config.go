// Package config loads docqa settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting. Field tags name the environment variable.
type Config struct {
	OpenAIAPIKey   string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `mapstructure:"OPENAI_BASE_URL" validate:"omitempty,url"`
	EmbeddingModel string `mapstructure:"EMBEDDING_MODEL" validate:"required"`
	LLMModel       string `mapstructure:"LLM_MODEL" validate:"required"`
	RAGAPIKey      string `mapstructure:"RAG_API_KEY"`

	DataDir   string `mapstructure:"DATA_DIR" validate:"required"`
	IndexDir  string `mapstructure:"INDEX_DIR"`
	UploadDir string `mapstructure:"UPLOAD_DIR"`

	ConfMin        float64 `mapstructure:"CONF_MIN" validate:"gte=0,lte=1"`
	RetrievalK     int     `mapstructure:"RETRIEVAL_K" validate:"gte=1,lte=50"`
	ChunkMaxTokens int     `mapstructure:"CHUNK_MAX_TOKENS" validate:"gte=16"`
	EmbedBatchSize int     `mapstructure:"EMBED_BATCH_SIZE" validate:"gte=1,lte=2048"`

	OCRThreshold   int    `mapstructure:"OCR_THRESHOLD" validate:"gte=0"`
	OCRDPI         int    `mapstructure:"OCR_DPI" validate:"gte=72,lte=1200"`
	OCRDefaultLang string `mapstructure:"OCR_DEFAULT_LANG" validate:"required"`
	TesseractCmd   string `mapstructure:"TESSERACT_CMD"`
	TessDataPrefix string `mapstructure:"TESSDATA_PREFIX"`

	VectorStore string `mapstructure:"VECTOR_STORE" validate:"oneof=fs qdrant"`
	QdrantHost  string `mapstructure:"QDRANT_HOST" validate:"required_if=VectorStore qdrant"`
	QdrantPort  int    `mapstructure:"QDRANT_PORT" validate:"gte=1,lte=65535"`

	UploadStore    string `mapstructure:"UPLOAD_STORE" validate:"oneof=fs minio"`
	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT" validate:"required_if=UploadStore minio"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	RedisURL   string        `mapstructure:"REDIS_URL" validate:"omitempty,url"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL" validate:"gte=0"`

	Port           string   `mapstructure:"PORT" validate:"required,numeric"`
	MCPStateless   bool     `mapstructure:"MCP_STATELESS"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	MaxUploadBytes int64    `mapstructure:"MAX_UPLOAD_BYTES" validate:"gte=1024"`

	UniDocLicenseKey   string `mapstructure:"UNIDOC_LICENSE_API_KEY"`
	UniDocOfflineKey   string `mapstructure:"UNIDOC_LICENSE_KEY"`
	UniDocCustomerName string `mapstructure:"UNIDOC_CUSTOMER_NAME" validate:"required_with=UniDocOfflineKey"`
	GitHubToken        string `mapstructure:"GITHUB_TOKEN"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`
}

var defaults = map[string]any{
	"OPENAI_API_KEY":         "",
	"OPENAI_BASE_URL":        "",
	"EMBEDDING_MODEL":        "text-embedding-3-large",
	"LLM_MODEL":              "gpt-4o-mini",
	"RAG_API_KEY":            "",
	"DATA_DIR":               "data",
	"INDEX_DIR":              "",
	"UPLOAD_DIR":             "",
	"CONF_MIN":               0.20,
	"RETRIEVAL_K":            5,
	"CHUNK_MAX_TOKENS":       500,
	"EMBED_BATCH_SIZE":       128,
	"OCR_THRESHOLD":          50,
	"OCR_DPI":                300,
	"OCR_DEFAULT_LANG":       "eng",
	"TESSERACT_CMD":          "",
	"TESSDATA_PREFIX":        "",
	"VECTOR_STORE":           "fs",
	"QDRANT_HOST":            "localhost",
	"QDRANT_PORT":            6334,
	"UPLOAD_STORE":           "fs",
	"MINIO_ENDPOINT":         "",
	"MINIO_ACCESS_KEY":       "",
	"MINIO_SECRET_KEY":       "",
	"MINIO_BUCKET":           "docqa-uploads",
	"MINIO_USE_SSL":          false,
	"REDIS_URL":              "",
	"SESSION_TTL":            "0s",
	"PORT":                   "8080",
	"MCP_STATELESS":          false,
	"CORS_ORIGINS":           "",
	"MAX_UPLOAD_BYTES":       50 << 20,
	"UNIDOC_LICENSE_API_KEY": "",
	"UNIDOC_LICENSE_KEY":     "",
	"UNIDOC_CUSTOMER_NAME":   "",
	"GITHUB_TOKEN":           "",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "text",
}

// Load reads .env if present, then the environment, and validates the result.
func Load() (*Config, error) {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()
	return FromViper(NewViper())
}

// NewViper returns a viper instance with every key defaulted and bound to
// its environment variable. Callers may bind flags to it before FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	if cfg.IndexDir == "" {
		cfg.IndexDir = filepath.Join(cfg.DataDir, "index")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// splitList accepts both repeated values and a single comma separated value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Logger builds the slog logger selected by LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
