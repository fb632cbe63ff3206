package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Mongo    MongoConfig
	Server   ServerConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	OpenAI   OpenAIConfig
}

// MongoConfig holds document-store configuration
type MongoConfig struct {
	URI          string
	Database     string
	Collection   string
	VectorIndex  string
	DialTimeout  time.Duration
	QueryTimeout time.Duration
	PingTimeout  time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
}

// StorageConfig holds blob-storage configuration
type StorageConfig struct {
	LocalDir string
}

// PipelineConfig holds ingestion pipeline configuration
type PipelineConfig struct {
	MaxUploadBytes int64
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// OpenAIConfig holds model-provider configuration
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Temperature float32
	Timeout     time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Mongo: MongoConfig{
			URI:          getEnv("MONGO_URI", ""),
			Database:     getEnv("MONGO_DATABASE", "invoicelens"),
			Collection:   getEnv("MONGO_COLLECTION", "invoices"),
			VectorIndex:  getEnv("MONGO_VECTOR_INDEX", "invoice_summary_vectors"),
			DialTimeout:  getEnvAsDuration("MONGO_DIAL_TIMEOUT", 10*time.Second),
			QueryTimeout: getEnvAsDuration("MONGO_QUERY_TIMEOUT", 30*time.Second),
			PingTimeout:  getEnvAsDuration("MONGO_PING_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			LocalDir: getEnv("STORAGE_DIR", "./data/uploads"),
		},
		Pipeline: PipelineConfig{
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 20*1024*1024),
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 64),
			ProcessTimeout: getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", 2*time.Minute),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ChatModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			EmbedModel:  getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return NewAppError("CONFIG_ERROR", "MONGO_URI is required", ErrInvalidInput)
	}
	if c.OpenAI.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be at least 1", ErrInvalidInput)
	}
	return nil
}
