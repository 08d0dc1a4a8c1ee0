package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Tokens    TokensConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	UploadPerHour int
	SubmitPerHour int
}

// OpenAIConfig covers both backends exposed by the OpenAI-compatible API:
// audio transcription (whisper) and chat completion.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	ChatModel    string
	Timeout      int // seconds, per request
}

// StorageConfig configures the S3-compatible object store (R2, minio, S3).
type StorageConfig struct {
	AccountID       string // Cloudflare R2 account; ignored when Endpoint is set directly
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// PipelineConfig tunes the transcription/extraction pipeline.
type PipelineConfig struct {
	SizeThresholdBytes  int64 // max payload per transcription request
	ChunkConcurrency    int
	ClipConcurrency     int
	DebitOnParseFailure bool
}

// TokensConfig carries the fixed per-stage admission estimates.
type TokensConfig struct {
	AdmissionEstimate  int64
	TranscribeEstimate int64
	ExtractEstimate    int64
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OPENAI_API_KEY")
	readSecret("STORAGE_ACCOUNT_ID")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.whisper_model", "OPENAI_WHISPER_MODEL")
	_ = viper.BindEnv("openai.chat_model", "OPENAI_CHAT_MODEL")
	_ = viper.BindEnv("openai.timeout", "OPENAI_TIMEOUT")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("pipeline.size_threshold_bytes", "PIPELINE_SIZE_THRESHOLD_BYTES")
	_ = viper.BindEnv("pipeline.chunk_concurrency", "PIPELINE_CHUNK_CONCURRENCY")
	_ = viper.BindEnv("pipeline.clip_concurrency", "PIPELINE_CLIP_CONCURRENCY")
	_ = viper.BindEnv("pipeline.debit_on_parse_failure", "PIPELINE_DEBIT_ON_PARSE_FAILURE")
	_ = viper.BindEnv("tokens.admission_estimate", "TOKENS_ADMISSION_ESTIMATE")
	_ = viper.BindEnv("tokens.transcribe_estimate", "TOKENS_TRANSCRIBE_ESTIMATE")
	_ = viper.BindEnv("tokens.extract_estimate", "TOKENS_EXTRACT_ESTIMATE")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = viper.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("ratelimit.submit_per_hour", 20)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.whisper_model", "whisper-1")
	viper.SetDefault("openai.chat_model", "gpt-4")
	viper.SetDefault("openai.timeout", 120)

	// Pipeline defaults
	viper.SetDefault("pipeline.size_threshold_bytes", int64(25*1024*1024))
	viper.SetDefault("pipeline.chunk_concurrency", 4)
	viper.SetDefault("pipeline.clip_concurrency", 4)
	viper.SetDefault("pipeline.debit_on_parse_failure", true)

	// Token estimate defaults (coarse upfront admission figures)
	viper.SetDefault("tokens.admission_estimate", 100)
	viper.SetDefault("tokens.transcribe_estimate", 50)
	viper.SetDefault("tokens.extract_estimate", 50)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
		},
		OpenAI: OpenAIConfig{
			APIKey:       viper.GetString("openai.api_key"),
			BaseURL:      viper.GetString("openai.base_url"),
			WhisperModel: viper.GetString("openai.whisper_model"),
			ChatModel:    viper.GetString("openai.chat_model"),
			Timeout:      viper.GetInt("openai.timeout"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			Endpoint:        viper.GetString("storage.endpoint"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Pipeline: PipelineConfig{
			SizeThresholdBytes:  viper.GetInt64("pipeline.size_threshold_bytes"),
			ChunkConcurrency:    viper.GetInt("pipeline.chunk_concurrency"),
			ClipConcurrency:     viper.GetInt("pipeline.clip_concurrency"),
			DebitOnParseFailure: viper.GetBool("pipeline.debit_on_parse_failure"),
		},
		Tokens: TokensConfig{
			AdmissionEstimate:  viper.GetInt64("tokens.admission_estimate"),
			TranscribeEstimate: viper.GetInt64("tokens.transcribe_estimate"),
			ExtractEstimate:    viper.GetInt64("tokens.extract_estimate"),
		},
	}

	return cfg, nil
}
