package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Classroom  ClassroomConfig
	Ollama     OllamaConfig
	Classifier ClassifierConfig
	Reports    ReportsConfig
	Chat       ChatConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Auth       AuthConfig
	CORS       CORSConfig
	Log        LogConfig
}

// ClassroomConfig points the fetch layer at the classroom API.
type ClassroomConfig struct {
	BaseURL     string
	AccessToken string
	PageSize    int
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// OllamaConfig configures the language model endpoint.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ClassifierConfig tunes the batched classification pipeline.
type ClassifierConfig struct {
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Categories  []string
}

// ReportsConfig governs generated report files and signed downloads.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	ResultTTL       time.Duration
	WorkerRetries   int
}

// ChatConfig bounds the report chatbot's conversation memory.
type ChatConfig struct {
	Enabled   bool
	MaxTurns  int
	MemoryTTL time.Duration
	KeyPrefix string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthConfig identifies the operator account allowed to trigger runs.
type AuthConfig struct {
	OperatorEmail        string
	OperatorPasswordHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Classroom = ClassroomConfig{
		BaseURL:     v.GetString("CLASSROOM_BASE_URL"),
		AccessToken: v.GetString("CLASSROOM_ACCESS_TOKEN"),
		PageSize:    v.GetInt("CLASSROOM_PAGE_SIZE"),
		Timeout:     parseDuration(v.GetString("CLASSROOM_TIMEOUT"), 30*time.Second),
		CacheTTL:    parseDuration(v.GetString("CLASSROOM_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Ollama = OllamaConfig{
		BaseURL: v.GetString("OLLAMA_BASE_URL"),
		Model:   v.GetString("OLLAMA_MODEL"),
		Timeout: parseDuration(v.GetString("OLLAMA_TIMEOUT"), 120*time.Second),
	}

	cfg.Classifier = ClassifierConfig{
		BatchSize:   v.GetInt("AI_BATCH_SIZE"),
		MaxRetries:  v.GetInt("AI_MAX_RETRIES"),
		BackoffBase: parseDuration(v.GetString("AI_BACKOFF_BASE"), time.Second),
		BackoffCap:  parseDuration(v.GetString("AI_BACKOFF_CAP"), 30*time.Second),
		Categories:  splitAndTrim(v.GetString("AI_CATEGORIES")),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		ResultTTL:       parseDuration(v.GetString("REPORTS_RESULT_TTL"), 7*24*time.Hour),
		WorkerRetries:   v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	cfg.Chat = ChatConfig{
		Enabled:   v.GetBool("ENABLE_CHAT"),
		MaxTurns:  v.GetInt("CHAT_MAX_TURNS"),
		MemoryTTL: parseDuration(v.GetString("CHAT_MEMORY_TTL"), time.Hour),
		KeyPrefix: v.GetString("CHAT_KEY_PREFIX"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Auth = AuthConfig{
		OperatorEmail:        v.GetString("AUTH_OPERATOR_EMAIL"),
		OperatorPasswordHash: v.GetString("AUTH_OPERATOR_PASSWORD_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("CLASSROOM_BASE_URL", "https://classroom.googleapis.com/v1")
	v.SetDefault("CLASSROOM_ACCESS_TOKEN", "")
	v.SetDefault("CLASSROOM_PAGE_SIZE", 100)
	v.SetDefault("CLASSROOM_TIMEOUT", "30s")
	v.SetDefault("CLASSROOM_CACHE_TTL", "10m")

	v.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "gpt-oss:20b")
	v.SetDefault("OLLAMA_TIMEOUT", "120s")

	v.SetDefault("AI_BATCH_SIZE", 5)
	v.SetDefault("AI_MAX_RETRIES", 5)
	v.SetDefault("AI_BACKOFF_BASE", "1s")
	v.SetDefault("AI_BACKOFF_CAP", "30s")
	v.SetDefault("AI_CATEGORIES", "")

	v.SetDefault("REPORTS_DIR", "./reports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_RESULT_TTL", "168h")
	v.SetDefault("REPORTS_WORKER_RETRIES", 1)

	v.SetDefault("ENABLE_CHAT", false)
	v.SetDefault("CHAT_MAX_TURNS", 12)
	v.SetDefault("CHAT_MEMORY_TTL", "1h")
	v.SetDefault("CHAT_KEY_PREFIX", "chat")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "classroom_insights")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "classroom-insights")

	v.SetDefault("AUTH_OPERATOR_EMAIL", "")
	v.SetDefault("AUTH_OPERATOR_PASSWORD_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
