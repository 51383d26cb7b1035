package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	MarketData MarketDataConfig
	Scheduler  SchedulerConfig
	Log        LogConfig
}

// AppConfig holds project metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	APIPrefix   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	Host         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AuthConfig holds token signing and password hashing settings
type AuthConfig struct {
	SecretKey  string
	TokenTTL   time.Duration
	BcryptCost int
}

// RedisConfig holds Redis configuration. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PriceTTL time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	Topic           string
	ConsumerEnabled bool
	GroupID         string
}

// MarketDataConfig holds settings for the historical price provider
type MarketDataConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// SchedulerConfig holds settings for the daily price refresh
type SchedulerConfig struct {
	Enabled       bool
	RefreshAt     string // HH:MM, UTC
	LookbackDays  int
	RetentionDays int // 0 keeps everything
}

// LogConfig holds logging and tracing settings
type LogConfig struct {
	Level          string
	Format         string // text or json
	TracingEnabled bool
}

// Load reads configuration from a .env file (if present) and environment variables
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		App: AppConfig{
			Name:        getEnv("PROJECT_NAME", "Quantitative Trading System"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
			APIPrefix:   getEnv("API_V1_STR", "/api/v1"),
		},
		Server: ServerConfig{
			Port:         getEnv("APP_PORT", "8080"),
			Host:         getEnv("APP_HOST", "0.0.0.0"),
			CORSOrigins:  getEnvList("BACKEND_CORS_ORIGINS", []string{"*"}),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnv("POSTGRES_DB", "quant_trading"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			SecretKey:  getEnv("SECRET_KEY", ""),
			TokenTTL:   time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24*8)) * time.Minute,
			BcryptCost: getEnvInt("BCRYPT_COST", 12),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PriceTTL: getEnvDuration("REDIS_PRICE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:         getEnvBool("KAFKA_ENABLED", false),
			Brokers:         getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:           getEnv("KAFKA_TOPIC", "stock-events"),
			ConsumerEnabled: getEnvBool("KAFKA_CONSUMER_ENABLED", false),
			GroupID:         getEnv("KAFKA_GROUP_ID", "quant-data-service"),
		},
		MarketData: MarketDataConfig{
			BaseURL:           getEnv("MARKETDATA_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestsPerSecond: getEnvFloat("MARKETDATA_RPS", 2),
			Timeout:           getEnvDuration("MARKETDATA_TIMEOUT", 15*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getEnvBool("SCHEDULER_ENABLED", false),
			RefreshAt:     getEnv("SCHEDULER_REFRESH_AT", "22:30"),
			LookbackDays:  getEnvInt("SCHEDULER_LOOKBACK_DAYS", 365),
			RetentionDays: getEnvInt("SCHEDULER_RETENTION_DAYS", 0),
		},
		Log: LogConfig{
			Level:          getEnv("LOG_LEVEL", "info"),
			Format:         getEnv("LOG_FORMAT", "text"),
			TracingEnabled: getEnvBool("LOG_TRACING_ENABLED", false),
		},
	}
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid APP_PORT: %q", c.Server.Port))
	}
	if c.Auth.SecretKey == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("SECRET_KEY is required in production"))
		} else {
			c.Auth.SecretKey = "insecure-development-secret"
		}
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if c.Redis.PriceTTL <= 0 {
		errs = append(errs, errors.New("REDIS_PRICE_TTL must be positive"))
	}
	if c.MarketData.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("MARKETDATA_RPS must be positive"))
	}
	if c.Scheduler.LookbackDays <= 0 {
		errs = append(errs, errors.New("SCHEDULER_LOOKBACK_DAYS must be positive"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if _, err := time.Parse("15:04", c.Scheduler.RefreshAt); err != nil {
		errs = append(errs, fmt.Errorf("invalid SCHEDULER_REFRESH_AT: %q", c.Scheduler.RefreshAt))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in the production environment
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

// Addr returns the listen address for the HTTP server
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
