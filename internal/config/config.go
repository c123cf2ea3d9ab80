package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Pipeline  PipelineConfig
	Responder ResponderConfig
	Delivery  DeliveryConfig
	Bus       BusConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines operator authentication parameters. OperatorKeyHash is a
// bcrypt hash of the shared operator key; tokens issued against it are JWTs.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorKeyHash       string
}

// PipelineConfig tunes identity, continuity, and escalation policy.
type PipelineConfig struct {
	ContinuityWindowHours int
	IdleCloseMinutes      int
	SentimentFloor        float64
	EscalationKeywords    []string
	ResponderMaxRetries   int
}

// ResponderConfig points at the external responder collaborator.
type ResponderConfig struct {
	URL            string
	TimeoutSeconds int
}

// DeliveryConfig tunes outbound send retries.
type DeliveryConfig struct {
	MaxAttempts    int
	BackoffBaseMS  int
	SendTimeoutSec int
}

// BusConfig names the event bus streams and consumer group.
type BusConfig struct {
	InboundStream    string
	EscalationStream string
	DeliveryStream   string
	MetricsStream    string
	ConsumerGroup    string
	WorkerCount      int
	MaxEventRetries  int
	BlockSeconds     int
}

var defaultEscalationKeywords = []string{
	"lawyer", "legal", "attorney", "sue", "lawsuit", "refund", "chargeback", "pricing",
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sentimentFloor, err := strconv.ParseFloat(getEnv("PIPELINE_SENTIMENT_FLOOR", "0.3"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_SENTIMENT_FLOOR: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorKeyHash:       os.Getenv("AUTH_OPERATOR_KEY_HASH"),
		},
		Pipeline: PipelineConfig{
			ContinuityWindowHours: getEnvAsInt("PIPELINE_CONTINUITY_WINDOW_HOURS", 24),
			IdleCloseMinutes:      getEnvAsInt("PIPELINE_IDLE_CLOSE_MINUTES", 120),
			SentimentFloor:        sentimentFloor,
			EscalationKeywords:    getEnvAsList("PIPELINE_ESCALATION_KEYWORDS", defaultEscalationKeywords),
			ResponderMaxRetries:   getEnvAsInt("PIPELINE_RESPONDER_MAX_RETRIES", 3),
		},
		Responder: ResponderConfig{
			URL:            getEnv("RESPONDER_URL", ""),
			TimeoutSeconds: getEnvAsInt("RESPONDER_TIMEOUT_SECONDS", 30),
		},
		Delivery: DeliveryConfig{
			MaxAttempts:    getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 3),
			BackoffBaseMS:  getEnvAsInt("DELIVERY_BACKOFF_BASE_MS", 250),
			SendTimeoutSec: getEnvAsInt("DELIVERY_SEND_TIMEOUT_SECONDS", 10),
		},
		Bus: BusConfig{
			InboundStream:    getEnv("BUS_INBOUND_STREAM", "support:inbound"),
			EscalationStream: getEnv("BUS_ESCALATION_STREAM", "support:escalations"),
			DeliveryStream:   getEnv("BUS_DELIVERY_STREAM", "support:deliveries"),
			MetricsStream:    getEnv("BUS_METRICS_STREAM", "support:metrics"),
			ConsumerGroup:    getEnv("BUS_CONSUMER_GROUP", "ingestion"),
			WorkerCount:      getEnvAsInt("BUS_WORKER_COUNT", 4),
			MaxEventRetries:  getEnvAsInt("BUS_MAX_EVENT_RETRIES", 3),
			BlockSeconds:     getEnvAsInt("BUS_BLOCK_SECONDS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ContinuityWindow returns the conversation continuity window.
func (p PipelineConfig) ContinuityWindow() time.Duration {
	return time.Duration(p.ContinuityWindowHours) * time.Hour
}

// IdleClose returns the idle timeout after which active conversations close.
func (p PipelineConfig) IdleClose() time.Duration {
	return time.Duration(p.IdleCloseMinutes) * time.Minute
}

// Timeout returns the responder call deadline.
func (r ResponderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay.
func (d DeliveryConfig) BackoffBase() time.Duration {
	return time.Duration(d.BackoffBaseMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
