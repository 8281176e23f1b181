package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Triage    TriageConfig
	Queue     QueueConfig
	SLA       SLAConfig
	LLM       LLMConfig
	Retriever RetrieverConfig
	Telemetry TelemetryConfig
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
	// Addr is one address, or a comma-separated list for a cluster or sentinels.
	Addr       string
	MasterName string
	Password   string
	DB         int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TriageConfig bounds the triage worker pool.
type TriageConfig struct {
	Concurrency            int
	JobTimeoutSeconds      int
	ExternalTimeoutSeconds int
	RetrieverTopK          int
	DequeueWaitSeconds     int
}

// QueueConfig controls the Redis job queue.
type QueueConfig struct {
	Name             string
	ConsumerID       string
	MaxAttempts      int
	BackoffInitialMs int
	BackoffMaxMs     int
	DedupTTLMinutes  int
	LeaseSeconds     int
}

// SLAConfig controls the breach sweeper and the policy seed.
type SLAConfig struct {
	SweepIntervalSeconds int
	PolicyFile           string
}

// LLMConfig holds generator credentials. An empty key is a valid, detectable state.
type LLMConfig struct {
	GoogleAPIKey string
	Model        string
	BaseURL      string
}

// RetrieverConfig points at the embedding service.
type RetrieverConfig struct {
	IngestURL string
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "triage-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			MasterName: os.Getenv("REDIS_MASTER_NAME"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Triage: TriageConfig{
			Concurrency:            getEnvAsInt("TRIAGE_CONCURRENCY", 4),
			JobTimeoutSeconds:      getEnvAsInt("TRIAGE_JOB_TIMEOUT_SECONDS", 120),
			ExternalTimeoutSeconds: getEnvAsInt("TRIAGE_EXTERNAL_TIMEOUT_SECONDS", 20),
			RetrieverTopK:          getEnvAsInt("TRIAGE_RETRIEVER_TOP_K", 5),
			DequeueWaitSeconds:     getEnvAsInt("TRIAGE_DEQUEUE_WAIT_SECONDS", 5),
		},
		Queue: QueueConfig{
			Name:             getEnv("QUEUE_NAME", "tickets-triage"),
			ConsumerID:       getEnv("QUEUE_CONSUMER_ID", hostname),
			MaxAttempts:      getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffInitialMs: getEnvAsInt("QUEUE_BACKOFF_INITIAL_MS", 1000),
			BackoffMaxMs:     getEnvAsInt("QUEUE_BACKOFF_MAX_MS", 60000),
			DedupTTLMinutes:  getEnvAsInt("QUEUE_DEDUP_TTL_MINUTES", 60),
			LeaseSeconds:     getEnvAsInt("QUEUE_LEASE_SECONDS", 300),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 60),
			PolicyFile:           os.Getenv("SLA_POLICY_FILE"),
		},
		LLM: LLMConfig{
			GoogleAPIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:        getEnv("GEMINI_MODEL", "gemini-2.5-flash-latest"),
			BaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		},
		Retriever: RetrieverConfig{
			IngestURL: getEnv("INGEST_SERVICE_URL", "http://localhost:8000"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "triage-engine"),
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

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// JobTimeout is the maximum wall time of one triage job.
func (t TriageConfig) JobTimeout() time.Duration {
	return secondsOr(t.JobTimeoutSeconds, 2*time.Minute)
}

// ExternalTimeout bounds each classifier, generator and retriever call.
func (t TriageConfig) ExternalTimeout() time.Duration {
	return secondsOr(t.ExternalTimeoutSeconds, 20*time.Second)
}

// DequeueWait is how long a pool slot blocks waiting for a job.
func (t TriageConfig) DequeueWait() time.Duration {
	return secondsOr(t.DequeueWaitSeconds, 5*time.Second)
}

// BackoffInitial returns the first retry delay.
func (q QueueConfig) BackoffInitial() time.Duration {
	return time.Duration(q.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays.
func (q QueueConfig) BackoffMax() time.Duration {
	return time.Duration(q.BackoffMaxMs) * time.Millisecond
}

// Addrs splits Addr into its non-empty entries.
func (r RedisConfig) Addrs() []string {
	var addrs []string
	for _, a := range strings.Split(r.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// DedupTTL bounds how long a ticket id stays locked if a consumer vanishes.
func (q QueueConfig) DedupTTL() time.Duration {
	return time.Duration(q.DedupTTLMinutes) * time.Minute
}

// Lease is how long a dequeued job may go unacknowledged before any consumer
// may redeliver it. It never drops below the job timeout plus a minute.
func (c *Config) Lease() time.Duration {
	lease := secondsOr(c.Queue.LeaseSeconds, 5*time.Minute)
	if floor := c.Triage.JobTimeout() + time.Minute; lease < floor {
		return floor
	}
	return lease
}

// SweepInterval is the period between breach sweeps.
func (s SLAConfig) SweepInterval() time.Duration {
	return secondsOr(s.SweepIntervalSeconds, time.Minute)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
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
