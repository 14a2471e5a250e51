package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/potkeeper/pkg/access"
	"github.com/platinummonkey/potkeeper/pkg/observability"
	"github.com/platinummonkey/potkeeper/pkg/storage"
)

// MinJWTSecretBytes is the shortest accepted signing secret.
const MinJWTSecretBytes = 32

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	Auth      AuthConfig      `yaml:"auth"`
	Quotas    access.Quotas   `yaml:"quotas"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// PublicURL is the externally reachable base of the API. Links in
	// account emails point at it.
	PublicURL    string   `yaml:"public_url"`
	CORSOrigins  []string `yaml:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`

	// BackgroundTaskTimeout bounds each deferred task such as blob cleanup
	// or an outgoing email.
	BackgroundTaskTimeout time.Duration `yaml:"background_task_timeout"`
}

// AuthConfig holds token and administrator settings.
type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	AdminEmails []string `yaml:"admin_emails"`
}

// RateLimitConfig throttles anonymous identify calls per client IP.
type RateLimitConfig struct {
	IdentifyRequests int           `yaml:"identify_requests"`
	IdentifyWindow   time.Duration `yaml:"identify_window"`
	IdentifyBurst    int           `yaml:"identify_burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level.
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used before any file or environment
// override is applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  "8080",
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          30 * time.Second,
			IdleTimeout:           60 * time.Second,
			ShutdownTimeout:       30 * time.Second,
			HealthPort:            "9090",
			PublicURL:             "http://localhost:8080",
			CORSOrigins:           []string{"*"},
			MaxBodyBytes:          6 << 20,
			BackgroundTaskTimeout: 30 * time.Second,
		},
		Storage: storage.DefaultConfig(),
		Quotas:  access.DefaultQuotas(),
		RateLimit: RateLimitConfig{
			IdentifyRequests: 20,
			IdentifyWindow:   time.Hour,
			IdentifyBurst:    5,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "potkeeper",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and POTKEEPER_* environment variables, then validates it. An empty
// path falls back to POTKEEPER_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("POTKEEPER_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on the current values.
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("POTKEEPER_HOST", s.Host)
	s.Port = getEnv("POTKEEPER_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("POTKEEPER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("POTKEEPER_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("POTKEEPER_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("POTKEEPER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("POTKEEPER_HEALTH_PORT", s.HealthPort)
	s.PublicURL = getEnv("POTKEEPER_PUBLIC_URL", s.PublicURL)
	s.CORSOrigins = getEnvList("POTKEEPER_CORS_ORIGINS", s.CORSOrigins)
	s.MaxBodyBytes = getEnvInt64("POTKEEPER_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.BackgroundTaskTimeout = getEnvDuration("POTKEEPER_BACKGROUND_TASK_TIMEOUT", s.BackgroundTaskTimeout)

	st := &c.Storage
	st.PostgresURL = getEnv("POTKEEPER_POSTGRES_URL", st.PostgresURL)
	st.PostgresReplicaURLs = getEnvList("POTKEEPER_POSTGRES_REPLICA_URLS", st.PostgresReplicaURLs)
	st.PostgresMaxConns = getEnvInt("POTKEEPER_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("POTKEEPER_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("POTKEEPER_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.AutoMigrate = getEnvBool("POTKEEPER_AUTO_MIGRATE", st.AutoMigrate)

	st.S3Endpoint = getEnv("POTKEEPER_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("POTKEEPER_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("POTKEEPER_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("POTKEEPER_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("POTKEEPER_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("POTKEEPER_S3_USE_PATH_STYLE", st.S3UsePathStyle)
	st.PublicBaseURL = getEnv("POTKEEPER_IMAGE_BASE_URL", st.PublicBaseURL)
	st.DefaultImages = getEnvList("POTKEEPER_DEFAULT_IMAGES", st.DefaultImages)

	st.RedisURL = getEnv("POTKEEPER_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("POTKEEPER_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("POTKEEPER_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("POTKEEPER_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("POTKEEPER_REDIS_POOL_SIZE", st.RedisPoolSize)

	c.Auth.JWTSecret = getEnv("POTKEEPER_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminEmails = getEnvList("POTKEEPER_ADMIN_EMAILS", c.Auth.AdminEmails)

	c.Quotas.Anonymous = getEnvInt("POTKEEPER_QUOTA_ANONYMOUS", c.Quotas.Anonymous)
	c.Quotas.Unverified = getEnvInt("POTKEEPER_QUOTA_UNVERIFIED", c.Quotas.Unverified)
	c.Quotas.Verified = getEnvInt("POTKEEPER_QUOTA_VERIFIED", c.Quotas.Verified)

	rl := &c.RateLimit
	rl.IdentifyRequests = getEnvInt("POTKEEPER_IDENTIFY_REQUESTS", rl.IdentifyRequests)
	rl.IdentifyWindow = getEnvDuration("POTKEEPER_IDENTIFY_WINDOW", rl.IdentifyWindow)
	rl.IdentifyBurst = getEnvInt("POTKEEPER_IDENTIFY_BURST", rl.IdentifyBurst)

	o := &c.Observability
	o.LogLevel = getEnv("POTKEEPER_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("POTKEEPER_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("POTKEEPER_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("POTKEEPER_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("POTKEEPER_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("POTKEEPER_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("POTKEEPER_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("POTKEEPER_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretBytes {
		return fmt.Errorf("JWT secret must be at least %d bytes", MinJWTSecretBytes)
	}
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" && c.Storage.S3Endpoint == "" {
		return fmt.Errorf("S3 region or endpoint is required when a bucket is set")
	}

	if c.Quotas.Anonymous <= 0 || c.Quotas.Unverified <= 0 || c.Quotas.Verified <= 0 {
		return fmt.Errorf("pot quotas must be positive")
	}
	if c.RateLimit.IdentifyRequests <= 0 || c.RateLimit.IdentifyWindow <= 0 {
		return fmt.Errorf("identify rate limit must be positive")
	}
	if c.RateLimit.IdentifyBurst < 0 {
		return fmt.Errorf("identify burst cannot be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
