package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
	"github.com/changeledger/changeledger/pkg/observability"
	"github.com/changeledger/changeledger/pkg/store"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Audit     AuditConfig
	Retention RetentionConfig
	Cache     CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds audit log database configuration
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Dialect maps the configured driver to the store's SQL dialect
func (c DatabaseConfig) Dialect() store.Dialect {
	if c.Driver == "sqlite" {
		return store.DialectSQLite
	}
	return store.DialectPostgres
}

// AuditConfig holds change capture policy settings
type AuditConfig struct {
	Enabled             bool
	MaskPattern         string
	SensitiveProperties []string

	// ExcludedProperties entries are "Entity:Property" pairs
	ExcludedProperties []string

	IncludedEntities []string
	ExcludedEntities []string
	LogChangeDetails bool
	MaxValueLength   int
	LoggedStates     []audit.State
}

// Options builds the capture policy from the configured settings
func (c AuditConfig) Options() *audit.Options {
	opts := audit.DefaultOptions()
	opts.Enabled = c.Enabled
	opts.LogChangeDetails = c.LogChangeDetails
	if c.MaskPattern != "" {
		opts.MaskPattern = c.MaskPattern
	}
	if len(c.SensitiveProperties) > 0 {
		opts.SensitiveProperties = c.SensitiveProperties
	}
	if c.MaxValueLength > 0 {
		opts.MaxValueLength = c.MaxValueLength
	}
	if len(c.LoggedStates) > 0 {
		opts.LoggedStates = c.LoggedStates
	}
	opts.IncludedEntities = c.IncludedEntities
	opts.ExcludedEntities = c.ExcludedEntities

	for _, pair := range c.ExcludedProperties {
		entity, property, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		opts.ExcludedProperties[entity] = append(opts.ExcludedProperties[entity], property)
	}

	return opts
}

// RetentionConfig holds retention cleanup settings
type RetentionConfig struct {
	RetentionDays int
	BatchSize     int

	// Schedule is a cron expression for the retention worker
	Schedule string

	Archive        bool
	ArchiveBackend string
	ArchiveDir     string

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3KeyPrefix    string
}

// CacheConfig holds analytics cache settings
type CacheConfig struct {
	// Type is memory, redis, or off
	Type string

	MemorySize int
	TTL        time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Audit:         loadAuditConfig(),
		Retention:     loadRetentionConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CHANGELEDGER_HOST", "0.0.0.0"),
		Port:            getEnv("CHANGELEDGER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CHANGELEDGER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CHANGELEDGER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CHANGELEDGER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CHANGELEDGER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CHANGELEDGER_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnv("CHANGELEDGER_DB_DRIVER", "postgres"),
		URL:             getEnv("CHANGELEDGER_DB_URL", ""),
		MaxOpenConns:    getEnvInt("CHANGELEDGER_DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("CHANGELEDGER_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("CHANGELEDGER_DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// loadAuditConfig loads capture policy configuration from environment
func loadAuditConfig() AuditConfig {
	cfg := AuditConfig{
		Enabled:             getEnvBool("CHANGELEDGER_AUDIT_ENABLED", true),
		MaskPattern:         getEnv("CHANGELEDGER_AUDIT_MASK_PATTERN", ""),
		SensitiveProperties: getEnvList("CHANGELEDGER_AUDIT_SENSITIVE_PROPERTIES"),
		ExcludedProperties:  getEnvList("CHANGELEDGER_AUDIT_EXCLUDED_PROPERTIES"),
		IncludedEntities:    getEnvList("CHANGELEDGER_AUDIT_INCLUDED_ENTITIES"),
		ExcludedEntities:    getEnvList("CHANGELEDGER_AUDIT_EXCLUDED_ENTITIES"),
		LogChangeDetails:    getEnvBool("CHANGELEDGER_AUDIT_LOG_CHANGE_DETAILS", true),
		MaxValueLength:      getEnvInt("CHANGELEDGER_AUDIT_MAX_VALUE_LENGTH", audit.DefaultMaxValueLength),
	}

	for _, name := range getEnvList("CHANGELEDGER_AUDIT_LOGGED_STATES") {
		if state, err := audit.ParseState(name); err == nil {
			cfg.LoggedStates = append(cfg.LoggedStates, state)
		}
	}

	return cfg
}

// loadRetentionConfig loads retention configuration from environment
func loadRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetentionDays:  getEnvInt("CHANGELEDGER_RETENTION_DAYS", 90),
		BatchSize:      getEnvInt("CHANGELEDGER_RETENTION_BATCH_SIZE", 100),
		Schedule:       getEnv("CHANGELEDGER_RETENTION_SCHEDULE", "0 3 * * *"),
		Archive:        getEnvBool("CHANGELEDGER_RETENTION_ARCHIVE", false),
		ArchiveBackend: getEnv("CHANGELEDGER_RETENTION_ARCHIVE_BACKEND", "file"),
		ArchiveDir:     getEnv("CHANGELEDGER_RETENTION_ARCHIVE_DIR", "/var/lib/changeledger/archive"),
		S3Bucket:       getEnv("CHANGELEDGER_RETENTION_S3_BUCKET", ""),
		S3Region:       getEnv("CHANGELEDGER_RETENTION_S3_REGION", ""),
		S3Endpoint:     getEnv("CHANGELEDGER_RETENTION_S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("CHANGELEDGER_RETENTION_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("CHANGELEDGER_RETENTION_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("CHANGELEDGER_RETENTION_S3_USE_PATH_STYLE", false),
		S3KeyPrefix:    getEnv("CHANGELEDGER_RETENTION_S3_KEY_PREFIX", ""),
	}
}

// loadCacheConfig loads analytics cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Type:          getEnv("CHANGELEDGER_CACHE_TYPE", "memory"),
		MemorySize:    getEnvInt("CHANGELEDGER_CACHE_MEMORY_SIZE", 1024),
		TTL:           getEnvDuration("CHANGELEDGER_CACHE_TTL", 5*time.Minute),
		RedisURL:      getEnv("CHANGELEDGER_REDIS_URL", ""),
		RedisPassword: getEnv("CHANGELEDGER_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("CHANGELEDGER_REDIS_DB", 0),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLevel(getEnv("CHANGELEDGER_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("CHANGELEDGER_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite)", c.Database.Driver)
	}

	if c.Retention.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}
	if c.Retention.BatchSize < 1 || c.Retention.BatchSize > 1000 {
		return fmt.Errorf("retention batch size must be between 1 and 1000")
	}
	switch c.Retention.ArchiveBackend {
	case "file":
	case "s3":
		if c.Retention.Archive && c.Retention.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 archiving")
		}
	default:
		return fmt.Errorf("invalid archive backend: %s (must be file or s3)", c.Retention.ArchiveBackend)
	}

	switch c.Cache.Type {
	case "memory", "off":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory, redis, or off)", c.Cache.Type)
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
