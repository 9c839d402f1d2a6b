package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`) //nolint:gochecknoglobals // compiled once

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	Evidence  EvidenceConfig
	Slack     SlackConfig
	Metrics   MetricsConfig
	Log       LogConfig
	Bootstrap BootstrapConfig
	DevMode   bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string //nolint:gosec // G117: DB connection config
	DBName      string
	SSLMode     string
	MaxConns    int
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	// Requests per second allowed per tenant and per client IP.
	TenantRPS int
	IPRPS     int
}

// EvidenceConfig holds sealing protocol limits.
type EvidenceConfig struct {
	MaxPayloadBytes int
	MaxFileBytes    int64
	Placeholders    []string
	// EncryptionKey is the hex-encoded 32-byte AES key for attachments at rest.
	// Empty disables encryption.
	EncryptionKey string //nolint:gosec // G117: attachment encryption key config
}

// SlackConfig holds Slack integration settings.
type SlackConfig struct {
	BotToken      string
	ReviewChannel string
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LogConfig holds zerolog settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// BootstrapConfig names a tenant created at startup when missing, so the first
// user has somewhere to register.
type BootstrapConfig struct {
	TenantSlug string
	TenantName string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("EVIDRA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("EVIDRA_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	autoMigrate, err := getEnvBool("EVIDRA_DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("EVIDRA_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("EVIDRA_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("EVIDRA_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("EVIDRA_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("EVIDRA_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tenantRPS, err := getEnvInt("EVIDRA_RATE_LIMIT_TENANT_RPS", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ipRPS, err := getEnvInt("EVIDRA_RATE_LIMIT_IP_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxPayload, err := getEnvInt("EVIDRA_EVIDENCE_MAX_PAYLOAD_BYTES", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxFile, err := getEnvInt("EVIDRA_EVIDENCE_MAX_FILE_BYTES", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	metricsEnabled, err := getEnvBool("EVIDRA_METRICS_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	devMode, err := getEnvBool("EVIDRA_DEV_MODE", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:        getEnv("EVIDRA_DB_HOST", "localhost"),
			Port:        dbPort,
			User:        getEnv("EVIDRA_DB_USER", "evidra"),
			Password:    getEnv("EVIDRA_DB_PASSWORD", ""),
			DBName:      getEnv("EVIDRA_DB_NAME", "evidra_dev"),
			SSLMode:     getEnv("EVIDRA_DB_SSLMODE", "disable"),
			MaxConns:    dbMaxConns,
			AutoMigrate: autoMigrate,
		},
		Redis: RedisConfig{
			Addr:     getEnv("EVIDRA_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("EVIDRA_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:     getEnv("EVIDRA_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("EVIDRA_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("EVIDRA_CORS_ORIGINS", []string{"http://localhost:5173"}),
			TenantRPS:    tenantRPS,
			IPRPS:        ipRPS,
		},
		Evidence: EvidenceConfig{
			MaxPayloadBytes: maxPayload,
			MaxFileBytes:    int64(maxFile),
			Placeholders: getEnvList("EVIDRA_EVIDENCE_PLACEHOLDERS",
				[]string{"test", "tbd", "n/a", "lorem ipsum", "xxx", "placeholder", "dummy"}),
			EncryptionKey: getEnv("EVIDRA_EVIDENCE_ENCRYPTION_KEY", ""),
		},
		Slack: SlackConfig{
			BotToken:      getEnv("EVIDRA_SLACK_BOT_TOKEN", ""),
			ReviewChannel: getEnv("EVIDRA_SLACK_REVIEW_CHANNEL", ""),
		},
		Metrics: MetricsConfig{
			Enabled: metricsEnabled,
			Path:    getEnv("EVIDRA_METRICS_PATH", "/metrics"),
		},
		Log: LogConfig{
			Level:  getEnv("EVIDRA_LOG_LEVEL", "info"),
			Format: getEnv("EVIDRA_LOG_FORMAT", "json"),
		},
		Bootstrap: BootstrapConfig{
			TenantSlug: getEnv("EVIDRA_BOOTSTRAP_TENANT_SLUG", ""),
			TenantName: getEnv("EVIDRA_BOOTSTRAP_TENANT_NAME", ""),
		},
		DevMode: devMode,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("EVIDRA_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("EVIDRA_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && !c.DevMode {
		log.Warn().Msg("EVIDRA_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("EVIDRA_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("EVIDRA_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("EVIDRA_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("EVIDRA_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("EVIDRA_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("EVIDRA_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.TenantRPS < 1 {
		return fmt.Errorf("EVIDRA_RATE_LIMIT_TENANT_RPS must be >= 1, got %d", c.Server.TenantRPS)
	}
	if c.Server.IPRPS < 1 {
		return fmt.Errorf("EVIDRA_RATE_LIMIT_IP_RPS must be >= 1, got %d", c.Server.IPRPS)
	}
	if c.Evidence.MaxPayloadBytes < 2 {
		return fmt.Errorf("EVIDRA_EVIDENCE_MAX_PAYLOAD_BYTES must be >= 2, got %d", c.Evidence.MaxPayloadBytes)
	}
	if c.Evidence.MaxFileBytes < 1 {
		return fmt.Errorf("EVIDRA_EVIDENCE_MAX_FILE_BYTES must be >= 1, got %d", c.Evidence.MaxFileBytes)
	}
	if c.Evidence.EncryptionKey != "" {
		if _, err := c.Evidence.Key(); err != nil {
			return err
		}
	}
	if c.Slack.BotToken != "" && c.Slack.ReviewChannel == "" {
		return errors.New("EVIDRA_SLACK_REVIEW_CHANNEL is required when EVIDRA_SLACK_BOT_TOKEN is set")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("EVIDRA_METRICS_PATH must start with '/', got %q", c.Metrics.Path)
	}

	if c.Bootstrap.TenantSlug != "" && !slugPattern.MatchString(c.Bootstrap.TenantSlug) {
		return fmt.Errorf("EVIDRA_BOOTSTRAP_TENANT_SLUG must be lowercase alphanumeric with hyphens, got %q", c.Bootstrap.TenantSlug)
	}

	return nil
}

// Key decodes the attachment encryption key. Returns nil, nil when unset.
func (c *EvidenceConfig) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("EVIDRA_EVIDENCE_ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
