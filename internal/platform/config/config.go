package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Addr string

	// AdminTokenHash is the bcrypt hash of the operator admin token.
	// Empty disables admin routes rather than leaving them open.
	AdminTokenHash string

	// JWTSigningKey validates operator bearer tokens for actor identity.
	JWTSigningKey string

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// ScanLockTTL bounds how long a drift-scan tuple lock is held before
	// an abandoned scan's lock expires.
	ScanLockTTL time.Duration

	// CoverageWorkers bounds parallel per-mapping coverage recomputes.
	CoverageWorkers int
}

// RedisConfig mirrors the options we actually tune on go-redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv reads configuration from the environment, applying defaults
// suitable for local development.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("CROSSWALK_ADDR", ":8080"),
		AdminTokenHash:  os.Getenv("CROSSWALK_ADMIN_TOKEN_HASH"),
		JWTSigningKey:   os.Getenv("CROSSWALK_JWT_SIGNING_KEY"),
		PostgresURL:     os.Getenv("CROSSWALK_POSTGRES_URL"),
		ScanLockTTL:     envDuration("CROSSWALK_SCAN_LOCK_TTL", 5*time.Minute),
		CoverageWorkers: envInt("CROSSWALK_COVERAGE_WORKERS", 8),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("CROSSWALK_REDIS_URL"),
		PoolSize:     envInt("CROSSWALK_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("CROSSWALK_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDuration("CROSSWALK_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("CROSSWALK_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("CROSSWALK_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	if brokers := os.Getenv("CROSSWALK_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: splitAndTrim(brokers),
			Topic:   envOr("CROSSWALK_KAFKA_AUDIT_TOPIC", "crosswalk.audit"),
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
