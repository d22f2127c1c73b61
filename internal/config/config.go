// Package config loads server configuration from environment variables. A
// .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// PostgresDSN is the connection string for the fixture and
	// submission database.
	PostgresDSN string

	// RedisAddr enables the fixture cache when non-empty.
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// JWTSecret signs and verifies session access tokens.
	JWTSecret string
	TokenTTL  time.Duration

	// Execution pool sizing.
	PoolCapacity   int
	PoolQueueDepth int

	// Sandbox limits per test case invocation.
	RunTimeout  time.Duration
	RunMemoryB  int64
	RunNanoCPUs int64
}

// Load reads configuration from the environment, applying defaults that
// suit local development.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:           getEnv("ADDR", ":8080"),
		PostgresDSN:    postgresDSN(),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		CacheTTL:       getEnvDuration("CACHE_TTL", 10*time.Minute),
		JWTSecret:      getEnv("JWT_SECRET", "your-secret-key"),
		TokenTTL:       getEnvDuration("TOKEN_TTL", time.Hour),
		PoolCapacity:   getEnvInt("POOL_CAPACITY", 4),
		PoolQueueDepth: getEnvInt("POOL_QUEUE_DEPTH", 8),
		RunTimeout:     getEnvDuration("RUN_TIMEOUT", 5*time.Second),
		RunMemoryB:     int64(getEnvInt("RUN_MEMORY_MB", 256)) << 20,
		RunNanoCPUs:    int64(getEnvInt("RUN_NANO_CPUS", 1_000_000_000)),
	}

	if cfg.PoolCapacity <= 0 {
		return nil, fmt.Errorf("POOL_CAPACITY must be positive, got %d", cfg.PoolCapacity)
	}
	if cfg.RunTimeout <= 0 {
		return nil, fmt.Errorf("RUN_TIMEOUT must be positive, got %s", cfg.RunTimeout)
	}
	return cfg, nil
}

func postgresDSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	host := getEnv("POSTGRES_HOST", "localhost")
	user := getEnv("POSTGRES_USER", "postgres")
	password := getEnv("POSTGRES_PASSWORD", "postgres")
	dbname := getEnv("POSTGRES_DB", "togetherwecode")
	port := getEnv("POSTGRES_PORT", "5432")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
