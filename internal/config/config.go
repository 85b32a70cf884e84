package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	DB     *DBConfig
	Server ServerConfig
	Auth   AuthConfig
	Cache  CacheConfig
	Log    LogConfig
}

type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
	PurgeInterval   time.Duration
}

type AuthConfig struct {
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	SessionTTL      time.Duration
	VerificationTTL time.Duration
}

type CacheConfig struct {
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Enabled reports whether a redis address was configured.
func (c CacheConfig) Enabled() bool { return c.RedisAddr != "" }

type LogConfig struct {
	Level  string
	Format string
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	// .env is optional; real deployments inject variables directly.
	_ = godotenv.Load()

	dbCfg, err := LoadDBConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DB: dbCfg,
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			PurgeInterval:   getEnvDuration("PURGE_INTERVAL", time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:       []byte(os.Getenv("JWT_SECRET")),
			AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			SessionTTL:      getEnvDuration("SESSION_TTL", 30*24*time.Hour),
			VerificationTTL: getEnvDuration("VERIFICATION_TTL", 24*time.Hour),
		},
		Cache: CacheConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisUsername: getEnv("REDIS_USERNAME", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "INFO"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if len(cfg.Auth.JWTSecret) == 0 {
		return nil, ErrMissingJWTSecret
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.SessionTTL <= 0 {
		return nil, fmt.Errorf("invalid auth config: token TTLs must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
