package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Game     GameConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
}

// AuthConfig holds the shared secret used to verify handshake tokens
// issued by the external auth service
type AuthConfig struct {
	TokenSecret string
}

// GameConfig holds all race tuning knobs
type GameConfig struct {
	Countdown      time.Duration // delay between match creation and racing
	TickInterval   time.Duration // race_update broadcast period
	FinishDistance int           // distance a participant must reach to finish
	TapDistance    int           // distance gained per well-spaced tap
	MinTapInterval time.Duration // taps faster than this earn reduced distance
	GraceWindow    time.Duration // reconnect window before a DNF is assigned
	ChallengeTTL   time.Duration // pending challenge lifetime
	EloK           int           // K-factor for rating settlement
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tapdash"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("BACKEND_PORT", 8000),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("AUTH_TOKEN_SECRET", "dev-secret-change-me"),
		},
		Game: GameConfig{
			Countdown:      getEnvAsDuration("GAME_COUNTDOWN", 3*time.Second),
			TickInterval:   getEnvAsDuration("GAME_TICK_INTERVAL", 100*time.Millisecond),
			FinishDistance: getEnvAsInt("GAME_FINISH_DISTANCE", 2400),
			TapDistance:    getEnvAsInt("GAME_TAP_DISTANCE", 24),
			MinTapInterval: getEnvAsDuration("GAME_MIN_TAP_INTERVAL", 60*time.Millisecond),
			GraceWindow:    getEnvAsDuration("GAME_GRACE_WINDOW", 15*time.Second),
			ChallengeTTL:   getEnvAsDuration("GAME_CHALLENGE_TTL", 60*time.Second),
			EloK:           getEnvAsInt("GAME_ELO_K", 32),
		},
	}

	return cfg, nil
}

// GetDSN returns the PostgreSQL DSN
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a duration string
// (e.g. "100ms", "3s") or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
