package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Match Settings
	ReadyTimeoutSecs          int
	CountdownSecs             int
	DisconnectGracePeriodSecs int
	MatchRetentionSecs        int
	InputRatePerSecond        int
	ChatBufferSize            int
	ChatMaxLength             int
	CommissionPercentage      int
	MinStakeAmount            int

	// Security
	JWTSecret         string
	SessionTimeoutMin int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:       getEnv("DATABASE_URL", "postgres://localhost:5432/playrally?sslmode=disable"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifeMins: getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Match Settings
		ReadyTimeoutSecs:          getEnvInt("READY_TIMEOUT_SECONDS", 30),
		CountdownSecs:             getEnvInt("COUNTDOWN_SECONDS", 3),
		DisconnectGracePeriodSecs: getEnvInt("DISCONNECT_GRACE_PERIOD_SECONDS", 30),
		MatchRetentionSecs:        getEnvInt("MATCH_RETENTION_SECONDS", 60),
		InputRatePerSecond:        getEnvInt("INPUT_RATE_PER_SECOND", 15),
		ChatBufferSize:            getEnvInt("CHAT_BUFFER_SIZE", 50),
		ChatMaxLength:             getEnvInt("CHAT_MAX_LENGTH", 280),
		CommissionPercentage:      getEnvInt("COMMISSION_PERCENTAGE", 10),
		MinStakeAmount:            getEnvInt("MIN_STAKE_AMOUNT", 1000),

		// Security
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTimeoutMin: getEnvInt("SESSION_TIMEOUT_MINUTES", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
