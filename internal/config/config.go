// Package config reads process settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lojf/formdesk/internal/logger"
)

const DefaultSQLiteDSN = "formdesk.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

type Config struct {
	Addr           string
	LogMode        string
	DBDriver       string // sqlite or postgres
	DBDSN          string
	JWTSecret      string
	RedisAddr      string // empty selects the in-process cache
	SchemaCacheTTL time.Duration
}

// LoadDotEnv loads .env if it exists. A missing file is not an error.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

// Load reads the configuration. log may be nil.
func Load(log *logger.Logger) Config {
	return Config{
		Addr:           GetEnv("ADDR", ":8080", log),
		LogMode:        GetEnv("LOG_MODE", "dev", log),
		DBDriver:       GetEnv("DB_DRIVER", "sqlite", log),
		DBDSN:          GetEnv("DB_DSN", DefaultSQLiteDSN, log),
		JWTSecret:      GetEnv("JWT_SECRET", "", log),
		RedisAddr:      GetEnv("REDIS_ADDR", "", log),
		SchemaCacheTTL: time.Duration(GetEnvAsInt("SCHEMA_CACHE_TTL_SECONDS", 300, log)) * time.Second,
	}
}

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		if log != nil {
			log.Debug("Environment variable not set, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("Environment variable found")
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok || valStr == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable is not an int, using default", "provided", valStr, "default", defaultVal)
		}
		return defaultVal
	}
	return i
}
