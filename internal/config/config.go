package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration. Pipeline settings that can be
// rotated at runtime (API credentials, certificate, auto-submit flag) live in
// the settings table instead, see model.Settings.
type Config struct {
	// Server
	Port        string
	CORSOrigins []string

	// Database
	DatabaseDSN string

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string

	// Status sync poller
	StatusSyncInterval time.Duration

	// Delay between consecutive submissions in an auto-submit batch,
	// required by the authority's rate limit.
	SubmitDelay time.Duration
}

// Load reads configuration from configs/.env (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	return &Config{
		Port:               getEnvString("PORT", "8080"),
		CORSOrigins:        getEnvStringSlice("CORS_ORIGINS", []string{"http://localhost:5173"}),
		DatabaseDSN:        buildDSN(),
		LogLevel:           getEnvString("LOG_LEVEL", "info"),
		LogFormat:          getEnvString("LOG_FORMAT", "console"),
		LogOutput:          getEnvString("LOG_OUTPUT", "stdout"),
		StatusSyncInterval: time.Duration(getEnvInt("STATUS_SYNC_INTERVAL_SECONDS", 300)) * time.Second,
		SubmitDelay:        time.Duration(getEnvInt("SUBMIT_DELAY_MS", 1000)) * time.Millisecond,
	}
}

func buildDSN() string {
	host := getEnvString("DB_HOST", "localhost")
	port := getEnvString("DB_PORT", "5432")
	user := getEnvString("DB_USER", "postgres")
	password := getEnvString("DB_PASSWORD", "postgres")
	name := getEnvString("DB_NAME", "postgres")
	sslMode := getEnvString("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + name + "?sslmode=" + sslMode
}

func getEnvString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
