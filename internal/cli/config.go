package cli

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	CredentialsFile string // Required: path to the service-account key file
	APIKey          string // Optional: overrides the api_key field of the key file

	StoreDriver     string        // Optional: session store driver (file, sqlite) (default: file)
	StoreFile       string        // Optional: path to the file store (default: ./sessions.json)
	StoreDB         string        // Optional: path to the SQLite store (default: ./sessions.db)
	StorePassphrase string        // Optional: passphrase to seal the file store (default: unsealed)
	HTTPTimeout     time.Duration // Optional: per-request timeout for token exchanges (default: 10s)
	Env             string        // Environment (dev, staging, prod) (default: dev)
	LogLevel        string        // Log level (debug, info, warn, error) (default: info)
	LogFormat       string        // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		CredentialsFile: getEnvOrDefault("FIRESIDE_CREDENTIALS", "firebase-service-account.json"),
		APIKey:          os.Getenv("FIRESIDE_API_KEY"), // Optional: key file usually carries it
		StoreDriver:     getEnvOrDefault("FIRESIDE_STORE", "file"),
		StoreFile:       getEnvOrDefault("FIRESIDE_STORE_FILE", "sessions.json"),
		StoreDB:         getEnvOrDefault("FIRESIDE_STORE_DB", "sessions.db"),
		StorePassphrase: os.Getenv("FIRESIDE_PASSPHRASE"),
		HTTPTimeout:     getEnvDurationOrDefault("FIRESIDE_HTTP_TIMEOUT", 10*time.Second),
		Env:             getEnvOrDefault("ENV", "dev"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are taken as seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
