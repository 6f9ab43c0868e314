package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type Config struct {
	DatabasePath string
	ServerPort   int
	LogLevel     zerolog.Level
	LogFormat    string
}

// Load reads the environment, picking up a .env file in the working
// directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if err := ValidatePort(port); err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
	}

	format := getEnv("LOG_FORMAT", LogFormatConsole)
	if format != LogFormatConsole && format != LogFormatJSON {
		return nil, fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", LogFormatConsole, LogFormatJSON, format)
	}

	return &Config{
		DatabasePath: getEnv("DATABASE_PATH", "duel_organizer.db"),
		ServerPort:   port,
		LogLevel:     level,
		LogFormat:    format,
	}, nil
}

func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
