package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"citysync/internal/store"
)

// AppConfig carries everything the pipeline needs. It is built once at
// process start and passed by reference; nothing reads the environment
// after Load returns.
type AppConfig struct {
	CityAPIKey    string `validate:"required"`
	WeatherAPIKey string `validate:"required"`
	FlightsAPIKey string `validate:"required"`

	// Cities seeded and tracked by the pipeline.
	Cities []string `validate:"required,min=1"`

	// HTTPTimeout bounds every outbound API call.
	HTTPTimeout time.Duration

	Postgres store.PostgresConfig

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.CityAPIKey = os.Getenv("CITY_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	cfg.FlightsAPIKey = os.Getenv("FLIGHTS_API_KEY")

	cfg.Cities = splitList(getenvDefault("CITY_LIST", ""))

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Postgres = store.PostgresConfig{
		Host:     getenvDefault("POSTGRES_HOST", "localhost"),
		Port:     getenvInt("POSTGRES_PORT", 5432),
		Database: getenvDefault("POSTGRES_DB", "citysync"),
		User:     getenvDefault("POSTGRES_USER", "citysync"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
	}

	cfg.Port = getenvDefault("PORT", "8080")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
