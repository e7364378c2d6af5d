package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Gateway modes accepted in GATEWAY_MODE.
const (
	GatewayModeMock = "mock"
	GatewayModeHTTP = "http"
)

// AppConfig holds all application configuration loaded from environment variables.
// It is built once at startup by LoadConfig and passed to the components that need it.
type AppConfig struct {
	// GatewayMode selects the remote data gateway: "mock" serves canned data, "http" calls APIBaseURL.
	GatewayMode string
	// APIBaseURL is the base endpoint of the optimizer backend.
	APIBaseURL string
	// APIKey is sent as the X-API-KEY header on every backend call.
	APIKey string
	// GatewayRateLimit is the maximum number of backend requests per second.
	GatewayRateLimit float64
	// ProtocolCacheTTL is how long the protocol list is served from cache. Zero disables caching.
	ProtocolCacheTTL time.Duration

	// RequestTimeout bounds every gateway and wallet call made by the store.
	RequestTimeout time.Duration
	// AutoRebalanceInterval is how often the autopilot checks for drift. Zero disables it.
	AutoRebalanceInterval time.Duration

	// AppURL is the public URL of this service, used for wallet redirect callbacks.
	AppURL string

	// WebPort is the HTTP port of the dashboard API.
	WebPort string
	// GRPCPort is the port of the gRPC health service. Empty disables it.
	GRPCPort string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogJSON switches the console writer off for log shippers.
	LogJSON bool

	Near      NearConfig
	Extension ExtensionConfig
	DB        DBConfig
}

// DBConfig holds the optional PostgreSQL settings. An empty Host disables persistence.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Enabled reports whether a database was configured.
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

// LoadConfig loads configuration from environment variables.
// Required variables return an error when missing; the rest fall back to defaults.
func LoadConfig() (AppConfig, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	var cfg AppConfig
	var err error

	cfg.GatewayMode = strings.ToLower(getEnvOrDefault("GATEWAY_MODE", GatewayModeMock))
	if cfg.GatewayMode != GatewayModeMock && cfg.GatewayMode != GatewayModeHTTP {
		return AppConfig{}, errors.New("environment variable GATEWAY_MODE must be 'mock' or 'http', got: " + cfg.GatewayMode)
	}

	if cfg.GatewayMode == GatewayModeHTTP {
		cfg.APIBaseURL, err = getEnv("API_BASE_URL")
		if err != nil {
			return AppConfig{}, err
		}
		cfg.APIKey, err = getEnv("API_KEY")
		if err != nil {
			return AppConfig{}, err
		}
	} else {
		cfg.APIBaseURL = getEnvOrDefault("API_BASE_URL", DefaultAPIBaseURL)
		cfg.APIKey = os.Getenv("API_KEY")
	}

	if cfg.GatewayRateLimit, err = getEnvAsFloat64OrDefault("GATEWAY_RATE_LIMIT", 10); err != nil {
		return AppConfig{}, err
	}
	if cfg.ProtocolCacheTTL, err = getEnvAsDurationOrDefault("PROTOCOL_CACHE_TTL", time.Minute); err != nil {
		return AppConfig{}, err
	}
	if cfg.RequestTimeout, err = getEnvAsDurationOrDefault("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.RequestTimeout <= 0 {
		return AppConfig{}, errors.New("environment variable REQUEST_TIMEOUT must be positive")
	}
	if cfg.AutoRebalanceInterval, err = getEnvAsDurationOrDefault("AUTO_REBALANCE_INTERVAL", 15*time.Minute); err != nil {
		return AppConfig{}, err
	}
	if cfg.AutoRebalanceInterval < 0 {
		return AppConfig{}, errors.New("environment variable AUTO_REBALANCE_INTERVAL must not be negative")
	}

	cfg.WebPort = getEnvOrDefault("WEB_PORT", "8080")
	cfg.GRPCPort = os.Getenv("GRPC_PORT")
	cfg.AppURL = getEnvOrDefault("APP_URL", "http://localhost:"+cfg.WebPort)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogJSON = strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")

	if cfg.Near, err = loadNearConfig(); err != nil {
		return AppConfig{}, err
	}
	cfg.Extension = loadExtensionConfig()

	if cfg.DB, err = loadDBConfig(); err != nil {
		return AppConfig{}, err
	}

	log.Debug().
		Str("GatewayMode", cfg.GatewayMode).
		Str("APIBaseURL", cfg.APIBaseURL).
		Str("NearNetwork", cfg.Near.NetworkID).
		Bool("Persistence", cfg.DB.Enabled()).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

func loadDBConfig() (DBConfig, error) {
	db := DBConfig{
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	if !db.Enabled() {
		return db, nil
	}

	var err error
	if db.Port, err = getEnvAsIntOrDefault("DB_PORT", 5432); err != nil {
		return DBConfig{}, err
	}
	if db.User == "" || db.DBName == "" {
		return DBConfig{}, errors.New("DB_USER and DB_NAME are required when DB_HOST is set")
	}
	return db, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error if set but invalid.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64. Returns error if set but invalid.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault accepts Go durations ("15s") or plain seconds ("15").
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

// expandHome expands a leading tilde (~) to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}
