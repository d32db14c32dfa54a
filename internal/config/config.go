package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	RabbitMQ RabbitMQConfig
	Auth     AuthConfig
	Log      LogConfig
	Dispatch DispatchConfig
	Invoice  InvoiceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// RabbitMQConfig holds the notification broker configuration.
// An empty URL disables publishing; notifications are then only logged.
type RabbitMQConfig struct {
	URL      string
	Exchange string
	// PublishTimeout bounds a single notification delivery.
	PublishTimeout time.Duration
}

// AuthConfig holds the access token settings.
type AuthConfig struct {
	JWTSecret string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// DispatchConfig holds the trip dispatch settings.
type DispatchConfig struct {
	// RequestTTL is how long a driver has to answer an offer.
	RequestTTL time.Duration
	// SweepInterval is how often overdue offers are expired.
	SweepInterval time.Duration
	// CapabilityFallback makes every available driver eligible while no
	// driver has any vehicle type registered.
	CapabilityFallback bool
}

// InvoiceConfig holds the parameters of invoices issued on delivery.
type InvoiceConfig struct {
	TaxRate     float64
	HandlingFee float64
	DueDays     int
	Currency    string
}

// Load loads configuration from environment variables, after merging
// the nearest .env file into the environment.
func Load() *Config {
	LoadDotEnvUp(6)

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "fleet"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "fleet-dispatch"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		RabbitMQ: RabbitMQConfig{
			URL:            getEnv("RABBITMQ_URL", ""),
			Exchange:       getEnv("RABBITMQ_EXCHANGE", "fleet.notifications"),
			PublishTimeout: getDurationEnv("RABBITMQ_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Dispatch: DispatchConfig{
			RequestTTL:         getDurationEnv("DISPATCH_REQUEST_TTL", 15*time.Minute),
			SweepInterval:      getDurationEnv("DISPATCH_SWEEP_INTERVAL", time.Minute),
			CapabilityFallback: getBoolEnv("DISPATCH_CAPABILITY_FALLBACK", true),
		},
		Invoice: InvoiceConfig{
			TaxRate:     getFloatEnv("INVOICE_TAX_RATE", 0.15),
			HandlingFee: getFloatEnv("INVOICE_HANDLING_FEE", 0),
			DueDays:     getIntEnv("INVOICE_DUE_DAYS", 30),
			Currency:    getEnv("INVOICE_CURRENCY", "SAR"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
