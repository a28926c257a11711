package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Enforce     EnforceConfig
	Warning     WarningConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and notification routing settings
type RabbitMQConfig struct {
	URL                string
	NotifyExchange     string
	NotifyRoutingKey   string
	WarningTemplateKey string
}

// EnforceConfig holds enforcement sweep settings
type EnforceConfig struct {
	SweepIntervalSeconds int
	SweepTimeoutSeconds  int
}

// WarningConfig holds threshold-notifier sweep settings. Thresholds are
// remaining energy units per customer class.
type WarningConfig struct {
	SweepIntervalSeconds   int
	SweepTimeoutSeconds    int
	ShortStayThresholdUnit float64
	SeasonalThresholdUnit  float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "energy-entitlement-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8082),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                getEnv("RABBITMQ_URL", ""),
			NotifyExchange:     getEnv("RABBITMQ_NOTIFY_EXCHANGE", "guest-services.notifications.exchange"),
			NotifyRoutingKey:   getEnv("RABBITMQ_NOTIFY_ROUTING_KEY", "notification.energy.low_balance"),
			WarningTemplateKey: getEnv("NOTIFY_WARNING_TEMPLATE_KEY", "energy_low_balance"),
		},
		Enforce: EnforceConfig{
			SweepIntervalSeconds: getEnvAsInt("ENFORCE_SWEEP_INTERVAL_SECONDS", 90),
			SweepTimeoutSeconds:  getEnvAsInt("ENFORCE_SWEEP_TIMEOUT_SECONDS", 60),
		},
		Warning: WarningConfig{
			SweepIntervalSeconds:   getEnvAsInt("WARNING_SWEEP_INTERVAL_SECONDS", 300),
			SweepTimeoutSeconds:    getEnvAsInt("WARNING_SWEEP_TIMEOUT_SECONDS", 60),
			ShortStayThresholdUnit: getEnvAsFloat("WARNING_THRESHOLD_SHORT_STAY", 2.0),
			SeasonalThresholdUnit:  getEnvAsFloat("WARNING_THRESHOLD_SEASONAL", 5.0),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
