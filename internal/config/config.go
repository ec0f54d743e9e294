package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	PayPal    PayPalConfig
	Vapi      VapiConfig
	Billing   BillingConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens minted by the identity provider.
	JWTSecret string
	Issuer    string
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
}

type VapiConfig struct {
	BaseURL string
	APIKey  string
	// DefaultPhoneNumberID is the platform-owned fallback number used for
	// US-only outbound calls when a user has no telephony provider.
	DefaultPhoneNumberID string
}

type BillingConfig struct {
	PerMinuteRate         decimal.Decimal
	OverageRate           decimal.Decimal
	AssistantCreationCost decimal.Decimal
	MinimumBalance        decimal.Decimal
	PeriodRolloverEvery   time.Duration
}

type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	ExporterURL    string
	SamplingRatio  float64
}

func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "3001"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			Environment:  getEnv("SERVER_ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "password"),
			Name:         getEnv("DB_NAME", "voxmeter"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", ""),
		},
		PayPal: PayPalConfig{
			BaseURL:      getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
			WebhookID:    getEnv("PAYPAL_WEBHOOK_ID", ""),
		},
		Vapi: VapiConfig{
			BaseURL:              getEnv("VAPI_BASE_URL", "https://api.vapi.ai"),
			APIKey:               getEnv("VAPI_API_KEY", ""),
			DefaultPhoneNumberID: getEnv("VAPI_DEFAULT_PHONE_NUMBER_ID", ""),
		},
		Billing: BillingConfig{
			PerMinuteRate:         getEnvDecimal("BILLING_PER_MINUTE_RATE", "0.07"),
			OverageRate:           getEnvDecimal("BILLING_OVERAGE_RATE", "0.12"),
			AssistantCreationCost: getEnvDecimal("BILLING_ASSISTANT_COST", "5.00"),
			MinimumBalance:        getEnvDecimal("BILLING_MINIMUM_BALANCE", "5.00"),
			PeriodRolloverEvery:   getEnvDuration("BILLING_PERIOD_ROLLOVER_EVERY", time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvBool("TELEMETRY_ENABLED", false),
			ServiceName:    getEnv("TELEMETRY_SERVICE_NAME", "voxmeter"),
			ServiceVersion: getEnv("TELEMETRY_SERVICE_VERSION", "dev"),
			Environment:    getEnv("SERVER_ENVIRONMENT", "development"),
			ExporterURL:    getEnv("TELEMETRY_EXPORTER_URL", ""),
			SamplingRatio:  getEnvFloat("TELEMETRY_SAMPLING_RATIO", 1.0),
		},
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue string) decimal.Decimal {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}
