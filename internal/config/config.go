/**
 * @description
 * This package handles the configuration management for the wallet-service. It uses
 * the Viper library to read configuration from environment variables (and an optional
 * .env file), providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	defaultRateLimitPrefix       = "fservice:rate_limit"
	defaultMoneyMovementLimit    = 20
	defaultStalePendingSchedule  = "*/30 * * * *"
	defaultStalePendingAfterMins = 1440
	defaultHistoryMaxLimit       = 100
)

var intDefaults = map[string]int{
	"MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE": defaultMoneyMovementLimit,
	"STALE_PENDING_AFTER_MINUTES":          defaultStalePendingAfterMins,
	"HISTORY_MAX_LIMIT":                    defaultHistoryMaxLimit,
	"MIN_DEPOSIT_AMOUNT":                   1,
	"MIN_WITHDRAW_AMOUNT":                  1,
	"MIN_TRANSFER_AMOUNT":                  1,
}

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                      string `mapstructure:"SERVER_PORT"`
	DatabaseURL                     string `mapstructure:"DATABASE_URL"`
	StoreDriver                     string `mapstructure:"STORE_DRIVER"`
	AutoMigrate                     bool   `mapstructure:"AUTO_MIGRATE"`
	RabbitMQURL                     string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                  string `mapstructure:"EVENTS_EXCHANGE"`
	PaymentEventQueue               string `mapstructure:"PAYMENT_EVENT_QUEUE"`
	RedisURL                        string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix            string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	MoneyMovementRateLimitPerMinute int    `mapstructure:"MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE"`
	JWTSecret                       string `mapstructure:"JWT_SECRET"`
	InternalAPIKey                  string `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOrigins              string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	StalePendingSchedule            string `mapstructure:"STALE_PENDING_SCHEDULE"`
	StalePendingAfterMinutes        int    `mapstructure:"STALE_PENDING_AFTER_MINUTES"`
	HistoryMaxLimit                 int    `mapstructure:"HISTORY_MAX_LIMIT"`
	MinDepositAmount                int64  `mapstructure:"MIN_DEPOSIT_AMOUNT"`
	MinWithdrawAmount               int64  `mapstructure:"MIN_WITHDRAW_AMOUNT"`
	MinTransferAmount               int64  `mapstructure:"MIN_TRANSFER_AMOUNT"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("EVENTS_EXCHANGE", "fservice.events")
	viper.SetDefault("PAYMENT_EVENT_QUEUE", "wallet_service.payment_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("STALE_PENDING_SCHEDULE", defaultStalePendingSchedule)
	for key, value := range intDefaults {
		viper.SetDefault(key, value)
	}

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("PAYMENT_EVENT_QUEUE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "WALLET_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("STALE_PENDING_SCHEDULE")
	_ = viper.BindEnv("STALE_PENDING_AFTER_MINUTES")
	_ = viper.BindEnv("HISTORY_MAX_LIMIT")
	_ = viper.BindEnv("MIN_DEPOSIT_AMOUNT")
	_ = viper.BindEnv("MIN_WITHDRAW_AMOUNT")
	_ = viper.BindEnv("MIN_TRANSFER_AMOUNT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	coerceNumericKeys()

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Viper treats an empty env var as unset; an explicitly empty schedule
	// turns the sweep off.
	if raw, ok := os.LookupEnv("STALE_PENDING_SCHEDULE"); ok && strings.TrimSpace(raw) == "" {
		config.StalePendingSchedule = ""
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("WALLET_SERVICE_INTERNAL_API_KEY"))
	}
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		log.Printf("level=warn component=config msg=\"unknown STORE_DRIVER; using postgres\" value=%q", config.StoreDriver)
		config.StoreDriver = StoreDriverPostgres
	}

	if config.MoneyMovementRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative money movement rate limit; using default\" value=%d", config.MoneyMovementRateLimitPerMinute)
		config.MoneyMovementRateLimitPerMinute = defaultMoneyMovementLimit
	}
	if config.HistoryMaxLimit <= 0 {
		log.Printf("level=warn component=config msg=\"invalid HISTORY_MAX_LIMIT; using default\" value=%d", config.HistoryMaxLimit)
		config.HistoryMaxLimit = defaultHistoryMaxLimit
	}
	if config.StalePendingAfterMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"invalid STALE_PENDING_AFTER_MINUTES; using default\" value=%d", config.StalePendingAfterMinutes)
		config.StalePendingAfterMinutes = defaultStalePendingAfterMins
	}

	config.StalePendingSchedule = strings.TrimSpace(config.StalePendingSchedule)
	if config.StalePendingSchedule != "" {
		if _, parseErr := cron.ParseStandard(config.StalePendingSchedule); parseErr != nil {
			log.Printf("level=warn component=config msg=\"invalid STALE_PENDING_SCHEDULE; using default\" value=%q err=%v", config.StalePendingSchedule, parseErr)
			config.StalePendingSchedule = defaultStalePendingSchedule
		}
	}

	for _, amount := range []*int64{&config.MinDepositAmount, &config.MinWithdrawAmount, &config.MinTransferAmount} {
		if *amount < 1 {
			*amount = 1
		}
	}

	return
}

// coerceNumericKeys replaces values that cannot be decoded into their field
// type with the key's default.
func coerceNumericKeys() {
	for key, fallback := range intDefaults {
		raw := strings.TrimSpace(viper.GetString(key))
		if raw == "" {
			continue
		}
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			log.Printf("level=warn component=config msg=\"non-numeric value; using default\" key=%s value=%q", key, raw)
			viper.Set(key, fallback)
		}
	}
	raw := strings.TrimSpace(viper.GetString("AUTO_MIGRATE"))
	if raw == "" {
		return
	}
	if _, err := strconv.ParseBool(raw); err != nil {
		log.Printf("level=warn component=config msg=\"invalid boolean; using default\" key=AUTO_MIGRATE value=%q", raw)
		viper.Set("AUTO_MIGRATE", false)
	}
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into a clean list.
func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
