/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the credit-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	AlertExchange           string `mapstructure:"ALERT_EXCHANGE"`
	CardVendorAPIBaseURL    string `mapstructure:"CARD_VENDOR_API_BASE_URL"`
	CardVendorAPIKey        string `mapstructure:"CARD_VENDOR_API_KEY"`
	AuthJWKSURL             string `mapstructure:"AUTH_JWKS_URL"`
	FulfillmentFeeCents     int64  `mapstructure:"FULFILLMENT_FEE_CENTS"`
	ProvisionFallback       bool   `mapstructure:"PROVISION_FALLBACK_ENABLED"`
	ProvisionLimitPerMinute int    `mapstructure:"PROVISION_RATE_LIMIT_PER_MINUTE"`
	LowInventoryThreshold   int    `mapstructure:"LOW_INVENTORY_THRESHOLD"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "rewardloop:rate_limit")
	viper.SetDefault("ALERT_EXCHANGE", "credit_events")
	viper.SetDefault("FULFILLMENT_FEE_CENTS", 0)
	viper.SetDefault("PROVISION_FALLBACK_ENABLED", true)
	viper.SetDefault("PROVISION_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("LOW_INVENTORY_THRESHOLD", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CREDIT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ALERT_EXCHANGE")
	_ = viper.BindEnv("CARD_VENDOR_API_BASE_URL")
	_ = viper.BindEnv("CARD_VENDOR_API_KEY")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("FULFILLMENT_FEE_CENTS")
	_ = viper.BindEnv("FULFILLMENT_FEE")
	_ = viper.BindEnv("PROVISION_FALLBACK_ENABLED")
	_ = viper.BindEnv("PROVISION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LOW_INVENTORY_THRESHOLD")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "rewardloop:rate_limit"
	}
	config.AlertExchange = strings.TrimSpace(config.AlertExchange)
	if config.AlertExchange == "" {
		config.AlertExchange = "credit_events"
	}

	// Allow specifying the fee in whole currency units via FULFILLMENT_FEE.
	if viper.IsSet("FULFILLMENT_FEE") {
		feeStr := strings.TrimSpace(viper.GetString("FULFILLMENT_FEE"))
		if feeStr != "" {
			feeValue, parseErr := strconv.ParseFloat(feeStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid FULFILLMENT_FEE\" value=%q err=%v", feeStr, parseErr)
			} else {
				config.FulfillmentFeeCents = int64(math.Round(feeValue * 100))
			}
		}
	}

	if config.FulfillmentFeeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative fulfillment fee configured; coercing to zero\" fee_cents=%d", config.FulfillmentFeeCents)
		config.FulfillmentFeeCents = 0
	}
	if config.ProvisionLimitPerMinute < 0 {
		config.ProvisionLimitPerMinute = 0
	}
	if config.LowInventoryThreshold < 0 {
		config.LowInventoryThreshold = 0
	}

	return
}
