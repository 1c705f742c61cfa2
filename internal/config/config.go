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
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/titanpay/settlement-service/internal/domain"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	EscrowEventQueue           string `mapstructure:"ESCROW_EVENT_QUEUE"`
	GatewayAPIBaseURL          string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey              string `mapstructure:"GATEWAY_API_KEY"`
	JWKSURL                    string `mapstructure:"JWKS_URL"`
	DirectMaxCoins             int64  `mapstructure:"DIRECT_MAX_COINS"`
	OptionalMaxCoins           int64  `mapstructure:"OPTIONAL_MAX_COINS"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
}

// Thresholds builds the validated policy thresholds from the loaded values.
func (c Config) Thresholds() domain.Thresholds {
	return domain.Thresholds{DirectMax: c.DirectMaxCoins, OptionalMax: c.OptionalMaxCoins}
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
// Malformed policy thresholds are a startup error, not a runtime one.
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
	viper.SetDefault("ESCROW_EVENT_QUEUE", "settlement_service.escrow_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "titan:rate_limit")
	viper.SetDefault("DIRECT_MAX_COINS", 30)
	viper.SetDefault("OPTIONAL_MAX_COINS", 100)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ESCROW_EVENT_QUEUE")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("DIRECT_MAX_COINS")
	_ = viper.BindEnv("OPTIONAL_MAX_COINS")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")

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
		config.RedisRateLimitPrefix = "titan:rate_limit"
	}
	if config.TransferRateLimitPerMinute <= 0 {
		config.TransferRateLimitPerMinute = 30
	}

	if thErr := config.Thresholds().Validate(); thErr != nil {
		log.Printf("level=error component=config msg=\"invalid policy thresholds\" direct_max=%d optional_max=%d err=%v",
			config.DirectMaxCoins, config.OptionalMaxCoins, thErr)
		err = thErr
		return
	}

	return
}
