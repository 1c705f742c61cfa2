package config

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/titanpay/settlement-service/internal/domain"
)

func TestLoadConfig_DefaultThresholds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "DIRECT_MAX_COINS")
	unsetEnvWithCleanup(t, "OPTIONAL_MAX_COINS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DirectMaxCoins != 30 {
		t.Fatalf("expected default DirectMaxCoins 30, got %d", cfg.DirectMaxCoins)
	}
	if cfg.OptionalMaxCoins != 100 {
		t.Fatalf("expected default OptionalMaxCoins 100, got %d", cfg.OptionalMaxCoins)
	}
}

func TestLoadConfig_RejectsInvertedThresholds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DIRECT_MAX_COINS", "100")
	setEnvWithCleanup(t, "OPTIONAL_MAX_COINS", "30")

	_, err := LoadConfig(t.TempDir())
	if !errors.Is(err, domain.ErrInvalidThresholds) {
		t.Fatalf("expected ErrInvalidThresholds, got %v", err)
	}
}

func TestLoadConfig_RejectsEqualThresholds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DIRECT_MAX_COINS", "50")
	setEnvWithCleanup(t, "OPTIONAL_MAX_COINS", "50")

	_, err := LoadConfig(t.TempDir())
	if !errors.Is(err, domain.ErrInvalidThresholds) {
		t.Fatalf("expected ErrInvalidThresholds, got %v", err)
	}
}

func TestLoadConfig_RejectsNegativeDirectMax(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DIRECT_MAX_COINS", "-1")
	setEnvWithCleanup(t, "OPTIONAL_MAX_COINS", "100")

	_, err := LoadConfig(t.TempDir())
	if !errors.Is(err, domain.ErrInvalidThresholds) {
		t.Fatalf("expected ErrInvalidThresholds, got %v", err)
	}
}

func TestLoadConfig_CustomThresholds(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DIRECT_MAX_COINS", "10")
	setEnvWithCleanup(t, "OPTIONAL_MAX_COINS", "500")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	th := cfg.Thresholds()
	if th.DirectMax != 10 || th.OptionalMax != 500 {
		t.Fatalf("expected thresholds {10 500}, got %+v", th)
	}
}

func TestLoadConfig_RateLimitDefaultsWhenNonPositive(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferRateLimitPerMinute != 30 {
		t.Fatalf("expected rate limit fallback 30, got %d", cfg.TransferRateLimitPerMinute)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
