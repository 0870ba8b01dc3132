package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, 30, cfg.DailyVideoLimit)
	require.True(t, decimal.RequireFromString("0.5").Equal(cfg.VideoEarningAmount))
	require.True(t, decimal.RequireFromString("5").Equal(cfg.MinimumWithdrawal))
	require.True(t, decimal.RequireFromString("278.5").Equal(cfg.ExchangeRate))
	require.Equal(t, 5*time.Second, cfg.Store.Timeout)
	require.Equal(t, "UTC", cfg.QuotaTimezone)
	require.Equal(t, []string{"easypaisa", "jazzcash", "bank_transfer"}, cfg.PaymentMethods)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DAILY_VIDEO_LIMIT", "10")
	t.Setenv("VIDEO_EARNING_AMOUNT", "0.25")
	t.Setenv("PKR_EXCHANGE_RATE", "280")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("PAYMENT_METHODS", "easypaisa,bank_transfer")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, 10, cfg.DailyVideoLimit)
	require.True(t, decimal.RequireFromString("0.25").Equal(cfg.VideoEarningAmount))
	require.True(t, decimal.RequireFromString("280").Equal(cfg.ExchangeRate))
	require.Equal(t, 750*time.Millisecond, cfg.Store.Timeout)
	require.Equal(t, []string{"easypaisa", "bank_transfer"}, cfg.PaymentMethods)
}

func TestDecimalHookRejectsGarbage(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MINIMUM_WITHDRAWAL", "five")

	_, err := Load(viper.New())
	require.Error(t, err)
}
