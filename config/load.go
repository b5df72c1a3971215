package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

func Load() App {
	cfg := App{
		Port:               getenv("APP_PORT", "8080"),
		DatabaseURL:        must("DATABASE_URL"),
		JWTSecret:          getenv("JWT_SECRET", "local_dev_secret"),
		Env:                getenv("APP_ENV", "dev"),
		PaymentProvider:    getenv("PAYMENT_PROVIDER", "stub"),
		FlwSecretKey:       os.Getenv("FLW_SECRET_KEY"),
		FlwWebhookHash:     os.Getenv("FLW_WEBHOOK_SECRET"),
		DefaultCurrency:    getenv("DEFAULT_CURRENCY", "NGN"),
		ProviderTimeout:    getenvInt("PROVIDER_TIMEOUT_SECONDS", 15),
		PlatformFeePercent: getenvDecimal("PLATFORM_FEE_PERCENT", "10"),
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("bad integer env, using default", "key", k, "value", v)
		return def
	}
	return n
}

func getenvDecimal(k, def string) decimal.Decimal {
	d, err := decimal.NewFromString(getenv(k, def))
	if err != nil {
		slog.Error("bad decimal env, using default", "key", k)
		d, _ = decimal.NewFromString(def)
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}
