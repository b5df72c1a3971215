package config

import "github.com/shopspring/decimal"

type App struct {
	Port            string `env:"APP_PORT" default:"8080"`
	DatabaseURL     string `env:"DATABASE_URL,required"`
	JWTSecret       string `env:"JWT_SECRET,required"`
	Env             string `env:"APP_ENV" default:"dev"`
	PaymentProvider string `env:"PAYMENT_PROVIDER" default:"stub"`
	FlwSecretKey    string `env:"FLW_SECRET_KEY"`
	FlwWebhookHash  string `env:"FLW_WEBHOOK_SECRET"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY" default:"NGN"`
	ProviderTimeout int    `env:"PROVIDER_TIMEOUT_SECONDS" default:"15"`

	// PlatformFeePercent is the share of every escrow release retained by
	// the platform, e.g. 10 for 10%.
	PlatformFeePercent decimal.Decimal `env:"PLATFORM_FEE_PERCENT" default:"10"`
}
