package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	Env         string `envconfig:"ENV" default:"development"`
	APIURL      string `envconfig:"EXTERNAL_URL" default:"localhost:8080"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	AppScheme   string `envconfig:"APP_SCHEME" default:"adslots"`

	DB          dbConfig          `envconfig:"DB"`
	Redis       redisConfig       `envconfig:"REDIS"`
	Auth        authConfig        `envconfig:"AUTH"`
	Mail        mailConfig        `envconfig:"MAIL"`
	Slots       slotsConfig       `envconfig:"SLOTS"`
	Payments    paymentsConfig    `envconfig:"PAYMENTS"`
	RateLimiter rateLimiterConfig `envconfig:"RATE_LIMITER"`

	CloudinaryURL   string `envconfig:"CLOUDINARY_URL"`
	ExpoAccessToken string `envconfig:"EXPO_ACCESS_TOKEN"`
}

type dbConfig struct {
	Addr        string `envconfig:"ADDR" required:"true"`
	MaxConns    int32  `envconfig:"MAX_OPEN_CONNS" default:"30"`
	MinConns    int32  `envconfig:"MIN_CONNS" default:"2"`
	MaxIdleTime string `envconfig:"MAX_IDLE_TIME" default:"15m"`
}

// An empty address falls back to an in-process cache.
type redisConfig struct {
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

type authConfig struct {
	BasicUser     string `envconfig:"BASIC_USER" default:"admin"`
	BasicPassHash string `envconfig:"BASIC_PASS_HASH"`
	TokenSecret   string `envconfig:"TOKEN_SECRET" required:"true"`
	Issuer        string `envconfig:"TOKEN_ISS" default:"AdSlots"`
}

type mailConfig struct {
	FromEmail      string `envconfig:"FROM_EMAIL" default:"no-reply@adslots.local"`
	MailtrapAPIKey string `envconfig:"MAILTRAP_API_KEY"`
}

type slotsConfig struct {
	Total             int             `envconfig:"TOTAL" default:"10"`
	Paid              int             `envconfig:"PAID" default:"5"`
	HoldWindow        time.Duration   `envconfig:"HOLD_WINDOW" default:"30m"`
	DefaultDailyPrice decimal.Decimal `envconfig:"DEFAULT_DAILY_PRICE" default:"0"`
	Currency          string          `envconfig:"CURRENCY" default:"NPR"`
	ProjectionTTL     time.Duration   `envconfig:"PROJECTION_TTL" default:"30s"`
	SweepInterval     time.Duration   `envconfig:"SWEEP_INTERVAL" default:"1m"`
}

type paymentsConfig struct {
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"15s"`
	ReferenceSalt string        `envconfig:"REFERENCE_SALT" required:"true"`
	Khalti        khaltiConfig  `envconfig:"KHALTI"`
	Esewa         esewaConfig   `envconfig:"ESEWA"`
}

type khaltiConfig struct {
	SecretKey  string `envconfig:"SECRET_KEY"`
	ReturnURL  string `envconfig:"RETURN_URL"`
	WebsiteURL string `envconfig:"WEBSITE_URL"`
	Production bool   `envconfig:"PRODUCTION" default:"false"`
}

type esewaConfig struct {
	MerchantCode string `envconfig:"MERCHANT_CODE" default:"EPAYTEST"`
	SecretKey    string `envconfig:"SECRET_KEY"`
	SuccessURL   string `envconfig:"SUCCESS_URL"`
	FailureURL   string `envconfig:"FAILURE_URL"`
	Production   bool   `envconfig:"PRODUCTION" default:"false"`
}

type rateLimiterConfig struct {
	Enabled           bool    `envconfig:"ENABLED" default:"false"`
	RequestsPerSecond float64 `envconfig:"RPS" default:"5"`
	Burst             int     `envconfig:"BURST" default:"20"`
}

// loadConfig reads the environment, with an optional .env file for local
// development.
func loadConfig() (config, error) {
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}
