package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Admin     AdminAuthConfig
	Stripe    StripeConfig
	Sendgrid  SendgridConfig
	Checkout  CheckoutConfig
	Broadcast BroadcastConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVOLV_APP_ENV" required:"true"`
	Port         string `envconfig:"EVOLV_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVOLV_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVOLV_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, "prod")
}

type DBConfig struct {
	DSN    string `envconfig:"EVOLV_DB_DSN" required:"true"`
	Driver string `envconfig:"EVOLV_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"EVOLV_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVOLV_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVOLV_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVOLV_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVOLV_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVOLV_REDIS_ADDR"`
	Password     string        `envconfig:"EVOLV_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVOLV_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVOLV_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVOLV_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVOLV_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVOLV_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVOLV_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminAuthConfig configures the signed admin capability token.
type AdminAuthConfig struct {
	Secret string `envconfig:"EVOLV_ADMIN_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"EVOLV_ADMIN_JWT_ISSUER" default:"evolv-storefront"`
}

type StripeConfig struct {
	APIKey  string        `envconfig:"EVOLV_STRIPE_API_KEY" required:"true"`
	Env     string        `envconfig:"EVOLV_STRIPE_ENV" default:"test"`
	Timeout time.Duration `envconfig:"EVOLV_STRIPE_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey                string `envconfig:"EVOLV_SENDGRID_API_KEY" required:"true"`
	DefaultFrom           string `envconfig:"EVOLV_SENDGRID_FROM_EMAIL" required:"true"`
	FromName              string `envconfig:"EVOLV_SENDGRID_FROM_NAME" default:"Evolv"`
	OrderTemplateID       string `envconfig:"EVOLV_SENDGRID_ORDER_TEMPLATE_ID" required:"true"`
	ReservationTemplateID string `envconfig:"EVOLV_SENDGRID_RESERVATION_TEMPLATE_ID" required:"true"`
}

type CheckoutConfig struct {
	SuccessURL            string        `envconfig:"EVOLV_CHECKOUT_SUCCESS_URL" required:"true"`
	CancelURL             string        `envconfig:"EVOLV_CHECKOUT_CANCEL_URL" required:"true"`
	ReservationSuccessURL string        `envconfig:"EVOLV_RESERVATION_SUCCESS_URL" required:"true"`
	Currency              string        `envconfig:"EVOLV_CHECKOUT_CURRENCY" default:"usd"`
	DepositCents          int64         `envconfig:"EVOLV_RESERVATION_DEPOSIT_CENTS" default:"499"`
	ConfirmRetries        int           `envconfig:"EVOLV_CONFIRM_LOOKUP_RETRIES" default:"3"`
	ConfirmRetryBackoff   time.Duration `envconfig:"EVOLV_CONFIRM_LOOKUP_BACKOFF" default:"150ms"`
}

type BroadcastConfig struct {
	Workers int `envconfig:"EVOLV_BROADCAST_WORKERS" default:"8"`
}
