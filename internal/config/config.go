package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env                  string        // application environment (dev, prod)
	Port                 string        // HTTP port to listen on
	DatabaseURL          string        // mysql:// or postgres:// URL
	DBPath               string        // sqlite file, used when DatabaseURL is empty
	CancelTokenSecret    string        // HMAC secret for cancel tokens
	JWTSecret            string        // secret used to sign consumer sessions
	AccessTTL            time.Duration // session lifetime
	MessagingAccessToken string        // push API bearer token
	MessagingAPIBase     string        // push API host
	PaymentWebhookSecret string        // webhook signing secret
	PaymentAPIKey        string        // payment API key
	FrontendBaseURL      string        // base of consume and cancel URLs
	MaxTotalKg           int           // per-order weight cap
	ServiceFee           int64         // fixed fee charged online per order
	Currency             string        // ISO currency code, lower case
	MagicLinkTTL         time.Duration // magic link lifetime
	AdminKeyHash         string        // bcrypt hash gating admin routes
	AMQPURL              string        // RabbitMQ URL, empty disables publishing
	DispatchInterval     time.Duration // notifier loop period
	DispatchLimit        int           // notifier batch size
	PushTimeout          time.Duration // per-push timeout
}

// Load reads configuration from the environment. Every missing required
// variable is reported in one error so both binaries can exit early.
func Load() (Config, error) {
	c := Config{
		Env:                  envStr("APP_ENV", "dev"),
		Port:                 envStr("APP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBPath:               os.Getenv("DB_PATH"),
		CancelTokenSecret:    os.Getenv("CANCEL_TOKEN_SECRET"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		AccessTTL:            time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 1440)) * time.Minute,
		MessagingAccessToken: os.Getenv("MESSAGING_ACCESS_TOKEN"),
		MessagingAPIBase:     envStr("MESSAGING_API_BASE", "https://api.line.me"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentAPIKey:        os.Getenv("PAYMENT_API_KEY"),
		FrontendBaseURL:      strings.TrimRight(os.Getenv("FRONTEND_BASE_URL"), "/"),
		MaxTotalKg:           envInt("MAX_TOTAL_KG", 60),
		ServiceFee:           int64(envInt("SERVICE_FEE", 300)),
		Currency:             strings.ToLower(envStr("CURRENCY", "jpy")),
		MagicLinkTTL:         time.Duration(envInt("MAGIC_LINK_TTL_MIN", 15)) * time.Minute,
		AdminKeyHash:         os.Getenv("ADMIN_KEY_HASH"),
		AMQPURL:              amqpURL(),
		DispatchInterval:     envDur("DISPATCH_INTERVAL", time.Minute),
		DispatchLimit:        envInt("DISPATCH_LIMIT", 100),
		PushTimeout:          envDur("PUSH_TIMEOUT", 10*time.Second),
	}

	var missing []string
	if c.DatabaseURL == "" && c.DBPath == "" {
		missing = append(missing, "DATABASE_URL or DB_PATH")
	}
	for k, v := range map[string]string{
		"CANCEL_TOKEN_SECRET": c.CancelTokenSecret,
		"JWT_SECRET":          c.JWTSecret,
		"FRONTEND_BASE_URL":   c.FrontendBaseURL,
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if err := missingErr(missing); err != nil {
		return c, err
	}
	if c.MaxTotalKg < 1 {
		return c, fmt.Errorf("MAX_TOTAL_KG must be positive, got %d", c.MaxTotalKg)
	}
	if c.AccessTTL <= 0 || c.MagicLinkTTL <= 0 {
		return c, errors.New("token TTLs must be positive")
	}
	return c, nil
}

// ValidateServer checks the variables only the API server needs.
func (c Config) ValidateServer() error {
	if c.PaymentWebhookSecret == "" {
		return missingErr([]string{"PAYMENT_WEBHOOK_SECRET"})
	}
	return nil
}

// ValidateNotifier checks the variables the notifier needs to push.
func (c Config) ValidateNotifier(dryRun bool) error {
	if !dryRun && c.MessagingAccessToken == "" {
		return missingErr([]string{"MESSAGING_ACCESS_TOKEN"})
	}
	return nil
}

// IsProd reports whether the process runs in production mode.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }

func missingErr(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	slices.Sort(keys)
	return fmt.Errorf("missing required env vars: %s", strings.Join(keys, ", "))
}

// amqpURL reads RABBITMQ_URL, then AMQP_URL.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}
