package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`

	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	AppBaseURL  string `envconfig:"APP_BASE_URL" default:"http://localhost:3000"`
	AdminSecret string `envconfig:"ADMIN_SECRET" required:"true"`

	// Stripe settings
	StripeSecretKey      string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePriceMonthly   string `envconfig:"STRIPE_PRICE_MONTHLY"`
	StripePriceAnnual    string `envconfig:"STRIPE_PRICE_ANNUAL"`
	StripeCheckoutReturn string `envconfig:"STRIPE_CHECKOUT_RETURN_URL"`

	// Gumroad settings
	GumroadWebhookSecret    string `envconfig:"GUMROAD_WEBHOOK_SECRET"`
	GumroadProductIDMonthly string `envconfig:"GUMROAD_PRODUCT_ID_MONTHLY"`
	GumroadProductIDYearly  string `envconfig:"GUMROAD_PRODUCT_ID_YEARLY"`

	// Verification token lifetime in hours
	VerificationTokenTTLHours int `envconfig:"VERIFICATION_TOKEN_TTL_HOURS" default:"24"`

	// GCP settings (Pub/Sub mail dispatch, Secret Manager)
	GCPProjectID string `envconfig:"GCP_PROJECT_ID"`
	MailTopic    string `envconfig:"MAIL_TOPIC" default:"mail_jobs"`
	// When set, secrets missing from the environment are read from Secret Manager.
	UseSecretManager bool `envconfig:"USE_SECRET_MANAGER" default:"false"`

	// S3-compatible storage for processed tool output
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"tool-output"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	// Upstream PDF processing service
	PDFServiceBaseURL    string `envconfig:"PDF_SERVICE_BASE_URL"`
	PDFRequestTimeoutSec int    `envconfig:"PDF_REQUEST_TIMEOUT_SEC" default:"120"`

	// Redis rate limiting (degrades to no-op when unset)
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RateLimitRPM  int    `envconfig:"RATE_LIMIT_RPM" default:"30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
