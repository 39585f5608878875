package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Stripe        StripeConfig
	WhatsApp      WhatsAppConfig
	Email         EmailConfig
	Notifications NotificationsConfig
	Billing       BillingConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StripeProgramConfig carries the per-account Stripe credentials. Each
// program bills through its own Stripe account.
type StripeProgramConfig struct {
	SecretKey     string
	WebhookSecret string
}

type StripeConfig struct {
	Mahad StripeProgramConfig
	Dugsi StripeProgramConfig
}

// WhatsAppConfig configures the Business Cloud API client.
type WhatsAppConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
}

// NotificationsConfig tunes outbound messaging behaviour.
type NotificationsConfig struct {
	DedupWindow time.Duration
	SendDelay   time.Duration
}

// BillingConfig gates the billing sync worker.
type BillingConfig struct {
	SyncWorkers int
	SyncRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing .env is fine: env-var-only deployments carry no
		// config file. SetConfigFile surfaces that as a path error,
		// not viper's own not-found type.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Stripe = StripeConfig{
		Mahad: StripeProgramConfig{
			SecretKey:     v.GetString("STRIPE_MAHAD_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_MAHAD_WEBHOOK_SECRET"),
		},
		Dugsi: StripeProgramConfig{
			SecretKey:     v.GetString("STRIPE_DUGSI_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_DUGSI_WEBHOOK_SECRET"),
		},
	}

	cfg.WhatsApp = WhatsAppConfig{
		BaseURL:       v.GetString("WHATSAPP_BASE_URL"),
		AccessToken:   v.GetString("WHATSAPP_ACCESS_TOKEN"),
		PhoneNumberID: v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
	}

	cfg.Email = EmailConfig{
		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		FromAddress:  v.GetString("EMAIL_FROM_ADDRESS"),
	}

	cfg.Notifications = NotificationsConfig{
		DedupWindow: parseDuration(v.GetString("NOTIFICATION_DEDUP_WINDOW"), 24*time.Hour),
		SendDelay:   parseDuration(v.GetString("NOTIFICATION_SEND_DELAY"), 1100*time.Millisecond),
	}

	cfg.Billing = BillingConfig{
		SyncWorkers: v.GetInt("BILLING_SYNC_WORKERS"),
		SyncRetries: v.GetInt("BILLING_SYNC_RETRIES"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects configurations that would fail at first use. Secrets
// are only mandatory in production so local development works with the
// defaults.
func (c *Config) validate() error {
	if c.Env != EnvProduction {
		return nil
	}

	var missing []string
	if c.JWT.Secret == "" || c.JWT.Secret == "dev_secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Stripe.Mahad.SecretKey == "" {
		missing = append(missing, "STRIPE_MAHAD_SECRET_KEY")
	}
	if c.Stripe.Dugsi.SecretKey == "" {
		missing = append(missing, "STRIPE_DUGSI_SECRET_KEY")
	}
	if c.WhatsApp.AccessToken == "" {
		missing = append(missing, "WHATSAPP_ACCESS_TOKEN")
	}
	if c.Email.ResendAPIKey == "" {
		missing = append(missing, "RESEND_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "markaz_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STRIPE_MAHAD_SECRET_KEY", "")
	v.SetDefault("STRIPE_MAHAD_WEBHOOK_SECRET", "")
	v.SetDefault("STRIPE_DUGSI_SECRET_KEY", "")
	v.SetDefault("STRIPE_DUGSI_WEBHOOK_SECRET", "")

	v.SetDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com/v19.0")
	v.SetDefault("WHATSAPP_ACCESS_TOKEN", "")
	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")

	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("EMAIL_FROM_ADDRESS", "admin@markaz.example")

	v.SetDefault("NOTIFICATION_DEDUP_WINDOW", "24h")
	v.SetDefault("NOTIFICATION_SEND_DELAY", "1100ms")

	v.SetDefault("BILLING_SYNC_WORKERS", 1)
	v.SetDefault("BILLING_SYNC_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
