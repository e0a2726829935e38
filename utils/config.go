package utils

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "dev_secret_change_me"

// Config is everything the service reads from the environment
type Config struct {
	Port        string
	Environment string
	Version     string

	MongoURI string
	MongoDB  string

	JWTSecret    string
	JWTExpiresIn time.Duration
	AdminSecret  string

	CORSOrigins  []string
	UploadDir    string
	MaxBodyBytes int64
	// MaxUploadBytes caps a whole multipart image upload
	MaxUploadBytes int64
	TrustProxy   bool

	RateLimitMax     int
	RateLimitWindow  time.Duration
	AuthRateLimitMax int

	EmailProvider   string
	EmailSender     string
	PostmarkToken   string
	SendGridKey     string
	TwilioSID       string
	TwilioAuthToken string
	WhatsAppFrom    string
	GoogleClientID  string
	StripeSecretKey string
	Currency        string
	Company         CompanyInfo
}

// CompanyInfo is printed on invoices
type CompanyInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	TaxID   string `json:"taxId,omitempty"`
}

// LoadConfig loads .env when present and reads the environment, applying
// development fallbacks for anything unset.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Proceeding with environment variables.")
	}
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from a lookup function
func ConfigFromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:            get("PORT", "5000"),
		Environment:     get("APP_ENV", get("NODE_ENV", "development")),
		Version:         get("APP_VERSION", "1.0.0"),
		MongoURI:        get("MONGO_URI", ""),
		MongoDB:         get("MONGO_DB", "storefront"),
		JWTSecret:       get("JWT_SECRET", ""),
		AdminSecret:     get("ADMIN_SECRET", ""),
		UploadDir:       get("UPLOAD_DIR", "uploads"),
		EmailProvider:   strings.ToLower(get("EMAIL_PROVIDER", "")),
		EmailSender:     get("EMAIL_SENDER", "no-reply@storefront.local"),
		PostmarkToken:   get("POSTMARK_API_TOKEN", ""),
		SendGridKey:     get("SENDGRID_API_KEY", ""),
		TwilioSID:       get("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken: get("TWILIO_AUTH_TOKEN", ""),
		WhatsAppFrom:    get("WHATSAPP_FROM", ""),
		GoogleClientID:  get("GOOGLE_CLIENT_ID", ""),
		StripeSecretKey: get("STRIPE_SECRET_KEY", ""),
		Currency:        strings.ToLower(get("CURRENCY", "inr")),
		Company: CompanyInfo{
			Name:    get("COMPANY_NAME", "Storefront"),
			Address: get("COMPANY_ADDRESS", ""),
			Email:   get("COMPANY_EMAIL", ""),
			Phone:   get("COMPANY_PHONE", ""),
			TaxID:   get("COMPANY_TAX_ID", ""),
		},
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
		log.Println("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = devJWTSecret
	}

	for _, origin := range strings.Split(get("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	var err error
	if cfg.JWTExpiresIn, err = ParseDuration(get("JWT_EXPIRES_IN", "7d")); err != nil {
		return nil, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	if cfg.RateLimitWindow, err = ParseDuration(get("RATE_LIMIT_WINDOW", "15m")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.MaxBodyBytes, err = strconv.ParseInt(get("MAX_BODY_BYTES", "10485760"), 10, 64); err != nil {
		return nil, fmt.Errorf("MAX_BODY_BYTES: %w", err)
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(get("MAX_UPLOAD_BYTES", "52428800"), 10, 64); err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
	}
	if cfg.RateLimitMax, err = strconv.Atoi(get("RATE_LIMIT_MAX", "100")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_MAX: %w", err)
	}
	if cfg.AuthRateLimitMax, err = strconv.Atoi(get("AUTH_RATE_LIMIT_MAX", "20")); err != nil {
		return nil, fmt.Errorf("AUTH_RATE_LIMIT_MAX: %w", err)
	}
	if cfg.TrustProxy, err = strconv.ParseBool(get("TRUST_PROXY", "false")); err != nil {
		return nil, fmt.Errorf("TRUST_PROXY: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseDuration accepts Go durations plus a whole-day form such as "7d"
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
