package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process and billingctl.
// All values come from env (or a .env file loaded by the process before Load).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	Stripe  StripeConfig
	Billing BillingConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TwilioConfig is used only for the Messaging pricing API.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	PricingBaseURL string
	// PricingRPS throttles outbound pricing lookups.
	PricingRPS float64
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// BillingConfig carries the international SMS policy knobs.
// Defaults are the production policy; overriding them is meant for staging experiments.
type BillingConfig struct {
	PriceCacheTTL time.Duration

	Tier1Multiplier float64
	Tier2Multiplier float64

	ProSoftPerSendCents      int64
	ProHardAccumCents        int64
	BusinessSoftPerSendCents int64
	BusinessHardAccumCents   int64

	// SendRequote makes the send gate recompute the quote under the user lock.
	SendRequote bool
	SendLockTTL time.Duration
}

const (
	DefaultPriceCacheTTL  = time.Hour
	DefaultPricingBaseURL = "https://pricing.twilio.com/v1"
	DefaultSendLockTTL    = 30 * time.Second
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PricingBaseURL = strings.TrimSpace(os.Getenv("TWILIO_PRICING_BASE_URL"))
	{
		f, err := optionalFloat("TWILIO_PRICING_RPS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Twilio.PricingRPS = f
	}

	c.Stripe.SecretKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	c.Stripe.WebhookSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))

	c.Billing.PriceCacheTTL = mustDuration("INTL_PRICE_CACHE_TTL")
	c.Billing.SendLockTTL = mustDuration("SEND_LOCK_TTL")
	for key, dst := range map[string]*float64{
		"INTL_TIER1_MULTIPLIER": &c.Billing.Tier1Multiplier,
		"INTL_TIER2_MULTIPLIER": &c.Billing.Tier2Multiplier,
	} {
		f, err := optionalFloat(key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*dst = f
	}
	for key, dst := range map[string]*int64{
		"INTL_CAP_PRO_SOFT":      &c.Billing.ProSoftPerSendCents,
		"INTL_CAP_PRO_HARD":      &c.Billing.ProHardAccumCents,
		"INTL_CAP_BUSINESS_SOFT": &c.Billing.BusinessSoftPerSendCents,
		"INTL_CAP_BUSINESS_HARD": &c.Billing.BusinessHardAccumCents,
	} {
		n, err := optionalInt64(key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*dst = n
	}
	{
		b, err := optionalBool("SEND_REQUOTE", true)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Billing.SendRequote = b
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required settings and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Twilio.PricingBaseURL == "" {
		c.Twilio.PricingBaseURL = DefaultPricingBaseURL
	}
	if c.Twilio.PricingRPS <= 0 {
		c.Twilio.PricingRPS = 10
	}
	if c.IsProduction() {
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required in production"))
		}
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required in production"))
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required in production"))
		}
	}

	errs = append(errs, c.Billing.applyDefaults()...)

	return joinErrors(errs)
}

func (b *BillingConfig) applyDefaults() []error {
	var errs []error
	if b.PriceCacheTTL <= 0 {
		b.PriceCacheTTL = DefaultPriceCacheTTL
	}
	if b.SendLockTTL <= 0 {
		b.SendLockTTL = DefaultSendLockTTL
	}
	if b.Tier1Multiplier == 0 {
		b.Tier1Multiplier = 1.3
	}
	if b.Tier2Multiplier == 0 {
		b.Tier2Multiplier = 1.6
	}
	if b.Tier1Multiplier < 1 || b.Tier2Multiplier < 1 {
		errs = append(errs, errors.New("INTL_TIER*_MULTIPLIER must be >= 1"))
	}
	if b.ProSoftPerSendCents == 0 {
		b.ProSoftPerSendCents = 1000
	}
	if b.ProHardAccumCents == 0 {
		b.ProHardAccumCents = 2000
	}
	if b.BusinessSoftPerSendCents == 0 {
		b.BusinessSoftPerSendCents = 3000
	}
	if b.BusinessHardAccumCents == 0 {
		b.BusinessHardAccumCents = 5000
	}
	if b.ProSoftPerSendCents < 0 || b.ProHardAccumCents < 0 || b.BusinessSoftPerSendCents < 0 || b.BusinessHardAccumCents < 0 {
		errs = append(errs, errors.New("INTL_CAP_* values must be positive cents"))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt64(key string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func optionalBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
