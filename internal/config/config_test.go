package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "comms"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndProviders(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE/Stripe/Twilio")
	}

	c = validLocal()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}
	c.Stripe = StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Billing.PriceCacheTTL != time.Hour {
		t.Fatalf("expected 1h price cache ttl, got %v", c.Billing.PriceCacheTTL)
	}
	if c.Billing.Tier1Multiplier != 1.3 || c.Billing.Tier2Multiplier != 1.6 {
		t.Fatalf("unexpected multipliers: %+v", c.Billing)
	}
	if c.Billing.ProSoftPerSendCents != 1000 || c.Billing.ProHardAccumCents != 2000 {
		t.Fatalf("unexpected pro caps: %+v", c.Billing)
	}
	if c.Billing.BusinessSoftPerSendCents != 3000 || c.Billing.BusinessHardAccumCents != 5000 {
		t.Fatalf("unexpected business caps: %+v", c.Billing)
	}
	if c.Twilio.PricingBaseURL != DefaultPricingBaseURL {
		t.Fatalf("expected default pricing url, got %q", c.Twilio.PricingBaseURL)
	}
}

func TestValidate_RejectsMultiplierBelowOne(t *testing.T) {
	c := validLocal()
	c.Billing.Tier1Multiplier = 0.5
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for multiplier < 1")
	}
}

func TestLoad_ParsesBillingEnv(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "comms")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTL_CAP_PRO_SOFT", "1500")
	t.Setenv("INTL_TIER2_MULTIPLIER", "2")
	t.Setenv("SEND_REQUOTE", "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Billing.ProSoftPerSendCents != 1500 {
		t.Fatalf("expected pro soft 1500, got %d", c.Billing.ProSoftPerSendCents)
	}
	if c.Billing.Tier2Multiplier != 2 {
		t.Fatalf("expected tier2 2, got %v", c.Billing.Tier2Multiplier)
	}
	if c.Billing.SendRequote {
		t.Fatalf("expected requote disabled")
	}
}

func TestLoad_RejectsBadNumbers(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "comms")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTL_CAP_PRO_HARD", "lots")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
