package relayauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "login max attempts zero invalid",
			mutate: func(c *Config) {
				c.RateLimit.Login.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "otp verify window zero invalid",
			mutate: func(c *Config) {
				c.RateLimit.OTPVerify.Window = 0
			},
			wantValid: false,
		},
		{
			name: "reset block duration negative invalid",
			mutate: func(c *Config) {
				c.RateLimit.Reset.BlockDuration = -time.Second
			},
			wantValid: false,
		},
		{
			name: "negative sweep interval invalid",
			mutate: func(c *Config) {
				c.RateLimit.SweepInterval = -time.Minute
			},
			wantValid: false,
		},
		{
			name: "lockout threshold zero invalid",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "disabled lockout ignores its fields",
			mutate: func(c *Config) {
				c.Lockout.Enabled = false
				c.Lockout.Threshold = 0
			},
			wantValid: true,
		},
		{
			name: "code length too short invalid",
			mutate: func(c *Config) {
				c.Verification.CodeLength = 3
			},
			wantValid: false,
		},
		{
			name: "code length eight valid",
			mutate: func(c *Config) {
				c.Verification.CodeLength = 8
			},
			wantValid: true,
		},
		{
			name: "zero resend cooldown valid",
			mutate: func(c *Config) {
				c.Verification.ResendCooldown = 0
			},
			wantValid: true,
		},
		{
			name: "zero code ttl invalid",
			mutate: func(c *Config) {
				c.Verification.CodeTTL = 0
			},
			wantValid: false,
		},
		{
			name: "password max below min invalid",
			mutate: func(c *Config) {
				c.Password.MinLength = 12
				c.Password.MaxLength = 10
			},
			wantValid: false,
		},
		{
			name: "blank storage key invalid",
			mutate: func(c *Config) {
				c.Session.StorageKey = "  "
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "histograms without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config")
			}
		})
	}
}

func TestHighSecurityConfigValid(t *testing.T) {
	cfg := HighSecurityConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("HighSecurityConfig invalid: %v", err)
	}
	if cfg.RateLimit.Login.MaxAttempts >= DefaultConfig().RateLimit.Login.MaxAttempts {
		t.Fatal("high security login limit should be stricter than default")
	}
	if !cfg.Audit.Enabled {
		t.Fatal("high security preset should enable audit")
	}
}

func TestDefaultConfigMatchesDocumentedPolicies(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[string]struct {
		got  RateLimitPolicy
		want RateLimitPolicy
	}{
		ActionLogin:     {cfg.RateLimit.Login, RateLimitPolicy{5, 15 * time.Minute, 30 * time.Minute}},
		ActionSignup:    {cfg.RateLimit.Signup, RateLimitPolicy{3, time.Hour, time.Hour}},
		ActionOTPResend: {cfg.RateLimit.OTPResend, RateLimitPolicy{3, 5 * time.Minute, 15 * time.Minute}},
		ActionOTPVerify: {cfg.RateLimit.OTPVerify, RateLimitPolicy{5, 15 * time.Minute, 15 * time.Minute}},
		ActionReset:     {cfg.RateLimit.Reset, RateLimitPolicy{3, time.Hour, time.Hour}},
	}
	for action, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s policy = %+v, want %+v", action, tc.got, tc.want)
		}
	}
	if cfg.Verification.CodeLength != 6 || cfg.Verification.ResendCooldown != 60*time.Second {
		t.Fatalf("unexpected verification defaults %+v", cfg.Verification)
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayauth.yaml")
	body := []byte(`
rate_limit:
  login:
    max_attempts: 4
    window: 10m
  sweep_interval: 2m
lockout:
  threshold: 4
verification:
  resend_cooldown: 90s
session:
  storage_key: app.session
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RELAYAUTH_VERIFICATION_CODE_LENGTH", "8")
	t.Setenv("RELAYAUTH_AUDIT_ENABLED", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RateLimit.Login.MaxAttempts != 4 || cfg.RateLimit.Login.Window != 10*time.Minute {
		t.Fatalf("file login policy not applied: %+v", cfg.RateLimit.Login)
	}
	if cfg.RateLimit.Login.BlockDuration != 30*time.Minute {
		t.Fatal("unset keys must keep their defaults")
	}
	if cfg.RateLimit.SweepInterval != 2*time.Minute || cfg.Lockout.Threshold != 4 {
		t.Fatalf("file values not applied: %+v", cfg.RateLimit)
	}
	if cfg.Verification.ResendCooldown != 90*time.Second {
		t.Fatalf("resend cooldown = %v", cfg.Verification.ResendCooldown)
	}
	if cfg.Session.StorageKey != "app.session" {
		t.Fatalf("storage key = %q", cfg.Session.StorageKey)
	}
	if cfg.Verification.CodeLength != 8 || !cfg.Audit.Enabled {
		t.Fatal("environment overrides not applied")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("RELAYAUTH_VERIFICATION_CODE_LENGTH", "2")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("rate_limit: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
