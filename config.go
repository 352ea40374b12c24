package relayauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/relayauth/internal/lockout"
	"github.com/MrEthical07/relayauth/internal/rate"
)

// Config holds every tunable of the auth flow.
//
// Config values are built once at startup and handed to the Builder, which
// keeps its own copy.
type Config struct {
	RateLimit    RateLimitConfig      `mapstructure:"rate_limit"`
	Lockout      LockoutConfig        `mapstructure:"lockout"`
	Verification VerificationConfig   `mapstructure:"verification"`
	Password     PasswordPolicyConfig `mapstructure:"password"`
	Session      SessionConfig        `mapstructure:"session"`
	Audit        AuditConfig          `mapstructure:"audit"`
	Metrics      MetricsConfig        `mapstructure:"metrics"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitPolicy is one sliding-window policy.
type RateLimitPolicy struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

func (p RateLimitPolicy) policy() rate.Policy {
	return rate.Policy{MaxAttempts: p.MaxAttempts, Window: p.Window, BlockDuration: p.BlockDuration}
}

// RateLimitConfig holds one policy per guarded action. Keys are
// "<action>:<identity>" with the action names below.
type RateLimitConfig struct {
	Login     RateLimitPolicy `mapstructure:"login"`
	Signup    RateLimitPolicy `mapstructure:"signup"`
	OTPResend RateLimitPolicy `mapstructure:"otp_resend"`
	OTPVerify RateLimitPolicy `mapstructure:"otp_verify"`
	Reset     RateLimitPolicy `mapstructure:"reset"`

	// SweepInterval > 0 starts a background sweeper owned by the Controller.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxKeys bounds tracked keys; 0 means unbounded.
	MaxKeys int `mapstructure:"max_keys"`
}

// Limiter action names.
const (
	ActionLogin     = "login"
	ActionSignup    = "signup"
	ActionOTPResend = "otpResend"
	ActionOTPVerify = "otpVerify"
	ActionReset     = "reset"
)

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the advisory failed-login lockout.
type LockoutConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold int           `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
	Duration  time.Duration `mapstructure:"duration"`
}

func (c LockoutConfig) tracker() lockout.Config {
	return lockout.Config{
		Enabled:   c.Enabled,
		Threshold: c.Threshold,
		Window:    c.Window,
		Duration:  c.Duration,
	}
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig describes the one-time codes the backend issues.
type VerificationConfig struct {
	CodeLength     int           `mapstructure:"code_length"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
	// CodeTTL is only used for the expiry countdown shown to the user; the
	// backend owns real expiry.
	CodeTTL time.Duration `mapstructure:"code_ttl"`
}

/*
====================================
PASSWORD POLICY CONFIG
====================================
*/

// PasswordPolicyConfig is the strength policy applied before any password
// leaves the device.
type PasswordPolicyConfig struct {
	MinLength      int  `mapstructure:"min_length"`
	MaxLength      int  `mapstructure:"max_length"`
	RequireUpper   bool `mapstructure:"require_upper"`
	RequireLower   bool `mapstructure:"require_lower"`
	RequireDigit   bool `mapstructure:"require_digit"`
	RequireSpecial bool `mapstructure:"require_special"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session persistence and backend calls.
type SessionConfig struct {
	StorageKey string `mapstructure:"storage_key"`
	// RefreshLeeway treats a session as expired this long before ExpiresAt.
	RefreshLeeway time.Duration `mapstructure:"refresh_leeway"`
	FetchProfile  bool          `mapstructure:"fetch_profile"`
	// BackendTimeout bounds each backend call; 0 leaves it to the caller's context.
	BackendTimeout time.Duration `mapstructure:"backend_timeout"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
	// RedactIdentity masks emails in audit events ("a***@x.com").
	RedactIdentity bool `mapstructure:"redact_identity"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns the stock policy: login 5 attempts per 15 minutes with
// a 30 minute block, resend 3 per 5 minutes, and a 60 second resend cooldown.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Login:     RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
			Signup:    RateLimitPolicy{MaxAttempts: 3, Window: time.Hour, BlockDuration: time.Hour},
			OTPResend: RateLimitPolicy{MaxAttempts: 3, Window: 5 * time.Minute, BlockDuration: 15 * time.Minute},
			OTPVerify: RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute},
			Reset:     RateLimitPolicy{MaxAttempts: 3, Window: time.Hour, BlockDuration: time.Hour},
			MaxKeys:   10000,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Window:    15 * time.Minute,
			Duration:  30 * time.Minute,
		},
		Verification: VerificationConfig{
			CodeLength:     6,
			ResendCooldown: 60 * time.Second,
			CodeTTL:        10 * time.Minute,
		},
		Password: PasswordPolicyConfig{
			MinLength:      8,
			MaxLength:      128,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSpecial: true,
		},
		Session: SessionConfig{
			StorageKey:     "relayauth.session",
			RefreshLeeway:  30 * time.Second,
			FetchProfile:   true,
			BackendTimeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig: fewer login attempts, longer
// blocks, and a longer minimum password.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit.Login = RateLimitPolicy{MaxAttempts: 3, Window: 15 * time.Minute, BlockDuration: time.Hour}
	cfg.RateLimit.OTPVerify = RateLimitPolicy{MaxAttempts: 3, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute}
	cfg.RateLimit.SweepInterval = time.Minute
	cfg.Lockout.Threshold = 3
	cfg.Lockout.Duration = time.Hour
	cfg.Password.MinLength = 12
	cfg.Audit.Enabled = true
	cfg.Audit.RedactIdentity = true
	return cfg
}

// Validate reports the first structural problem in c.
func (c *Config) Validate() error {
	policies := []struct {
		name string
		p    RateLimitPolicy
	}{
		{ActionLogin, c.RateLimit.Login},
		{ActionSignup, c.RateLimit.Signup},
		{ActionOTPResend, c.RateLimit.OTPResend},
		{ActionOTPVerify, c.RateLimit.OTPVerify},
		{ActionReset, c.RateLimit.Reset},
	}
	for _, entry := range policies {
		if err := entry.p.policy().Validate(); err != nil {
			return errors.New("RateLimit " + entry.name + ": " + err.Error())
		}
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}
	if c.RateLimit.MaxKeys < 0 {
		return errors.New("RateLimit MaxKeys must be >= 0")
	}

	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be > 0")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be > 0")
		}
		if c.Lockout.Duration <= 0 {
			return errors.New("Lockout Duration must be > 0")
		}
	}

	if c.Verification.CodeLength < 4 || c.Verification.CodeLength > 10 {
		return errors.New("Verification CodeLength must be between 4 and 10")
	}
	if c.Verification.ResendCooldown < 0 {
		return errors.New("Verification ResendCooldown must be >= 0")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}

	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	if strings.TrimSpace(c.Session.StorageKey) == "" {
		return errors.New("Session StorageKey must be set")
	}
	if c.Session.RefreshLeeway < 0 {
		return errors.New("Session RefreshLeeway must be >= 0")
	}
	if c.Session.BackendTimeout < 0 {
		return errors.New("Session BackendTimeout must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
