package backend

import (
	"errors"
	"time"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/internal/limiters"
	"github.com/MrEthical07/relayauth/password"
)

// Window is a fixed-window request budget.
type Window struct {
	MaxAttempts int
	Period      time.Duration
}

// Config holds the backend policy.
type Config struct {
	Issuer string

	AccessTTL   time.Duration
	RecoveryTTL time.Duration
	RefreshTTL  time.Duration

	CodeTTL         time.Duration
	CodeRetention   time.Duration // how long used or expired codes stay distinguishable
	CodeMaxAttempts int

	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	SignupWindow Window
	ResendWindow Window
	ResetWindow  Window

	// MailPerSecond and MailBurst throttle outbound mail. Zero disables.
	MailPerSecond float64
	MailBurst     int

	// Password is the argon2id cost. PasswordPolicy is enforced on every
	// sign-up and password update regardless of what the client checked.
	Password       password.Config
	PasswordPolicy relayauth.PasswordPolicyConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:           "relayauth",
		AccessTTL:        15 * time.Minute,
		RecoveryTTL:      10 * time.Minute,
		RefreshTTL:       30 * 24 * time.Hour,
		CodeTTL:          10 * time.Minute,
		CodeRetention:    24 * time.Hour,
		CodeMaxAttempts:  5,
		LockoutThreshold: 10,
		LockoutWindow:    30 * time.Minute,
		LockoutDuration:  15 * time.Minute,
		SignupWindow:     Window{MaxAttempts: 5, Period: time.Hour},
		ResendWindow:     Window{MaxAttempts: 5, Period: time.Hour},
		ResetWindow:      Window{MaxAttempts: 5, Period: time.Hour},
		MailPerSecond:    10,
		MailBurst:        20,
		Password:         password.DefaultConfig(),
		PasswordPolicy:   relayauth.DefaultConfig().Password,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.AccessTTL <= 0:
		return errors.New("backend: access TTL must be > 0")
	case c.RecoveryTTL <= 0 || c.RecoveryTTL > c.AccessTTL:
		return errors.New("backend: recovery TTL must be > 0 and <= access TTL")
	case c.RefreshTTL < c.AccessTTL:
		return errors.New("backend: refresh TTL must be >= access TTL")
	case c.CodeTTL <= 0:
		return errors.New("backend: code TTL must be > 0")
	case c.CodeRetention < 0:
		return errors.New("backend: code retention must be >= 0")
	case c.CodeMaxAttempts <= 0:
		return errors.New("backend: code max attempts must be > 0")
	case c.LockoutThreshold <= 0 || c.LockoutWindow <= 0 || c.LockoutDuration <= 0:
		return errors.New("backend: lockout settings must be > 0")
	case c.MailPerSecond < 0 || c.MailBurst < 0:
		return errors.New("backend: mail throttle must be >= 0")
	}
	return nil
}

func (c Config) lockout() limiters.LockoutConfig {
	return limiters.LockoutConfig{
		Enabled:   true,
		Threshold: c.LockoutThreshold,
		Window:    c.LockoutWindow,
		Duration:  c.LockoutDuration,
	}
}

const (
	actionSignup = "signup"
	actionResend = "otp_resend"
	actionReset  = "reset"
)

func (c Config) windows() map[string]limiters.Window {
	return map[string]limiters.Window{
		actionSignup: {MaxAttempts: c.SignupWindow.MaxAttempts, Period: c.SignupWindow.Period},
		actionResend: {MaxAttempts: c.ResendWindow.MaxAttempts, Period: c.ResendWindow.Period},
		actionReset:  {MaxAttempts: c.ResetWindow.MaxAttempts, Period: c.ResetWindow.Period},
	}
}
