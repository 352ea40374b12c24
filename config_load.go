package relayauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g.
// RELAYAUTH_RATE_LIMIT_LOGIN_MAX_ATTEMPTS=3.
const EnvPrefix = "RELAYAUTH"

// LoadConfig builds a Config from DefaultConfig, the file at path (YAML, TOML
// or JSON by extension; empty path skips the file) and RELAYAUTH_*
// environment variables, in increasing precedence. The result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("relayauth: read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("relayauth: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("relayauth: invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d Config) {
	policy := func(prefix string, p RateLimitPolicy) {
		v.SetDefault(prefix+".max_attempts", p.MaxAttempts)
		v.SetDefault(prefix+".window", p.Window)
		v.SetDefault(prefix+".block_duration", p.BlockDuration)
	}
	policy("rate_limit.login", d.RateLimit.Login)
	policy("rate_limit.signup", d.RateLimit.Signup)
	policy("rate_limit.otp_resend", d.RateLimit.OTPResend)
	policy("rate_limit.otp_verify", d.RateLimit.OTPVerify)
	policy("rate_limit.reset", d.RateLimit.Reset)
	v.SetDefault("rate_limit.sweep_interval", d.RateLimit.SweepInterval)
	v.SetDefault("rate_limit.max_keys", d.RateLimit.MaxKeys)

	v.SetDefault("lockout.enabled", d.Lockout.Enabled)
	v.SetDefault("lockout.threshold", d.Lockout.Threshold)
	v.SetDefault("lockout.window", d.Lockout.Window)
	v.SetDefault("lockout.duration", d.Lockout.Duration)

	v.SetDefault("verification.code_length", d.Verification.CodeLength)
	v.SetDefault("verification.resend_cooldown", d.Verification.ResendCooldown)
	v.SetDefault("verification.code_ttl", d.Verification.CodeTTL)

	v.SetDefault("password.min_length", d.Password.MinLength)
	v.SetDefault("password.max_length", d.Password.MaxLength)
	v.SetDefault("password.require_upper", d.Password.RequireUpper)
	v.SetDefault("password.require_lower", d.Password.RequireLower)
	v.SetDefault("password.require_digit", d.Password.RequireDigit)
	v.SetDefault("password.require_special", d.Password.RequireSpecial)

	v.SetDefault("session.storage_key", d.Session.StorageKey)
	v.SetDefault("session.refresh_leeway", d.Session.RefreshLeeway)
	v.SetDefault("session.fetch_profile", d.Session.FetchProfile)
	v.SetDefault("session.backend_timeout", d.Session.BackendTimeout)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)
}
