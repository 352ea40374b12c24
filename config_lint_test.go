package relayauth

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLintDefaultConfigHasNoHighWarnings(t *testing.T) {
	cfg := DefaultConfig()
	res := cfg.Lint()
	if high := res.BySeverity(LintHigh); len(high) != 0 {
		t.Fatalf("default config has high warnings: %v", high.Codes())
	}
	if !slices.Contains(res.Codes(), "lockout_advisory") {
		t.Fatal("lockout_advisory must always be reported")
	}
}

func TestLintHighSecurityConfigHasNoHighWarnings(t *testing.T) {
	cfg := HighSecurityConfig()
	if err := cfg.Lint().AsError(LintHigh); err != nil {
		t.Fatalf("high security preset: %v", err)
	}
}

func TestLintCodes(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		code     string
		severity LintSeverity
	}{
		{"lockout disabled", func(c *Config) { c.Lockout.Enabled = false }, "lockout_disabled", LintWarn},
		{"lockout unreachable", func(c *Config) { c.Lockout.Threshold = 10 }, "lockout_unreachable", LintHigh},
		{"login loose", func(c *Config) { c.RateLimit.Login.MaxAttempts = 20; c.Lockout.Threshold = 5 }, "login_limit_loose", LintWarn},
		{"otp verify loose", func(c *Config) { c.RateLimit.OTPVerify.MaxAttempts = 50 }, "otp_verify_limit_loose", LintHigh},
		{"no resend cooldown", func(c *Config) { c.Verification.ResendCooldown = 0 }, "resend_cooldown_disabled", LintWarn},
		{"short code", func(c *Config) { c.Verification.CodeLength = 4 }, "code_length_short", LintHigh},
		{"short password", func(c *Config) { c.Password.MinLength = 6 }, "password_min_short", LintHigh},
		{"relaxed classes", func(c *Config) { c.Password.RequireSpecial = false }, "password_classes_relaxed", LintWarn},
		{"unbounded limiter", func(c *Config) { c.RateLimit.SweepInterval = 0; c.RateLimit.MaxKeys = 0 }, "limiter_unbounded", LintWarn},
		{"large leeway", func(c *Config) { c.Session.RefreshLeeway = 10 * time.Minute }, "refresh_leeway_large", LintInfo},
		{"blocking audit", func(c *Config) { c.Audit.Enabled = true; c.Audit.DropIfFull = false }, "audit_blocking", LintInfo},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			res := cfg.Lint()

			var found *LintWarning
			for i := range res {
				if res[i].Code == tc.code {
					found = &res[i]
				}
			}
			if found == nil {
				t.Fatalf("expected %s in %v", tc.code, res.Codes())
			}
			if found.Severity != tc.severity {
				t.Fatalf("%s severity = %s, want %s", tc.code, found.Severity, tc.severity)
			}
			if found.Message == "" {
				t.Fatal("lint warning without message")
			}
		})
	}
}

func TestLintAsError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verification.CodeLength = 4
	cfg.Password.MinLength = 6

	err := cfg.Lint().AsError(LintHigh)
	if err == nil {
		t.Fatal("expected error for high warnings")
	}
	for _, code := range []string{"code_length_short", "password_min_short"} {
		if !strings.Contains(err.Error(), code) {
			t.Fatalf("error %q does not name %s", err, code)
		}
	}
	if cfg.Lint().AsError(LintHigh+1) != nil {
		t.Fatal("no warning is above high")
	}
}

func TestLintSeverityString(t *testing.T) {
	for sev, want := range map[LintSeverity]string{LintInfo: "INFO", LintWarn: "WARN", LintHigh: "HIGH"} {
		if got := sev.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}
