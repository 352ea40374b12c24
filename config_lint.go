package relayauth

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks a LintWarning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one advisory finding. Unlike Validate errors, warnings
// never stop Build.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	matched := r.BySeverity(min)
	if len(matched) == 0 {
		return nil
	}
	parts := make([]string, 0, len(matched))
	for _, w := range matched {
		parts = append(parts, "["+w.Severity.String()+"] "+w.Code+": "+w.Message)
	}
	return errors.New("relayauth config lint: " + strings.Join(parts, "; "))
}

// Lint reports settings that are valid but likely unintended.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	// Always present: the tracker only shapes UX.
	add("lockout_advisory", LintInfo,
		"client lockout is advisory; confirm the identity backend enforces its own lockout")

	if !c.Lockout.Enabled {
		add("lockout_disabled", LintWarn, "failed logins are never locked out on this device")
	}
	if c.Lockout.Enabled && c.Lockout.Threshold > c.RateLimit.Login.MaxAttempts+1 {
		add("lockout_unreachable", LintHigh,
			"lockout threshold exceeds login rate limit; the limiter blocks before lockout can trigger")
	}
	if c.RateLimit.Login.MaxAttempts > 10 {
		add("login_limit_loose", LintWarn, "more than 10 login attempts per window")
	}
	if c.RateLimit.OTPVerify.MaxAttempts > 10 {
		add("otp_verify_limit_loose", LintHigh,
			"more than 10 code guesses per window weakens 6 digit codes")
	}
	if c.Verification.ResendCooldown == 0 {
		add("resend_cooldown_disabled", LintWarn, "codes can be resent back to back")
	}
	if c.Verification.CodeLength < 6 {
		add("code_length_short", LintHigh, "codes shorter than 6 digits")
	}
	if c.Password.MinLength < 8 {
		add("password_min_short", LintHigh, "minimum password length below 8")
	}
	if !c.Password.RequireUpper || !c.Password.RequireLower || !c.Password.RequireDigit || !c.Password.RequireSpecial {
		add("password_classes_relaxed", LintWarn, "not every character class is required")
	}
	if c.RateLimit.SweepInterval == 0 && c.RateLimit.MaxKeys == 0 {
		add("limiter_unbounded", LintWarn, "limiter records are never swept or bounded")
	}
	if c.Session.RefreshLeeway > 5*time.Minute {
		add("refresh_leeway_large", LintInfo, "sessions are refreshed more than 5 minutes early")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintInfo, "a full audit buffer blocks auth operations")
	}
	return ws
}
