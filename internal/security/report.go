package security

import "time"

// Policy mirrors one rate-limit policy.
type Policy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Report summarizes which defences are active.
type Report struct {
	LoginLimit            Policy
	CodeVerifyLimit       Policy
	ResendLimit           Policy
	LockoutActive         bool
	LockoutAdvisory       bool
	LockoutThreshold      int
	LockoutDuration       time.Duration
	CodeLength            int
	CodeGuessesPerWindow  int
	ResendCooldown        time.Duration
	PasswordMinLength     int
	PasswordClassesAll    bool
	LimiterBounded        bool
	AuditActive           bool
	SecureStorageRequired bool
}

// ReportInput carries the configuration values BuildReport needs.
type ReportInput struct {
	Login, Verify, Resend Policy

	LockoutEnabled   bool
	LockoutThreshold int
	LockoutDuration  time.Duration

	CodeLength     int
	ResendCooldown time.Duration

	PasswordMinLength int
	RequireUpper      bool
	RequireLower      bool
	RequireDigit      bool
	RequireSpecial    bool

	SweepInterval time.Duration
	MaxKeys       int
	AuditEnabled  bool
}

func BuildReport(in ReportInput) Report {
	guesses := 0
	if in.Verify.MaxAttempts > 0 {
		guesses = in.Verify.MaxAttempts
	}
	return Report{
		LoginLimit:            in.Login,
		CodeVerifyLimit:       in.Verify,
		ResendLimit:           in.Resend,
		LockoutActive:         in.LockoutEnabled && in.LockoutThreshold > 0,
		LockoutAdvisory:       true,
		LockoutThreshold:      in.LockoutThreshold,
		LockoutDuration:       in.LockoutDuration,
		CodeLength:            in.CodeLength,
		CodeGuessesPerWindow:  guesses,
		ResendCooldown:        in.ResendCooldown,
		PasswordMinLength:     in.PasswordMinLength,
		PasswordClassesAll:    in.RequireUpper && in.RequireLower && in.RequireDigit && in.RequireSpecial,
		LimiterBounded:        in.SweepInterval > 0 || in.MaxKeys > 0,
		AuditActive:           in.AuditEnabled,
		SecureStorageRequired: true,
	}
}
