package relayauth

import "github.com/MrEthical07/relayauth/internal/security"

// SecurityReport is a read-only summary of the active defences.
type SecurityReport = security.Report

// SecurityReport summarizes the Controller's configuration.
func (c *Controller) SecurityReport() SecurityReport {
	if c == nil {
		return SecurityReport{}
	}
	toPolicy := func(p RateLimitPolicy) security.Policy {
		return security.Policy{MaxAttempts: p.MaxAttempts, Window: p.Window, BlockDuration: p.BlockDuration}
	}
	cfg := c.cfg
	return security.BuildReport(security.ReportInput{
		Login:             toPolicy(cfg.RateLimit.Login),
		Verify:            toPolicy(cfg.RateLimit.OTPVerify),
		Resend:            toPolicy(cfg.RateLimit.OTPResend),
		LockoutEnabled:    cfg.Lockout.Enabled,
		LockoutThreshold:  cfg.Lockout.Threshold,
		LockoutDuration:   cfg.Lockout.Duration,
		CodeLength:        cfg.Verification.CodeLength,
		ResendCooldown:    cfg.Verification.ResendCooldown,
		PasswordMinLength: cfg.Password.MinLength,
		RequireUpper:      cfg.Password.RequireUpper,
		RequireLower:      cfg.Password.RequireLower,
		RequireDigit:      cfg.Password.RequireDigit,
		RequireSpecial:    cfg.Password.RequireSpecial,
		SweepInterval:     cfg.RateLimit.SweepInterval,
		MaxKeys:           cfg.RateLimit.MaxKeys,
		AuditEnabled:      cfg.Audit.Enabled,
	})
}
