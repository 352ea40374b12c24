package relayauth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Password rules reported in PasswordPolicyError.Unmet.
const (
	RuleMinLength = "min_length"
	RuleMaxLength = "max_length"
	RuleUpper     = "upper"
	RuleLower     = "lower"
	RuleDigit     = "digit"
	RuleSpecial   = "special"
)

// PasswordPolicyError lists every rule the candidate failed.
type PasswordPolicyError struct {
	Unmet []string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("%s: unmet %s", ErrPasswordPolicy, strings.Join(e.Unmet, ", "))
}

func (e *PasswordPolicyError) Is(target error) bool { return target == ErrPasswordPolicy }

// CheckPassword applies the strength policy. Length is counted in runes.
func (c PasswordPolicyConfig) CheckPassword(pw string) error {
	var unmet []string
	n := utf8.RuneCountInString(pw)
	if n < c.MinLength {
		unmet = append(unmet, RuleMinLength)
	}
	if c.MaxLength > 0 && n > c.MaxLength {
		unmet = append(unmet, RuleMaxLength)
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || r == ' ':
			special = true
		}
	}
	if c.RequireUpper && !upper {
		unmet = append(unmet, RuleUpper)
	}
	if c.RequireLower && !lower {
		unmet = append(unmet, RuleLower)
	}
	if c.RequireDigit && !digit {
		unmet = append(unmet, RuleDigit)
	}
	if c.RequireSpecial && !special {
		unmet = append(unmet, RuleSpecial)
	}

	if len(unmet) > 0 {
		return &PasswordPolicyError{Unmet: unmet}
	}
	return nil
}
