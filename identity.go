package relayauth

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeIdentity trims and lower-cases an email so limiter keys, lockout
// counters and pending-verification matches agree on one spelling.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateIdentity normalizes email and rejects anything that is not a bare
// address.
func validateIdentity(email string) (string, error) {
	id := NormalizeIdentity(email)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if len(id) > 254 {
		return "", fmt.Errorf("%w: too long", ErrInvalidIdentity)
	}
	addr, err := mail.ParseAddress(id)
	if err != nil || addr.Address != id || addr.Name != "" {
		return "", ErrInvalidIdentity
	}
	return id, nil
}

// validCode reports whether code is exactly n ASCII digits.
func validCode(code string, n int) bool {
	if len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
