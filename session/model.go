package session

import "time"

// Scope is the authorization reach of a session.
type Scope uint8

const (
	// ScopeFull is an ordinary signed-in session.
	ScopeFull Scope = 1
	// ScopeRecovery only authorizes a password update.
	ScopeRecovery Scope = 2
)

// String returns the scope label used in logs and tokens.
func (s Scope) String() string {
	switch s {
	case ScopeFull:
		return "full"
	case ScopeRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// ParseScope maps a token claim back to a Scope. Unknown labels yield 0.
func ParseScope(v string) Scope {
	switch v {
	case "full":
		return ScopeFull
	case "recovery":
		return ScopeRecovery
	default:
		return 0
	}
}

// Session is the token bundle issued by the identity backend.
//
// Timestamps are unix seconds. A zero ExpiresAt means the backend did not
// report an expiry.
type Session struct {
	SessionID    string
	UserID       string
	Email        string
	Scope        Scope
	AccessToken  string
	RefreshToken string

	IssuedAt  int64
	ExpiresAt int64
}

// IsRecovery reports whether s is a restricted password-recovery session.
func (s *Session) IsRecovery() bool {
	return s != nil && s.Scope == ScopeRecovery
}

// IsFull reports whether s grants full application access.
func (s *Session) IsFull() bool {
	return s != nil && s.Scope == ScopeFull
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return s.ExpiresAt != 0 && now.Unix() >= s.ExpiresAt
}

// Clone returns a copy that callers may modify freely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
