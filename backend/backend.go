package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/internal"
	"github.com/MrEthical07/relayauth/internal/limiters"
	"github.com/MrEthical07/relayauth/internal/stores"
	"github.com/MrEthical07/relayauth/jwt"
	"github.com/MrEthical07/relayauth/password"
	"github.com/MrEthical07/relayauth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ relayauth.IdentityBackend = (*Backend)(nil)

// Options carries the collaborators of a Backend.
type Options struct {
	// DSN is the SQLite data source. Empty means a private in-memory database.
	DSN   string
	Redis redis.UniversalClient
	// SigningKey is the HS256 access token secret, at least 32 bytes.
	SigningKey []byte
	Mailer     Mailer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Backend implements relayauth.IdentityBackend on SQLite and Redis.
// It is safe for concurrent use.
type Backend struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	accounts *accountStore
	codes    *stores.CodeStore
	sessions *stores.SessionStore
	tokens   *jwt.Manager
	hasher   *password.Hasher
	lockout  *limiters.LockoutLimiter
	requests *limiters.RequestLimiter
	mailer   Mailer

	// dummyHash is verified against when no account matches, so unknown
	// emails cost the same as wrong passwords.
	dummyHash string

	mu      sync.Mutex
	subs    map[uint64]func(relayauth.SessionEvent)
	nextSub uint64

	closed atomic.Bool
}

// New validates cfg, opens the account database and returns a Backend.
func New(ctx context.Context, cfg Config, opts Options) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Redis == nil {
		return nil, errors.New("backend: redis client is required")
	}
	if opts.Mailer == nil {
		return nil, errors.New("backend: mailer is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DSN == "" {
		opts.DSN = ":memory:"
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		RecoveryTTL:   cfg.RecoveryTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    opts.SigningKey,
		Issuer:        cfg.Issuer,
		Now:           opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: token manager: %w", err)
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("backend: password hasher: %w", err)
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("backend: password hasher: %w", err)
	}

	accounts, err := openAccounts(ctx, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	mailer := opts.Mailer
	if cfg.MailPerSecond > 0 {
		mailer = NewThrottledMailer(mailer, cfg.MailPerSecond, cfg.MailBurst)
	}

	return &Backend{
		cfg:       cfg,
		logger:    opts.Logger,
		now:       opts.Now,
		accounts:  accounts,
		codes:     stores.NewCodeStore(opts.Redis, "rac", opts.Now),
		sessions:  stores.NewSessionStore(opts.Redis, "ras"),
		tokens:    tokens,
		hasher:    hasher,
		lockout:   limiters.NewLockoutLimiter(opts.Redis, cfg.lockout()),
		requests:  limiters.NewRequestLimiter(opts.Redis, "arl", cfg.windows()),
		mailer:    mailer,
		dummyHash: dummy,
		subs:      make(map[uint64]func(relayauth.SessionEvent)),
	}, nil
}

// Close releases the account database. The Redis client belongs to the caller.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.accounts.Close()
}

func (b *Backend) ready() error {
	if b == nil || b.closed.Load() {
		return ErrClosed
	}
	return nil
}

// SignUp registers email as an unverified account and mails a signup code.
// Signing up again before verification replaces the stored details.
func (b *Backend) SignUp(ctx context.Context, in relayauth.SignUpInput) (relayauth.PendingVerification, error) {
	if err := b.ready(); err != nil {
		return relayauth.PendingVerification{}, err
	}
	email := relayauth.NormalizeIdentity(in.Email)
	if email == "" {
		return relayauth.PendingVerification{}, failure(relayauth.CodeInvalidRequest, http.StatusBadRequest, "email required")
	}
	if err := b.requests.Check(ctx, actionSignup, email); err != nil {
		return relayauth.PendingVerification{}, limitedError(err)
	}
	hash, err := b.hashPassword(in.Password)
	if err != nil {
		return relayauth.PendingVerification{}, err
	}

	now := b.now()
	a, err := b.accounts.ByEmail(ctx, email)
	switch {
	case errors.Is(err, errAccountNotFound):
		a = &account{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			Phone:        in.Phone,
			FullName:     in.FullName,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := b.accounts.Insert(ctx, a); err != nil {
			return relayauth.PendingVerification{}, err
		}
	case err != nil:
		return relayauth.PendingVerification{}, err
	case a.EmailVerified:
		return relayauth.PendingVerification{}, errUserExists
	default:
		a.PasswordHash, a.Phone, a.FullName, a.UpdatedAt = hash, in.Phone, in.FullName, now
		replaced, err := b.accounts.ReplaceUnverified(ctx, a)
		if err != nil {
			return relayauth.PendingVerification{}, err
		}
		if !replaced {
			return relayauth.PendingVerification{}, errUserExists
		}
	}

	if err := b.issueCode(ctx, relayauth.OTPSignup, a); err != nil {
		return relayauth.PendingVerification{}, err
	}
	b.logger.Info("relayauth backend: signup pending", slog.String("user_id", a.ID))
	return relayauth.PendingVerification{Email: email, Phone: a.Phone, UserID: a.ID}, nil
}

// SignInWithPassword checks the password and issues a full session.
func (b *Backend) SignInWithPassword(ctx context.Context, email, pw string) (*session.Session, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	email = relayauth.NormalizeIdentity(email)

	left, err := b.lockout.LockedFor(ctx, email)
	if err != nil {
		return nil, err
	}
	if left > 0 {
		return nil, &relayauth.BackendError{
			Code:       relayauth.CodeAccountLocked,
			Status:     http.StatusTooManyRequests,
			Message:    "too many failed sign-ins",
			RetryAfter: left,
		}
	}

	a, err := b.accounts.ByEmail(ctx, email)
	if errors.Is(err, errAccountNotFound) {
		_, _ = b.hasher.Verify(pw, b.dummyHash)
		return nil, b.failedSignIn(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	ok, err := b.hasher.Verify(pw, a.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return nil, err
	}
	if !ok {
		return nil, b.failedSignIn(ctx, email)
	}
	if !a.EmailVerified {
		return nil, errEmailNotConfirmed
	}

	if err := b.lockout.Reset(ctx, email); err != nil {
		b.logger.Warn("relayauth backend: lockout reset failed", slog.Any("error", err))
	}
	b.upgradeHash(ctx, a, pw)
	return b.issueSession(ctx, a, session.ScopeFull)
}

// failedSignIn counts one failure and returns the error for it. The failure
// that reaches the threshold still reports invalid credentials; the lock
// applies from the next attempt.
func (b *Backend) failedSignIn(ctx context.Context, email string) error {
	lock, err := b.lockout.RecordFailure(ctx, email)
	if err != nil {
		return err
	}
	if lock > 0 {
		b.logger.Warn("relayauth backend: identity locked", slog.Duration("for", lock))
	}
	return errInvalidCredentials
}

func (b *Backend) upgradeHash(ctx context.Context, a *account, pw string) {
	stale, err := b.hasher.NeedsUpgrade(a.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := b.hasher.Hash(pw)
	if err == nil {
		err = b.accounts.SetPassword(ctx, a.ID, hash, b.now())
	}
	if err != nil {
		b.logger.Warn("relayauth backend: hash upgrade failed", slog.Any("error", err))
	}
}

// VerifyOTP redeems a one-time code. A signup code confirms the email and
// yields a full session; a recovery code yields a recovery session.
func (b *Backend) VerifyOTP(ctx context.Context, kind relayauth.OTPKind, email, code string) (*session.Session, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	scope := session.ScopeFull
	switch kind {
	case relayauth.OTPSignup:
	case relayauth.OTPRecovery:
		scope = session.ScopeRecovery
	default:
		return nil, failure(relayauth.CodeInvalidRequest, http.StatusBadRequest, "unknown code type")
	}

	email = relayauth.NormalizeIdentity(email)
	userID, err := b.consumeCode(ctx, kind, email, code)
	if err != nil {
		return nil, err
	}
	a, err := b.accounts.ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Proving control of the inbox confirms it for either code type.
	if !a.EmailVerified {
		if err := b.accounts.MarkVerified(ctx, a.ID, b.now()); err != nil {
			return nil, err
		}
		a.EmailVerified = true
	}
	return b.issueSession(ctx, a, scope)
}

// ResendOTP mails a fresh code of kind. Unknown emails and verified
// accounts asking for a signup code succeed without sending anything.
func (b *Backend) ResendOTP(ctx context.Context, kind relayauth.OTPKind, email string) error {
	if err := b.ready(); err != nil {
		return err
	}
	email = relayauth.NormalizeIdentity(email)
	if err := b.requests.Check(ctx, actionResend, email); err != nil {
		return limitedError(err)
	}
	a, err := b.accounts.ByEmail(ctx, email)
	if errors.Is(err, errAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if kind == relayauth.OTPSignup && a.EmailVerified {
		return nil
	}
	return b.issueCode(ctx, kind, a)
}

// ResetPasswordForEmail mails a recovery code. Unknown emails succeed
// without sending anything.
func (b *Backend) ResetPasswordForEmail(ctx context.Context, email string) error {
	if err := b.ready(); err != nil {
		return err
	}
	email = relayauth.NormalizeIdentity(email)
	if err := b.requests.Check(ctx, actionReset, email); err != nil {
		return limitedError(err)
	}
	a, err := b.accounts.ByEmail(ctx, email)
	if errors.Is(err, errAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return b.issueCode(ctx, relayauth.OTPRecovery, a)
}

// UpdatePassword sets a new password for the account behind current,
// revokes every session of the account and issues a full session.
func (b *Backend) UpdatePassword(ctx context.Context, current *session.Session, newPassword string) (*session.Session, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	claims, err := b.authorize(ctx, current)
	if err != nil {
		return nil, err
	}
	hash, err := b.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	a, err := b.accounts.ByID(ctx, claims.UID)
	if err != nil {
		return nil, err
	}
	if err := b.accounts.SetPassword(ctx, a.ID, hash, b.now()); err != nil {
		return nil, err
	}
	if _, err := b.sessions.DeleteAllForUser(ctx, a.ID); err != nil {
		return nil, err
	}
	if err := b.lockout.Reset(ctx, a.Email); err != nil {
		b.logger.Warn("relayauth backend: lockout reset failed", slog.Any("error", err))
	}
	b.logger.Info("relayauth backend: password updated",
		slog.String("user_id", a.ID), slog.String("via", claims.Scope))
	return b.issueSession(ctx, a, session.ScopeFull)
}

// RefreshSession rotates refreshToken and issues a new access token.
// Recovery sessions are not refreshable. Replaying an old refresh token
// revokes the session.
func (b *Backend) RefreshSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil, errSessionNotFound
	}
	rec, err := b.sessions.Get(ctx, sid)
	if err != nil {
		return nil, sessionError(err)
	}
	if session.Scope(rec.Scope) != session.ScopeFull {
		_ = b.sessions.Delete(ctx, sid)
		return nil, errSessionExpired
	}

	next, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	expires := b.now().Add(b.cfg.RefreshTTL)
	rec, err = b.sessions.Rotate(ctx, sid, internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(next), expires, b.cfg.RefreshTTL)
	if err != nil {
		if errors.Is(err, stores.ErrSessionRefreshReuse) {
			b.logger.Warn("relayauth backend: refresh token replay, session revoked")
		}
		return nil, sessionError(err)
	}
	token, err := internal.EncodeRefreshToken(sid, next)
	if err != nil {
		return nil, err
	}
	return b.mintAccess(rec.UserID, sid, rec.Email, session.ScopeFull, token)
}

// SignOut revokes the session behind current. Unknown sessions are not an
// error.
func (b *Backend) SignOut(ctx context.Context, current *session.Session) error {
	if err := b.ready(); err != nil {
		return err
	}
	sid, ok := b.ownedSessionID(ctx, current)
	if !ok {
		return nil
	}
	return b.sessions.Delete(ctx, sid)
}

// ownedSessionID finds the session id current proves ownership of: a valid
// access token, or failing that a refresh token matching the stored hash.
func (b *Backend) ownedSessionID(ctx context.Context, current *session.Session) (string, bool) {
	if current == nil {
		return "", false
	}
	if claims, err := b.tokens.ParseAccess(current.AccessToken); err == nil {
		return claims.SID, true
	}
	sid, secret, err := internal.DecodeRefreshToken(current.RefreshToken)
	if err != nil {
		return "", false
	}
	rec, err := b.sessions.Get(ctx, sid)
	if err != nil || rec.RefreshHash != internal.HashRefreshSecret(secret) {
		return "", false
	}
	return sid, true
}

// GetProfile returns the account behind a full session.
func (b *Backend) GetProfile(ctx context.Context, current *session.Session) (*relayauth.Profile, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	claims, err := b.authorize(ctx, current)
	if err != nil {
		return nil, err
	}
	if claims.IsRecovery() {
		return nil, errScope
	}
	a, err := b.accounts.ByID(ctx, claims.UID)
	if err != nil {
		return nil, err
	}
	return &relayauth.Profile{
		UserID:        a.ID,
		Email:         a.Email,
		Phone:         a.Phone,
		FullName:      a.FullName,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}, nil
}

// RevokeUser ends every session of email and notifies subscribers. It is an
// operator action, not part of the client API.
func (b *Backend) RevokeUser(ctx context.Context, email string) (int, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	a, err := b.accounts.ByEmail(ctx, relayauth.NormalizeIdentity(email))
	if err != nil {
		return 0, err
	}
	n, err := b.sessions.DeleteAllForUser(ctx, a.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.publish(relayauth.SessionEvent{
			Kind:    relayauth.SessionSignedOut,
			Session: &session.Session{UserID: a.ID, Email: a.Email},
		})
	}
	return n, nil
}

// authorize verifies the access token of current and checks that its
// session has not been revoked.
func (b *Backend) authorize(ctx context.Context, current *session.Session) (*jwt.AccessClaims, error) {
	if current == nil || current.AccessToken == "" {
		return nil, errSessionNotFound
	}
	claims, err := b.tokens.ParseAccess(current.AccessToken)
	if err != nil {
		return nil, errSessionExpired
	}
	if _, err := b.sessions.Get(ctx, claims.SID); err != nil {
		return nil, sessionError(err)
	}
	return claims, nil
}

func (b *Backend) hashPassword(pw string) (string, error) {
	if err := b.cfg.PasswordPolicy.CheckPassword(pw); err != nil {
		return "", weakPassword(err.Error())
	}
	hash, err := b.hasher.Hash(pw)
	switch {
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
		return "", weakPassword(err.Error())
	case err != nil:
		return "", err
	}
	return hash, nil
}

// issueSession stores a new refresh session for a and mints its access token.
func (b *Backend) issueSession(ctx context.Context, a *account, scope session.Scope) (*session.Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	ttl := b.cfg.RefreshTTL
	if scope == session.ScopeRecovery {
		ttl = b.cfg.RecoveryTTL
	}
	rec := &stores.SessionRecord{
		SessionID:   sid.String(),
		UserID:      a.ID,
		Email:       a.Email,
		Scope:       uint8(scope),
		RefreshHash: internal.HashRefreshSecret(secret),
		ExpiresAt:   b.now().Add(ttl).Unix(),
	}
	if err := b.sessions.Save(ctx, rec, ttl); err != nil {
		return nil, err
	}
	token, err := internal.EncodeRefreshToken(rec.SessionID, secret)
	if err != nil {
		return nil, err
	}
	return b.mintAccess(a.ID, rec.SessionID, a.Email, scope, token)
}

func (b *Backend) mintAccess(uid, sid, email string, scope session.Scope, refreshToken string) (*session.Session, error) {
	access, expires, err := b.tokens.CreateAccess(uid, sid, email, scope.String())
	if err != nil {
		return nil, err
	}
	return &session.Session{
		SessionID:    sid,
		UserID:       uid,
		Email:        email,
		Scope:        scope,
		AccessToken:  access,
		RefreshToken: refreshToken,
		IssuedAt:     b.now().Unix(),
		ExpiresAt:    expires.Unix(),
	}, nil
}
