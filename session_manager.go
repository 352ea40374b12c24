package relayauth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/relayauth/internal/lockout"
	"github.com/MrEthical07/relayauth/internal/rate"
	"github.com/MrEthical07/relayauth/jwt"
	"github.com/MrEthical07/relayauth/session"
)

// Snapshot is the shared view of the current session, profile and pending
// signup. Values are copies.
type Snapshot struct {
	Session *session.Session
	Profile *Profile
	Pending *PendingVerification
}

// SignedIn reports whether the snapshot holds a full session.
func (s Snapshot) SignedIn() bool { return s.Session.IsFull() }

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Session: s.Session.Clone()}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return out
}

// SessionManager owns the single live session and talks to the identity
// backend and secure storage. Every state-changing call publishes one
// Snapshot to subscribers.
type SessionManager struct {
	backend IdentityBackend
	storage SecureStorage
	cfg     SessionConfig
	logger  *slog.Logger
	now     func() time.Time
	metrics *Metrics
	limiter *rate.Limiter
	tracker *lockout.Tracker

	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]func(Snapshot)
	nextSub int

	onEnded      func(SessionEventKind)
	unsubscribe  func()
	subscribeOne sync.Once
}

func newSessionManager(
	backend IdentityBackend,
	storage SecureStorage,
	cfg SessionConfig,
	logger *slog.Logger,
	now func() time.Time,
	metrics *Metrics,
	limiter *rate.Limiter,
	tracker *lockout.Tracker,
) *SessionManager {
	return &SessionManager{
		backend: backend,
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		now:     now,
		metrics: metrics,
		limiter: limiter,
		tracker: tracker,
		subs:    make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current view.
func (m *SessionManager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// Subscribe registers fn for every published Snapshot and returns its
// cancel func. fn runs on the goroutine that changed the state.
func (m *SessionManager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// update applies fn to the snapshot and publishes the result.
func (m *SessionManager) update(fn func(*Snapshot)) {
	m.mu.Lock()
	fn(&m.snap)
	snap := m.snap.clone()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s(snap)
	}
}

func (m *SessionManager) current() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Session.Clone()
}

// Initialize restores a stored session. An expired full session is
// refreshed first; an expired recovery session is discarded. A network
// failure during that refresh keeps the stored session for the next launch
// and returns the error.
func (m *SessionManager) Initialize(ctx context.Context) (Snapshot, error) {
	m.subscribeOne.Do(func() {
		m.unsubscribe = m.backend.Subscribe(m.handleBackendEvent)
	})

	stored, err := m.load(ctx)
	if err != nil || stored == nil {
		return m.Snapshot(), nil
	}

	if m.expired(stored) {
		if stored.IsRecovery() {
			m.logger.Info("relayauth: discarding expired recovery session")
			m.remove(ctx)
			return m.Snapshot(), nil
		}

		refreshed, err := m.refresh(ctx, stored)
		if err != nil {
			if errors.Is(err, ErrNetworkUnavailable) {
				return m.Snapshot(), err
			}
			m.logger.Warn("relayauth: stored session could not be refreshed", slog.Any("error", err))
			m.remove(ctx)
			return m.Snapshot(), nil
		}
		stored = refreshed
		m.persist(ctx, stored)
	}

	profile := m.fetchProfile(ctx, stored)
	m.update(func(s *Snapshot) {
		s.Session = stored
		s.Profile = profile
	})
	m.metrics.Inc(MetricSessionRestored)
	return m.Snapshot(), nil
}

// SignIn exchanges credentials for a full session.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	var s *session.Session
	err := m.call(ctx, "sign_in", func(ctx context.Context) error {
		var err error
		s, err = m.backend.SignInWithPassword(ctx, email, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrBackendUnexpected
	}
	return m.adopt(ctx, s, session.ScopeFull, email), nil
}

// SignUp registers the account and records the pending verification.
func (m *SessionManager) SignUp(ctx context.Context, in SignUpInput) (PendingVerification, error) {
	var pending PendingVerification
	err := m.call(ctx, "sign_up", func(ctx context.Context) error {
		var err error
		pending, err = m.backend.SignUp(ctx, in)
		return err
	})
	if err != nil {
		return PendingVerification{}, err
	}

	pending.Email = NormalizeIdentity(in.Email)
	if pending.Phone == "" {
		pending.Phone = in.Phone
	}
	m.update(func(s *Snapshot) {
		p := pending
		s.Pending = &p
	})
	return pending, nil
}

// VerifyEmailCode confirms the pending signup for email.
func (m *SessionManager) VerifyEmailCode(ctx context.Context, email, code string) (*session.Session, error) {
	email = NormalizeIdentity(email)
	snap := m.Snapshot()
	if snap.Pending == nil {
		return nil, ErrNoPendingVerification
	}
	if snap.Pending.Email != email {
		return nil, ErrVerificationMismatch
	}

	var s *session.Session
	err := m.call(ctx, "verify_signup_code", func(ctx context.Context) error {
		var err error
		s, err = m.backend.VerifyOTP(ctx, OTPSignup, email, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrBackendUnexpected
	}
	return m.adopt(ctx, s, session.ScopeFull, email), nil
}

// ResendCode asks the backend for a new signup code.
func (m *SessionManager) ResendCode(ctx context.Context, email string) error {
	return m.call(ctx, "resend_signup_code", func(ctx context.Context) error {
		return m.backend.ResendOTP(ctx, OTPSignup, NormalizeIdentity(email))
	})
}

// RequestPasswordReset asks the backend to send a recovery code.
func (m *SessionManager) RequestPasswordReset(ctx context.Context, email string) error {
	return m.call(ctx, "request_reset", func(ctx context.Context) error {
		return m.backend.ResetPasswordForEmail(ctx, NormalizeIdentity(email))
	})
}

// ResendResetCode asks the backend for a new recovery code.
func (m *SessionManager) ResendResetCode(ctx context.Context, email string) error {
	return m.call(ctx, "resend_reset_code", func(ctx context.Context) error {
		return m.backend.ResendOTP(ctx, OTPRecovery, NormalizeIdentity(email))
	})
}

// VerifyResetCode redeems a recovery code. The resulting session is always
// restricted to password update, whatever scope the backend reported.
func (m *SessionManager) VerifyResetCode(ctx context.Context, email, code string) (*session.Session, error) {
	email = NormalizeIdentity(email)
	var s *session.Session
	err := m.call(ctx, "verify_reset_code", func(ctx context.Context) error {
		var err error
		s, err = m.backend.VerifyOTP(ctx, OTPRecovery, email, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrBackendUnexpected
	}
	return m.adopt(ctx, s, session.ScopeRecovery, email), nil
}

// UpdatePassword changes the password with the current session and returns
// the resulting full session.
func (m *SessionManager) UpdatePassword(ctx context.Context, newPassword string) (*session.Session, error) {
	cur := m.current()
	if cur == nil {
		return nil, ErrNoSession
	}
	if cur.IsRecovery() && m.expired(cur) {
		return nil, ErrSessionExpired
	}

	var s *session.Session
	err := m.call(ctx, "update_password", func(ctx context.Context) error {
		var err error
		s, err = m.backend.UpdatePassword(ctx, cur, newPassword)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = cur
	}
	return m.adopt(ctx, s, session.ScopeFull, cur.Email), nil
}

// InvalidateRecovery drops a restricted session, if one is held.
func (m *SessionManager) InvalidateRecovery(ctx context.Context) {
	cur := m.current()
	if !cur.IsRecovery() {
		return
	}
	m.bestEffortSignOut(ctx, cur)
	m.remove(ctx)
	m.update(func(s *Snapshot) {
		s.Session = nil
		s.Profile = nil
	})
	m.metrics.Inc(MetricRecoveryInvalidated)
}

// ClearPending forgets the pending signup.
func (m *SessionManager) ClearPending() {
	m.update(func(s *Snapshot) { s.Pending = nil })
}

// SignOut ends the session and clears every ephemeral record: limiter keys,
// lockout counters and the pending signup. Backend and storage failures are
// logged and do not stop the local sign-out.
func (m *SessionManager) SignOut(ctx context.Context) {
	if cur := m.current(); cur != nil {
		m.bestEffortSignOut(ctx, cur)
	}
	m.remove(ctx)
	m.limiter.Clear()
	m.tracker.Clear()
	m.update(func(s *Snapshot) { *s = Snapshot{} })
	m.metrics.Inc(MetricSignOut)
}

// Close detaches from the backend event stream.
func (m *SessionManager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *SessionManager) handleBackendEvent(ev SessionEvent) {
	ctx := context.Background()
	if m.cfg.BackendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.BackendTimeout)
		defer cancel()
	}

	switch ev.Kind {
	case SessionTokenRefreshed:
		cur := m.current()
		if cur == nil || ev.Session == nil {
			return
		}
		if !eventTargets(ev.Session, cur) {
			return
		}
		next := ev.Session.Clone()
		next.Scope = cur.Scope
		fillFromClaims(next, cur.Email)
		m.persist(ctx, next)
		m.update(func(s *Snapshot) { s.Session = next })
		m.metrics.Inc(MetricSessionRefreshed)

	case SessionSignedOut, SessionRefreshFailed:
		cur := m.current()
		if cur == nil {
			return
		}
		if ev.Session != nil && !eventTargets(ev.Session, cur) {
			return
		}
		m.remove(ctx)
		m.update(func(s *Snapshot) {
			s.Session = nil
			s.Profile = nil
		})
		m.metrics.Inc(MetricSessionEnded)
		m.logger.Info("relayauth: session ended by backend", slog.String("event", ev.Kind.String()))
		if m.onEnded != nil {
			m.onEnded(ev.Kind)
		}
	}
}

// eventTargets reports whether a backend event about ev refers to the session
// held in cur. The most specific identifier both sides carry decides.
func eventTargets(ev, cur *session.Session) bool {
	switch {
	case ev.SessionID != "" && cur.SessionID != "":
		return ev.SessionID == cur.SessionID
	case ev.UserID != "" && cur.UserID != "":
		return ev.UserID == cur.UserID
	case ev.Email != "" && cur.Email != "":
		return NormalizeIdentity(ev.Email) == NormalizeIdentity(cur.Email)
	}
	return true
}

// adopt normalizes s to scope, persists it and publishes it. A full session
// also clears any pending signup and loads the profile.
func (m *SessionManager) adopt(ctx context.Context, s *session.Session, scope session.Scope, email string) *session.Session {
	s = s.Clone()
	s.Scope = scope
	fillFromClaims(s, NormalizeIdentity(email))
	m.persist(ctx, s)

	var profile *Profile
	if scope == session.ScopeFull {
		profile = m.fetchProfile(ctx, s)
	}
	m.update(func(snap *Snapshot) {
		snap.Session = s
		snap.Profile = profile
		if scope == session.ScopeFull {
			snap.Pending = nil
		}
	})
	return s.Clone()
}

func (m *SessionManager) expired(s *session.Session) bool {
	return s.Expired(m.now().Add(m.cfg.RefreshLeeway))
}

func (m *SessionManager) refresh(ctx context.Context, s *session.Session) (*session.Session, error) {
	if s.RefreshToken == "" {
		return nil, ErrSessionExpired
	}
	var next *session.Session
	err := m.call(ctx, "refresh", func(ctx context.Context) error {
		var err error
		next, err = m.backend.RefreshSession(ctx, s.RefreshToken)
		return err
	})
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, ErrBackendUnexpected
	}
	next = next.Clone()
	next.Scope = s.Scope
	fillFromClaims(next, s.Email)
	m.metrics.Inc(MetricSessionRefreshed)
	return next, nil
}

func (m *SessionManager) fetchProfile(ctx context.Context, s *session.Session) *Profile {
	if !m.cfg.FetchProfile || !s.IsFull() {
		return nil
	}
	var p *Profile
	err := m.call(ctx, "get_profile", func(ctx context.Context) error {
		var err error
		p, err = m.backend.GetProfile(ctx, s)
		return err
	})
	if err != nil {
		m.logger.Warn("relayauth: profile fetch failed", slog.Any("error", err))
		return nil
	}
	return p
}

func (m *SessionManager) bestEffortSignOut(ctx context.Context, s *session.Session) {
	err := m.call(ctx, "sign_out", func(ctx context.Context) error {
		return m.backend.SignOut(ctx, s)
	})
	if err != nil {
		m.logger.Warn("relayauth: backend sign-out failed", slog.Any("error", err))
	}
}

func (m *SessionManager) load(ctx context.Context) (*session.Session, error) {
	data, err := m.storage.Get(ctx, m.cfg.StorageKey)
	if err != nil {
		m.logger.Warn("relayauth: secure storage read failed", slog.Any("error", err))
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	s, err := session.Decode(data)
	if err != nil {
		m.logger.Warn("relayauth: discarding unreadable stored session", slog.Any("error", err))
		m.remove(ctx)
		return nil, err
	}
	fillFromClaims(s, s.Email)
	return s, nil
}

func (m *SessionManager) persist(ctx context.Context, s *session.Session) {
	data, err := session.Encode(s)
	if err == nil {
		err = m.storage.Set(ctx, m.cfg.StorageKey, data)
	}
	if err != nil {
		m.logger.Warn("relayauth: secure storage write failed", slog.Any("error", err))
	}
}

func (m *SessionManager) remove(ctx context.Context) {
	if err := m.storage.Remove(ctx, m.cfg.StorageKey); err != nil {
		m.logger.Warn("relayauth: secure storage remove failed", slog.Any("error", err))
	}
}

// call runs one backend call with the configured timeout, records its
// latency and maps its error.
func (m *SessionManager) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if m.cfg.BackendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.BackendTimeout)
		defer cancel()
	}

	start := time.Now()
	err := classifyBackendError(fn(ctx))
	m.metrics.ObserveBackend(time.Since(start))

	switch {
	case err == nil:
	case errors.Is(err, ErrNetworkUnavailable):
		m.metrics.Inc(MetricNetworkUnavailable)
	case errors.Is(err, ErrBackendUnexpected):
		m.metrics.Inc(MetricBackendUnexpected)
		m.logger.Error("relayauth: unexpected backend error", slog.String("op", op), slog.Any("error", err))
	}
	return err
}

// fillFromClaims completes missing fields from the access token's claims.
// The token is not verified here; the backend verifies it on every use.
func fillFromClaims(s *session.Session, email string) {
	if s.Email == "" {
		s.Email = email
	}
	if s.AccessToken == "" || (s.ExpiresAt != 0 && s.UserID != "" && s.SessionID != "") {
		return
	}
	claims, err := jwt.ReadUnverified(s.AccessToken)
	if err != nil {
		return
	}
	if s.ExpiresAt == 0 && claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if s.IssuedAt == 0 && claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Unix()
	}
	if s.UserID == "" {
		s.UserID = claims.UID
	}
	if s.SessionID == "" {
		s.SessionID = claims.SID
	}
	if s.Email == "" {
		s.Email = claims.Email
	}
	if s.Scope == 0 {
		s.Scope = session.ParseScope(claims.Scope)
	}
}
