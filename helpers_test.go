package relayauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/relayauth/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet bool
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string][]byte)}
}

func (s *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *memStorage) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("keystore unavailable")
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type fakeAccount struct {
	userID   string
	password string
	verified bool
}

const goodCode = "123456"

// fakeBackend is an in-memory IdentityBackend. Every code it issues is
// goodCode; codes are single-use.
type fakeBackend struct {
	mu        sync.Mutex
	now       func() time.Time
	ttl       time.Duration
	accounts  map[string]*fakeAccount
	codes     map[string]string
	refresh   map[string]*session.Session
	calls     map[string]int
	seq       int
	subs      map[int]func(SessionEvent)
	nextSub   int
	signInErr error
	signOutFn func() error

	// signInGate, when set, blocks SignInWithPassword until closed;
	// signInEntered is signalled first.
	signInGate    chan struct{}
	signInEntered chan struct{}
}

func newFakeBackend(now func() time.Time) *fakeBackend {
	return &fakeBackend{
		now:      now,
		ttl:      time.Hour,
		accounts: make(map[string]*fakeAccount),
		codes:    make(map[string]string),
		refresh:  make(map[string]*session.Session),
		calls:    make(map[string]int),
		subs:     make(map[int]func(SessionEvent)),
	}
}

func (b *fakeBackend) addAccount(email, password string, verified bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.accounts[email] = &fakeAccount{userID: fmt.Sprintf("u-%d", b.seq), password: password, verified: verified}
}

func (b *fakeBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) issueLocked(email string, scope session.Scope) *session.Session {
	b.seq++
	now := b.now()
	s := &session.Session{
		SessionID:    fmt.Sprintf("s-%d", b.seq),
		UserID:       b.accounts[email].userID,
		Email:        email,
		Scope:        scope,
		AccessToken:  fmt.Sprintf("at-%d", b.seq),
		RefreshToken: fmt.Sprintf("rt-%d", b.seq),
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(b.ttl).Unix(),
	}
	b.refresh[s.RefreshToken] = s.Clone()
	return s
}

func (b *fakeBackend) SignInWithPassword(_ context.Context, email, password string) (*session.Session, error) {
	b.mu.Lock()
	b.calls["sign_in"]++
	gate, entered := b.signInGate, b.signInEntered
	b.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signInErr != nil {
		return nil, b.signInErr
	}
	acct, ok := b.accounts[email]
	if !ok || acct.password != password {
		return nil, &BackendError{Code: CodeInvalidCredentials, Message: "Invalid login credentials", Status: 400}
	}
	if !acct.verified {
		return nil, &BackendError{Code: CodeEmailNotConfirmed, Message: "Email not confirmed", Status: 400}
	}
	return b.issueLocked(email, session.ScopeFull), nil
}

func (b *fakeBackend) SignUp(_ context.Context, in SignUpInput) (PendingVerification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["sign_up"]++
	if _, ok := b.accounts[in.Email]; ok {
		return PendingVerification{}, &BackendError{Code: CodeUserAlreadyExists, Status: 422}
	}
	b.seq++
	b.accounts[in.Email] = &fakeAccount{userID: fmt.Sprintf("u-%d", b.seq), password: in.Password}
	b.codes["signup:"+in.Email] = goodCode
	return PendingVerification{Email: in.Email, UserID: b.accounts[in.Email].userID}, nil
}

func (b *fakeBackend) VerifyOTP(_ context.Context, kind OTPKind, email, code string) (*session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["verify_"+string(kind)]++
	key := string(kind) + ":" + email
	want, ok := b.codes[key]
	switch {
	case !ok:
		return nil, &BackendError{Code: CodeOTPExpired, Status: 403}
	case want == "used":
		return nil, &BackendError{Code: CodeOTPUsed, Status: 403}
	case want != code:
		return nil, &BackendError{Code: CodeOTPInvalid, Status: 403}
	}
	b.codes[key] = "used"
	if kind == OTPSignup {
		b.accounts[email].verified = true
		return b.issueLocked(email, session.ScopeFull), nil
	}
	return b.issueLocked(email, session.ScopeRecovery), nil
}

func (b *fakeBackend) ResendOTP(_ context.Context, kind OTPKind, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["resend_"+string(kind)]++
	b.codes[string(kind)+":"+email] = goodCode
	return nil
}

func (b *fakeBackend) ResetPasswordForEmail(_ context.Context, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["reset"]++
	if _, ok := b.accounts[email]; ok {
		b.codes["recovery:"+email] = goodCode
	}
	return nil
}

func (b *fakeBackend) UpdatePassword(_ context.Context, cur *session.Session, pw string) (*session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["update_password"]++
	acct, ok := b.accounts[cur.Email]
	if !ok {
		return nil, &BackendError{Code: CodeSessionExpired, Status: 401}
	}
	acct.password = pw
	return b.issueLocked(cur.Email, session.ScopeFull), nil
}

func (b *fakeBackend) RefreshSession(_ context.Context, token string) (*session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["refresh"]++
	old, ok := b.refresh[token]
	if !ok {
		return nil, &BackendError{Code: CodeRefreshReused, Status: 401}
	}
	delete(b.refresh, token)
	return b.issueLocked(old.Email, old.Scope), nil
}

func (b *fakeBackend) SignOut(context.Context, *session.Session) error {
	b.mu.Lock()
	b.calls["sign_out"]++
	fn := b.signOutFn
	b.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (b *fakeBackend) GetProfile(_ context.Context, s *session.Session) (*Profile, error) {
	return &Profile{UserID: s.UserID, Email: s.Email, EmailVerified: true}, nil
}

func (b *fakeBackend) Subscribe(fn func(SessionEvent)) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *fakeBackend) emit(ev SessionEvent) {
	b.mu.Lock()
	subs := make([]func(SessionEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

type harness struct {
	c       *Controller
	backend *fakeBackend
	storage *memStorage
	clock   *fakeClock
	online  bool
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	clock := newFakeClock()
	h := &harness{
		backend: newFakeBackend(clock.Now),
		storage: newMemStorage(),
		clock:   clock,
		online:  true,
	}
	h.c = h.build(t, mutate)
	return h
}

// build creates another Controller over the same backend and storage, as
// an app restart would.
func (h *harness) build(t *testing.T, mutate func(*Config)) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New().
		WithConfig(cfg).
		WithBackend(h.backend).
		WithStorage(h.storage).
		WithClock(h.clock.Now).
		WithReachability(ReachabilityFunc(func() bool { return h.online })).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

const strongPassword = "Correct#Horse9"

func (h *harness) signUp(t *testing.T, email string) {
	t.Helper()
	err := h.c.SubmitSignUp(context.Background(), SignUpInput{Email: email, Password: strongPassword})
	if err != nil {
		t.Fatalf("SubmitSignUp: %v", err)
	}
}

func (h *harness) mustState(t *testing.T, want State) {
	t.Helper()
	if got := h.c.State(); got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}
