package backend_test

import (
	"context"
	"testing"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/backend"
	"github.com/MrEthical07/relayauth/password"
	"github.com/MrEthical07/relayauth/securestore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newReferenceBackend(t *testing.T) (*backend.Backend, *backend.CaptureMailer) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := backend.DefaultConfig()
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.MailPerSecond = 0

	mail := backend.NewCaptureMailer(nil)
	b, err := backend.New(context.Background(), cfg, backend.Options{
		Redis:      rdb,
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Mailer:     mail,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mail
}

func newController(t *testing.T, b relayauth.IdentityBackend, store relayauth.SecureStorage) *relayauth.Controller {
	t.Helper()
	c, err := relayauth.New().WithBackend(b).WithStorage(store).Build()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestControllerAgainstReferenceBackend(t *testing.T) {
	ctx := context.Background()
	b, mail := newReferenceBackend(t)
	store := securestore.NewMemory()
	c := newController(t, b, store)
	const email = "new@x.com"

	require.NoError(t, c.SubmitSignUp(ctx, relayauth.SignUpInput{Email: "New@X.com", Password: "Correct#Horse9", FullName: "New User"}))
	require.Equal(t, relayauth.StateSignupOTPSent, c.State())

	code, ok := mail.LastCode(relayauth.OTPSignup, email)
	require.True(t, ok)
	require.NoError(t, c.SubmitSignupCode(ctx, code))
	require.Equal(t, relayauth.StateAuthenticated, c.State())

	snap := c.Snapshot()
	require.True(t, snap.SignedIn())
	require.NotNil(t, snap.Profile)
	require.Equal(t, "New User", snap.Profile.FullName)
	require.Equal(t, 1, store.Len())

	require.NoError(t, c.SignOut(ctx))
	require.Equal(t, relayauth.StateUnauthenticated, c.State())
	require.Zero(t, store.Len())

	err := c.SubmitLogin(ctx, email, "Wrong#Horse9")
	require.ErrorIs(t, err, relayauth.ErrInvalidCredentials)
	require.Equal(t, relayauth.StateUnauthenticated, c.State())

	require.NoError(t, c.RequestPasswordReset(ctx, email))
	require.Equal(t, relayauth.StateResetOTPSent, c.State())
	code, ok = mail.LastCode(relayauth.OTPRecovery, email)
	require.True(t, ok)
	require.NoError(t, c.SubmitResetCode(ctx, code))
	require.Equal(t, relayauth.StateResetSessionActive, c.State())
	require.True(t, c.Snapshot().Session.IsRecovery())

	require.NoError(t, c.SubmitNewPassword(ctx, "Battery#Staple7"))
	require.Equal(t, relayauth.StateAuthenticated, c.State())
	require.True(t, c.Snapshot().Session.IsFull())

	// A second controller on the same storage restores the session and
	// follows backend revocation.
	c.Close()
	restarted := newController(t, b, store)
	state, err := restarted.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, relayauth.StateAuthenticated, state)

	n, err := b.RevokeUser(ctx, email)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, relayauth.StateUnauthenticated, restarted.State())
	require.Zero(t, store.Len())

	require.NoError(t, restarted.SubmitLogin(ctx, email, "Battery#Staple7"))
	require.Equal(t, relayauth.StateAuthenticated, restarted.State())
}

func TestUnverifiedLoginRoutesBackToVerification(t *testing.T) {
	ctx := context.Background()
	b, mail := newReferenceBackend(t)
	c := newController(t, b, securestore.NewMemory())

	require.NoError(t, c.SubmitSignUp(ctx, relayauth.SignUpInput{Email: "late@x.com", Password: "Correct#Horse9"}))
	require.NoError(t, c.Cancel(ctx))
	require.Equal(t, relayauth.StateUnauthenticated, c.State())

	err := c.SubmitLogin(ctx, "late@x.com", "Correct#Horse9")
	require.ErrorIs(t, err, relayauth.ErrEmailNotVerified)
	require.Equal(t, relayauth.StateSignupOTPSent, c.State())

	code, _ := mail.LastCode(relayauth.OTPSignup, "late@x.com")
	require.NoError(t, c.SubmitSignupCode(ctx, code))
	require.Equal(t, relayauth.StateAuthenticated, c.State())
}

func TestRevokeUserLeavesOtherClientsSignedIn(t *testing.T) {
	ctx := context.Background()
	b, mail := newReferenceBackend(t)

	signUp := func(email string) *relayauth.Controller {
		c := newController(t, b, securestore.NewMemory())
		require.NoError(t, c.SubmitSignUp(ctx, relayauth.SignUpInput{Email: email, Password: "Correct#Horse9"}))
		code, ok := mail.LastCode(relayauth.OTPSignup, email)
		require.True(t, ok)
		require.NoError(t, c.SubmitSignupCode(ctx, code))
		require.Equal(t, relayauth.StateAuthenticated, c.State())
		return c
	}
	alice := signUp("alice@x.com")
	bob := signUp("bob@x.com")

	n, err := b.RevokeUser(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, relayauth.StateUnauthenticated, alice.State())
	require.Equal(t, relayauth.StateAuthenticated, bob.State())
	require.True(t, bob.Snapshot().SignedIn())
}
