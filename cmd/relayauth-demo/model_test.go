package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/backend"
	"github.com/MrEthical07/relayauth/password"
	"github.com/MrEthical07/relayauth/securestore"
	"github.com/alicebob/miniredis/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (*model, *backend.CaptureMailer) {
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

	ctrl, err := relayauth.New().WithBackend(b).WithStorage(securestore.NewMemory()).Build()
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	m := newModel(ctrl, b, func(tea.Msg) {})
	t.Cleanup(m.stopExpiry)
	return m, mail
}

// press sends a key and runs the resulting operation, if any, to completion.
func press(t *testing.T, m *model, k tea.KeyType) {
	t.Helper()
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	if !m.busy {
		return
	}
	require.NotNil(t, cmd)
	res, ok := cmd().(resultMsg)
	require.True(t, ok)
	m.Update(res)
}

func TestModelSignupToHome(t *testing.T) {
	m, mail := newTestModel(t)

	press(t, m, tea.KeyCtrlN)
	require.Len(t, m.inputs, 4)
	m.inputs[0].SetValue("tui@x.com")
	m.inputs[1].SetValue("Correct#Horse9")
	m.inputs[2].SetValue("Tui User")

	press(t, m, tea.KeyEnter)
	require.Equal(t, relayauth.StateSignupOTPSent, m.state)
	require.Equal(t, []string{"Code"}, m.labels)
	require.Positive(t, m.expiry)
	require.Contains(t, m.View(), "tui@x.com")

	m.inputs[0].SetValue("000000")
	press(t, m, tea.KeyEnter)
	require.Equal(t, relayauth.StateSignupOTPSent, m.state)
	require.True(t, m.statusErr)
	require.Empty(t, m.inputs[0].Value())

	code, ok := mail.LastCode(relayauth.OTPSignup, "tui@x.com")
	require.True(t, ok)
	m.inputs[0].SetValue(code)
	press(t, m, tea.KeyEnter)
	require.Equal(t, relayauth.StateAuthenticated, m.state)
	view := m.View()
	require.Contains(t, view, "Signed in")
	require.Contains(t, view, "Tui User")

	press(t, m, tea.KeyCtrlO)
	require.Equal(t, relayauth.StateUnauthenticated, m.state)
	require.Equal(t, formLogin, m.form)
}

func TestModelShowsUserMessages(t *testing.T) {
	m, _ := newTestModel(t)

	m.inputs[0].SetValue("nobody@x.com")
	m.inputs[1].SetValue("Wrong#Horse9")
	press(t, m, tea.KeyEnter)
	require.Equal(t, relayauth.StateUnauthenticated, m.state)
	require.True(t, m.statusErr)
	require.Equal(t, relayauth.UserMessage(relayauth.ErrInvalidCredentials), m.status)
	require.False(t, strings.Contains(m.View(), "invalid_credentials"))
}

func TestModelIgnoresStaleExpiryTicks(t *testing.T) {
	m, _ := newTestModel(t)
	m.gen = 3
	m.Update(expiryMsg{gen: 2, left: 42})
	require.Zero(t, m.expiry)
	m.Update(expiryMsg{gen: 3, left: 42})
	require.EqualValues(t, 42, m.expiry)
}

func TestModelForgotFormAndCancel(t *testing.T) {
	m, mail := newTestModel(t)

	press(t, m, tea.KeyCtrlP)
	require.Equal(t, formForgot, m.form)
	require.Len(t, m.inputs, 1)

	// Unknown and known addresses both move to the code screen.
	m.inputs[0].SetValue("ghost@x.com")
	press(t, m, tea.KeyEnter)
	require.Equal(t, relayauth.StateResetOTPSent, m.state)
	_, ok := mail.LastCode(relayauth.OTPRecovery, "ghost@x.com")
	require.False(t, ok)

	press(t, m, tea.KeyEsc)
	require.Equal(t, relayauth.StateUnauthenticated, m.state)
	require.Equal(t, formLogin, m.form)
}

func TestModelResultErrorKeepsScreen(t *testing.T) {
	m, _ := newTestModel(t)
	m.Update(resultMsg{op: "sign in", err: errors.New("boom")})
	require.Equal(t, relayauth.StateUnauthenticated, m.state)
	require.Equal(t, relayauth.UserMessage(errors.New("boom")), m.status)
}
