package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/backend"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const opTimeout = 30 * time.Second

type (
	transitionMsg relayauth.Transition
	mailMsg       backend.Message
	tickMsg       time.Time

	resultMsg struct {
		op  string
		err error
	}

	// expiryMsg carries a code-expiry tick. gen drops ticks from a countdown
	// that was already replaced.
	expiryMsg struct {
		gen  int
		left time.Duration
	}
)

// form is the sub-screen shown while the controller routes to login.
type form int

const (
	formLogin form = iota
	formSignup
	formForgot
)

type field struct {
	label  string
	secret bool
}

type model struct {
	ctrl  *relayauth.Controller
	admin *backend.Backend
	send  func(tea.Msg)

	state  relayauth.State
	form   form
	labels []string
	inputs []textinput.Model
	focus  int

	busy      bool
	status    string
	statusErr bool

	inbox    []backend.Message
	expiry   time.Duration
	expiryCd *relayauth.Countdown
	gen      int
	cooldown time.Duration
	lockout  time.Duration
	width    int
}

func newModel(ctrl *relayauth.Controller, admin *backend.Backend, send func(tea.Msg)) *model {
	m := &model{ctrl: ctrl, admin: admin, send: send, state: relayauth.StateUnauthenticated}
	m.buildInputs()
	return m
}

func (m *model) Init() tea.Cmd {
	m.busy = true
	return tea.Batch(
		textinput.Blink,
		tick(),
		m.run("restore session", func(ctx context.Context) error {
			_, err := m.ctrl.Initialize(ctx)
			return err
		}),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// run executes op off the event loop. Controller calls notify subscribers
// synchronously, and those forward into the program, so they must never run
// inside Update.
func (m *model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return resultMsg{op: op, err: fn(ctx)}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.cooldown = m.ctrl.ResendCooldownRemaining()
		m.lockout = m.ctrl.LockoutRetryAfter()
		return m, tick()

	case expiryMsg:
		if msg.gen == m.gen {
			m.expiry = msg.left
		}
		return m, nil

	case mailMsg:
		m.inbox = append(m.inbox, backend.Message(msg))
		if len(m.inbox) > 6 {
			m.inbox = m.inbox[len(m.inbox)-6:]
		}
		return m, nil

	case transitionMsg:
		if msg.Event == relayauth.EventSessionEnded {
			m.setStatus("Your session ended. Please sign in again.", true)
		}
		return m, m.enter(msg.To)

	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(relayauth.UserMessage(msg.err), true)
			if relayauth.ShouldClearCode(msg.err) && len(m.inputs) > 0 {
				m.inputs[0].SetValue("")
			}
			if relayauth.OffersResend(msg.err) {
				m.status += " (ctrl+r sends a new code)"
			}
		} else if msg.op != "" {
			m.setStatus(msg.op+": done", false)
			if strings.HasPrefix(msg.op, "resend") {
				m.watchExpiry()
			}
		}
		if s := m.ctrl.State(); s != m.state {
			return m, m.enter(s)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, m.updateInputs(msg)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	route := relayauth.RouteFor(m.state)

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab", "down":
		return m, m.moveFocus(1)
	case "shift+tab", "up":
		return m, m.moveFocus(-1)
	}
	if m.busy {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		return m, m.submit()

	case "ctrl+n":
		if route == relayauth.RouteLogin {
			m.form = formSignup
			m.status = ""
			return m, m.buildInputs()
		}

	case "ctrl+p":
		if route == relayauth.RouteLogin || route == relayauth.RouteBlocked {
			email := m.ctrl.Identity()
			if email == "" && len(m.inputs) > 0 {
				email = m.inputs[0].Value()
			}
			m.form = formForgot
			m.status = ""
			cmd := m.buildInputs()
			m.inputs[0].SetValue(email)
			if route == relayauth.RouteBlocked {
				return m, m.run("send reset code", func(ctx context.Context) error {
					return m.ctrl.RequestPasswordReset(ctx, email)
				})
			}
			return m, cmd
		}

	case "ctrl+r":
		switch route {
		case relayauth.RouteVerifyEmail:
			return m, m.run("resend signup code", m.ctrl.ResendSignupCode)
		case relayauth.RouteResetCode:
			return m, m.run("resend reset code", m.ctrl.ResendResetCode)
		}

	case "ctrl+o":
		if route == relayauth.RouteHome {
			return m, m.run("sign out", m.ctrl.SignOut)
		}

	case "ctrl+x":
		if route == relayauth.RouteHome {
			snap := m.ctrl.Snapshot()
			if snap.Session == nil {
				return m, nil
			}
			email := snap.Session.Email
			return m, m.run("", func(ctx context.Context) error {
				_, err := m.admin.RevokeUser(ctx, email)
				return err
			})
		}

	case "esc":
		if route == relayauth.RouteLogin && m.form != formLogin {
			m.form = formLogin
			m.status = ""
			return m, m.buildInputs()
		}
		if m.ctrl.InAuthFlow() {
			return m, m.run("cancel", m.ctrl.Cancel)
		}
	}

	return m, m.updateInputs(msg)
}

func (m *model) submit() tea.Cmd {
	v := make([]string, len(m.inputs))
	for i := range m.inputs {
		v[i] = m.inputs[i].Value()
	}

	switch relayauth.RouteFor(m.state) {
	case relayauth.RouteLogin:
		switch m.form {
		case formSignup:
			in := relayauth.SignUpInput{Email: v[0], Password: v[1], FullName: v[2], Phone: v[3]}
			return m.run("sign up", func(ctx context.Context) error { return m.ctrl.SubmitSignUp(ctx, in) })
		case formForgot:
			return m.run("send reset code", func(ctx context.Context) error { return m.ctrl.RequestPasswordReset(ctx, v[0]) })
		default:
			return m.run("sign in", func(ctx context.Context) error { return m.ctrl.SubmitLogin(ctx, v[0], v[1]) })
		}
	case relayauth.RouteBlocked:
		return m.run("sign in", func(ctx context.Context) error { return m.ctrl.SubmitLogin(ctx, v[0], v[1]) })
	case relayauth.RouteVerifyEmail:
		return m.run("verify email", func(ctx context.Context) error { return m.ctrl.SubmitSignupCode(ctx, v[0]) })
	case relayauth.RouteResetCode:
		return m.run("verify reset code", func(ctx context.Context) error { return m.ctrl.SubmitResetCode(ctx, v[0]) })
	case relayauth.RouteNewPassword:
		return m.run("set password", func(ctx context.Context) error { return m.ctrl.SubmitNewPassword(ctx, v[0]) })
	}
	return nil
}

// enter switches the screen to state s.
func (m *model) enter(s relayauth.State) tea.Cmd {
	if s == m.state && m.inputs != nil {
		return nil
	}
	m.state = s
	m.form = formLogin
	m.stopExpiry()
	cmd := m.buildInputs()
	if s == relayauth.StateSignupOTPSent || s == relayauth.StateResetOTPSent {
		m.watchExpiry()
	}
	if s == relayauth.StateLoginBlocked && len(m.inputs) > 0 {
		m.inputs[0].SetValue(m.ctrl.Identity())
	}
	return cmd
}

func (m *model) watchExpiry() {
	m.stopExpiry()
	gen := m.gen
	m.expiry = m.ctrl.CodeExpiresIn()
	m.expiryCd = m.ctrl.CodeExpiryCountdown(context.Background(), func(left time.Duration) {
		m.send(expiryMsg{gen: gen, left: left})
	})
}

// stopExpiry retires the running countdown. Stop waits for the countdown
// goroutine, which may be blocked delivering a tick to this event loop, so
// it runs on its own goroutine.
func (m *model) stopExpiry() {
	m.gen++
	m.expiry = 0
	if cd := m.expiryCd; cd != nil {
		m.expiryCd = nil
		go cd.Stop()
	}
}

func (m *model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m *model) fields() []field {
	switch relayauth.RouteFor(m.state) {
	case relayauth.RouteLogin:
		switch m.form {
		case formSignup:
			return []field{{label: "Email"}, {label: "Password", secret: true}, {label: "Full name"}, {label: "Phone"}}
		case formForgot:
			return []field{{label: "Email"}}
		}
		return []field{{label: "Email"}, {label: "Password", secret: true}}
	case relayauth.RouteBlocked:
		return []field{{label: "Email"}, {label: "Password", secret: true}}
	case relayauth.RouteVerifyEmail, relayauth.RouteResetCode:
		return []field{{label: "Code"}}
	case relayauth.RouteNewPassword:
		return []field{{label: "New password", secret: true}}
	}
	return nil
}

func (m *model) buildInputs() tea.Cmd {
	fs := m.fields()
	m.labels = make([]string, len(fs))
	m.inputs = make([]textinput.Model, len(fs))
	m.focus = 0
	for i, f := range fs {
		ti := textinput.New()
		ti.Prompt = "› "
		ti.PromptStyle = lipgloss.NewStyle().Foreground(cyan)
		ti.TextStyle = lipgloss.NewStyle()
		ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(muted)
		ti.Cursor.Style = lipgloss.NewStyle().Foreground(cyan)
		ti.CharLimit = 256
		ti.Width = 32
		if f.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		if f.label == "Code" {
			ti.CharLimit = 6
			ti.Placeholder = "6 digits"
		}
		m.labels[i] = f.label
		m.inputs[i] = ti
	}
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[0].Focus()
}

func (m *model) moveFocus(delta int) tea.Cmd {
	if len(m.inputs) == 0 {
		return nil
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

func (m *model) updateInputs(msg tea.Msg) tea.Cmd {
	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return tea.Batch(cmds...)
}

func (m *model) View() string {
	main := paneStyle.Render(m.screen())
	inbox := inboxStyle.Render(m.inboxView())
	body := lipgloss.JoinHorizontal(lipgloss.Top, main, " ", inbox)

	var b strings.Builder
	b.WriteString(titleStyle.Render("relayauth demo"))
	b.WriteString("  ")
	b.WriteString(stateStyle.Render(m.state.String()))
	b.WriteString("\n\n")
	b.WriteString(body)
	b.WriteString("\n")
	if m.busy {
		b.WriteString(waitStyle.Render("working..."))
	} else if m.status != "" {
		if m.statusErr {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(infoStyle.Render(m.status))
		}
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))
	return b.String()
}

func (m *model) screen() string {
	var b strings.Builder
	route := relayauth.RouteFor(m.state)

	switch route {
	case relayauth.RouteLogin:
		switch m.form {
		case formSignup:
			b.WriteString("Create an account\n\n")
		case formForgot:
			b.WriteString("Reset your password\n\n")
		default:
			b.WriteString("Sign in\n\n")
		}
	case relayauth.RouteVerifyEmail:
		fmt.Fprintf(&b, "Enter the code sent to %s\n\n", m.ctrl.Identity())
	case relayauth.RouteBlocked:
		b.WriteString("Sign-in paused\n")
		if m.lockout > 0 {
			b.WriteString(waitStyle.Render("Try again in "+m.lockout.Round(time.Second).String()) + "\n")
		}
		b.WriteString("\n")
	case relayauth.RouteResetCode:
		fmt.Fprintf(&b, "Enter the reset code sent to %s\n\n", m.ctrl.Identity())
	case relayauth.RouteNewPassword:
		b.WriteString("Choose a new password\n\n")
	case relayauth.RouteHome:
		return m.homeView()
	}

	for i := range m.inputs {
		b.WriteString(labelStyle.Render(m.labels[i]))
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}

	if route == relayauth.RouteVerifyEmail || route == relayauth.RouteResetCode {
		b.WriteString("\n")
		if m.expiry > 0 {
			b.WriteString(stateStyle.Render("Code expires in "+m.expiry.Round(time.Second).String()) + "\n")
		} else {
			b.WriteString(errorStyle.Render("Code expired") + "\n")
		}
		if m.cooldown > 0 {
			b.WriteString(stateStyle.Render("Resend available in " + m.cooldown.Round(time.Second).String()))
		} else {
			b.WriteString(infoStyle.Render("Resend available"))
		}
	}
	return b.String()
}

func (m *model) homeView() string {
	snap := m.ctrl.Snapshot()
	var b strings.Builder
	b.WriteString("Signed in\n\n")
	if snap.Session != nil {
		b.WriteString(labelStyle.Render("Email") + snap.Session.Email + "\n")
		b.WriteString(labelStyle.Render("Expires") + time.Unix(snap.Session.ExpiresAt, 0).Format(time.Kitchen) + "\n")
	}
	if p := snap.Profile; p != nil {
		b.WriteString(labelStyle.Render("Name") + p.FullName + "\n")
		if p.Phone != "" {
			b.WriteString(labelStyle.Render("Phone") + p.Phone + "\n")
		}
		b.WriteString(labelStyle.Render("Since") + p.CreatedAt.Local().Format(time.DateOnly) + "\n")
	}
	return b.String()
}

func (m *model) inboxView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("dev inbox") + "\n")
	if len(m.inbox) == 0 {
		b.WriteString(stateStyle.Render("no mail yet"))
		return b.String()
	}
	for i := len(m.inbox) - 1; i >= 0; i-- {
		msg := m.inbox[i]
		fmt.Fprintf(&b, "\n%s\n%s code %s\n", stateStyle.Render(msg.To), msg.Kind, infoStyle.Render(msg.Code))
	}
	return b.String()
}

func (m *model) help() string {
	switch relayauth.RouteFor(m.state) {
	case relayauth.RouteLogin:
		if m.form != formLogin {
			return "enter submit • tab next field • esc back • ctrl+c quit"
		}
		return "enter sign in • ctrl+n sign up • ctrl+p forgot password • ctrl+c quit"
	case relayauth.RouteBlocked:
		return "enter retry • ctrl+p reset password • esc back • ctrl+c quit"
	case relayauth.RouteVerifyEmail, relayauth.RouteResetCode:
		return "enter verify • ctrl+r resend • esc cancel • ctrl+c quit"
	case relayauth.RouteNewPassword:
		return "enter save • esc cancel • ctrl+c quit"
	case relayauth.RouteHome:
		return "ctrl+o sign out • ctrl+x revoke all sessions (server side) • ctrl+c quit"
	}
	return "ctrl+c quit"
}
