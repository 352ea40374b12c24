package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/relayauth"
	"golang.org/x/time/rate"
)

// Message is one outbound code email.
type Message struct {
	To        string
	Kind      relayauth.OTPKind
	Code      string
	ExpiresAt time.Time
}

// Mailer delivers code emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// ThrottledMailer caps the outbound send rate of the wrapped Mailer. Send
// waits for a token and gives up when ctx ends first.
type ThrottledMailer struct {
	next    Mailer
	limiter *rate.Limiter
}

// NewThrottledMailer wraps next with a token bucket of perSecond and burst.
func NewThrottledMailer(next Mailer, perSecond float64, burst int) *ThrottledMailer {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledMailer{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (m *ThrottledMailer) Send(ctx context.Context, msg Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttled: %w", err)
	}
	return m.next.Send(ctx, msg)
}

// CaptureMailer keeps every message in memory. Tests and the demo client
// read codes from it instead of an inbox.
type CaptureMailer struct {
	mu       sync.Mutex
	messages []Message
	notify   func(Message)
}

// NewCaptureMailer creates a CaptureMailer. notify, if set, is called after
// each message is stored.
func NewCaptureMailer(notify func(Message)) *CaptureMailer {
	return &CaptureMailer{notify: notify}
}

func (m *CaptureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		notify(msg)
	}
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *CaptureMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// LastCode returns the newest code of kind sent to email.
func (m *CaptureMailer) LastCode(kind relayauth.OTPKind, email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if msg := m.messages[i]; msg.Kind == kind && msg.To == email {
			return msg.Code, true
		}
	}
	return "", false
}
