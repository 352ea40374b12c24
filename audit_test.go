package relayauth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func buildAudited(t *testing.T, sink AuditSink) (*Controller, *fakeBackend, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	backend := newFakeBackend(clock.Now)
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	c, err := New().
		WithConfig(cfg).
		WithBackend(backend).
		WithStorage(newMemStorage()).
		WithClock(clock.Now).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c, backend, clock
}

func drain(sink *ChannelSink) []AuditEvent {
	var out []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countType(events []AuditEvent, typ string) int {
	n := 0
	for _, ev := range events {
		if ev.EventType == typ {
			n++
		}
	}
	return n
}

func TestAuditLockoutSequence(t *testing.T) {
	sink := NewChannelSink(64)
	c, backend, _ := buildAudited(t, sink)
	backend.addAccount("user@x.com", strongPassword, true)

	for i := 0; i < 5; i++ {
		_ = c.SubmitLogin(context.Background(), "user@x.com", "wrong")
	}
	c.Close()

	events := drain(sink)
	if got := countType(events, "login_failed"); got != 5 {
		t.Fatalf("login_failed events = %d, want 5", got)
	}
	if got := countType(events, "lockout"); got != 1 {
		t.Fatalf("lockout events = %d, want 1", got)
	}
	if got := countType(events, "transition"); got != 5 {
		t.Fatalf("transition events = %d, want 5", got)
	}

	last := events[len(events)-1]
	if last.EventType != "transition" || last.To != StateLoginBlocked.String() {
		t.Fatalf("last event = %+v, want transition to LOGIN_BLOCKED", last)
	}
	if last.Metadata["retry_after_s"] != "1800" {
		t.Fatalf("retry_after_s = %q", last.Metadata["retry_after_s"])
	}
	for _, ev := range events {
		if ev.Identity != "user@x.com" {
			t.Fatalf("event without identity: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("event without timestamp")
		}
	}
	if c.AuditDropped() != 0 {
		t.Fatalf("dropped %d events", c.AuditDropped())
	}
}

func TestAuditRateLimitedAndCodeRejected(t *testing.T) {
	sink := NewChannelSink(64)
	c, _, clock := buildAudited(t, sink)
	ctx := context.Background()

	if err := c.SubmitSignUp(ctx, SignUpInput{Email: "new@x.com", Password: strongPassword}); err != nil {
		t.Fatal(err)
	}
	_ = c.SubmitSignupCode(ctx, "999999")
	for i := 0; i < 4; i++ {
		clock.Advance(61 * time.Second)
		_ = c.ResendSignupCode(ctx)
	}
	c.Close()

	events := drain(sink)
	if got := countType(events, "code_rejected"); got != 1 {
		t.Fatalf("code_rejected events = %d", got)
	}
	var limited *AuditEvent
	for i := range events {
		if events[i].EventType == "rate_limited" {
			limited = &events[i]
		}
	}
	if limited == nil {
		t.Fatal("expected a rate_limited event")
	}
	if limited.Metadata["action"] != ActionOTPResend {
		t.Fatalf("rate_limited action = %q", limited.Metadata["action"])
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(8)
	h := newHarness(t, nil)
	c, err := New().
		WithBackend(h.backend).
		WithStorage(h.storage).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	_ = c.SubmitLogin(context.Background(), "user@x.com", "wrong")
	c.Close()

	if events := drain(sink); len(events) != 0 {
		t.Fatalf("audit disabled but %d events emitted", len(events))
	}
}

func TestAuditJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	c, backend, _ := buildAudited(t, NewJSONWriterSink(&buf))
	backend.addAccount("user@x.com", strongPassword, true)

	_ = c.SubmitLogin(context.Background(), "user@x.com", strongPassword)
	c.Close()

	sc := bufio.NewScanner(&buf)
	var lines int
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		if ev["event_type"] != "transition" || ev["to"] != "AUTHENTICATED" {
			t.Fatalf("unexpected event %v", ev)
		}
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected 1 JSON line, got %d", lines)
	}
}

func TestAuditSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c, backend, _ := buildAudited(t, SlogSink{Logger: logger})
	backend.addAccount("user@x.com", strongPassword, true)

	_ = c.SubmitLogin(context.Background(), "user@x.com", "wrong")
	c.Close()

	out := buf.String()
	if !strings.Contains(out, "event=login_failed") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("login failure not logged as warning:\n%s", out)
	}
	if !strings.Contains(out, "identity=user@x.com") {
		t.Fatalf("identity missing:\n%s", out)
	}
}

func TestAuditRedactsIdentityWhenConfigured(t *testing.T) {
	sink := NewChannelSink(16)
	clock := newFakeClock()
	backend := newFakeBackend(clock.Now)
	backend.addAccount("user@x.com", strongPassword, true)
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.RedactIdentity = true

	c, err := New().
		WithConfig(cfg).
		WithBackend(backend).
		WithStorage(newMemStorage()).
		WithClock(clock.Now).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_ = c.SubmitLogin(context.Background(), "user@x.com", "wrong")
	c.Close()

	events := drain(sink)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	for _, ev := range events {
		if ev.Identity != "u***@x.com" {
			t.Fatalf("identity = %q, want masked", ev.Identity)
		}
	}
}
