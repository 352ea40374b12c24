package relayauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/relayauth/internal/audit"
	"github.com/MrEthical07/relayauth/internal/lockout"
	"github.com/MrEthical07/relayauth/internal/rate"
)

// Builder is the composition root: it constructs the rate limiter, lockout
// tracker, session manager and audit dispatcher and injects them into one
// Controller. A Builder can be used once.
type Builder struct {
	config    Config
	backend   IdentityBackend
	storage   SecureStorage
	reach     Reachability
	logger    *slog.Logger
	now       func() time.Time
	auditSink AuditSink

	built bool
}

// New returns a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBackend sets the identity backend. Required.
func (b *Builder) WithBackend(backend IdentityBackend) *Builder {
	b.backend = backend
	return b
}

// WithStorage sets the secure session storage. Required.
func (b *Builder) WithStorage(storage SecureStorage) *Builder {
	b.storage = storage
	return b
}

// WithReachability sets the network signal. Defaults to AlwaysOnline.
func (b *Builder) WithReachability(r Reachability) *Builder {
	b.reach = r
	return b
}

// WithLogger sets the structured logger. Defaults to discarding output.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces time.Now for the limiter, tracker, cooldowns and
// session expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuditSink sets where audit events go. Audit must also be enabled in
// Config.Audit.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the backend latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Controller.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.backend == nil {
		return nil, errors.New("identity backend required")
	}
	if b.storage == nil {
		return nil, errors.New("secure storage required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reach := b.reach
	if reach == nil {
		reach = AlwaysOnline
	}

	for _, w := range cfg.Lint().BySeverity(LintHigh) {
		logger.Warn("relayauth: config lint", slog.String("code", w.Code), slog.String("message", w.Message))
	}

	limiter := rate.New(rate.WithClock(now), rate.WithMaxKeys(cfg.RateLimit.MaxKeys))
	tracker := lockout.NewTracker(cfg.Lockout.tracker(), now)
	metrics := NewMetrics(cfg.Metrics)

	c := &Controller{
		cfg:     cfg,
		limiter: limiter,
		tracker: tracker,
		reach:   reach,
		logger:  logger,
		now:     now,
		metrics: metrics,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:        cfg.Audit.Enabled,
			BufferSize:     cfg.Audit.BufferSize,
			DropIfFull:     cfg.Audit.DropIfFull,
			RedactIdentity: cfg.Audit.RedactIdentity,
		}, b.auditSink),
		state: StateUnauthenticated,
		subs:  make(map[int]func(Transition)),
	}
	c.sessions = newSessionManager(b.backend, b.storage, cfg.Session, logger, now, metrics, limiter, tracker)
	c.sessions.onEnded = c.onSessionEnded

	if cfg.RateLimit.SweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopSweeper = cancel
		c.sweeperDone = make(chan struct{})
		go func() {
			defer close(c.sweeperDone)
			limiter.RunSweeper(ctx, cfg.RateLimit.SweepInterval)
		}()
	}

	b.built = true
	return c, nil
}
