package audit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// RedactIdentity masks the email in every event before it is queued.
	RedactIdentity bool
}

// Dispatcher hands events to a Sink on one goroutine, in Emit order.
//
// Every accepted or dropped event takes the next sequence number, so a sink
// that sees a gap in Seq knows events were dropped.
type Dispatcher struct {
	cfg  Config
	sink Sink

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	idle   chan struct{}

	seq       atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher returns nil when cfg is disabled; a nil Dispatcher accepts
// and drops every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		idle:  make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.idle)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
		d.delivered.Add(1)
	}
}

// Emit queues event. With DropIfFull a full queue drops it; otherwise Emit
// waits for room until ctx ends. Events after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	event.Seq = d.seq.Add(1)
	if d.cfg.RedactIdentity {
		event.Identity = MaskIdentity(event.Identity)
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and returns once everything queued has
// reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.idle
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// MaskIdentity keeps the first character of the local part and the domain:
// "alice@x.com" becomes "a***@x.com". Anything that is not an email is
// masked entirely.
func MaskIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	at := strings.LastIndexByte(identity, '@')
	if at <= 0 {
		return "***"
	}
	return identity[:1] + "***" + identity[at:]
}
