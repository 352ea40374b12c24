package backend

import "github.com/MrEthical07/relayauth"

// Subscribe registers fn for session events and returns its cancel func.
// Events are delivered synchronously on the goroutine of the operator call
// that caused them.
func (b *Backend) Subscribe(fn func(relayauth.SessionEvent)) func() {
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

func (b *Backend) publish(ev relayauth.SessionEvent) {
	b.mu.Lock()
	fns := make([]func(relayauth.SessionEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
