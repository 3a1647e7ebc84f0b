package events

import (
	"sync"

	"github.com/gigpay/treasuryops/internal/entity"
)

// ViewBroadcaster fans unified treasury views out to all subscribers via
// buffered channels. It keeps the API intentionally small so call sites
// can stay straightforward.
type ViewBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan entity.View]struct{}
	buffer int
}

// NewViewBroadcaster creates a broadcaster with the given per-subscriber
// buffer.
func NewViewBroadcaster(buffer int) *ViewBroadcaster {
	if buffer < 1 {
		buffer = 16
	}
	return &ViewBroadcaster{
		subs:   make(map[chan entity.View]struct{}),
		buffer: buffer,
	}
}

// Publish sends the view to all subscribers, dropping if a reader is slow.
func (b *ViewBroadcaster) Publish(v entity.View) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives views until Unsubscribe is
// called.
func (b *ViewBroadcaster) Subscribe() chan entity.View {
	ch := make(chan entity.View, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *ViewBroadcaster) Unsubscribe(ch chan entity.View) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
