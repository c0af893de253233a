package httpapi

import (
	"sync"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// Broker fans status updates out to SSE subscribers. Publish never
// blocks; a subscriber that stops draining just misses updates until
// it catches up, which is fine for a stream of full snapshots.
type Broker struct {
	mu   sync.Mutex
	subs map[chan poker.Status]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan poker.Status]struct{})}
}

// Subscribe registers a new subscriber channel.
func (b *Broker) Subscribe() chan poker.Status {
	ch := make(chan poker.Status, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broker) Unsubscribe(ch chan poker.Status) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish delivers st to every subscriber that has room.
func (b *Broker) Publish(st poker.Status) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- st:
		default:
		}
	}
	b.mu.Unlock()
}
