// Package broadcast fans cycle-completion events out to live subscribers
// without ever blocking the ingest loop.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/dropfeed/internal/storage"
)

// DefaultBufferSize is the per-subscriber event buffer used when the
// configured size is not positive.
const DefaultBufferSize = 8

// Event describes one completed ingest cycle.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Fetched     int            `json:"fetched"`
	NewPosts    int            `json:"new_posts"`
	NewMatching int            `json:"new_matching"`
	WriteErrors int            `json:"write_errors,omitempty"`
	TopPosts    []storage.Post `json:"top_posts"`
}

// Subscription is one registered consumer. Events arrive on C in publish
// order until Unsubscribe closes it.
type Subscription struct {
	ID string
	C  <-chan Event
}

// Broadcaster maintains the live subscriber set. Publishing is
// fire-and-forget: each subscriber has a bounded buffer, and a full
// buffer drops that subscriber's oldest unread event rather than
// blocking the publisher.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]chan Event
	bufSize int
}

// New creates a Broadcaster with the given per-subscriber buffer size.
func New(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Broadcaster{
		subs:    make(map[string]chan Event),
		bufSize: bufSize,
	}
}

// Subscribe registers a new consumer and returns its subscription.
func (b *Broadcaster) Subscribe() Subscription {
	ch := make(chan Event, b.bufSize)
	id := uuid.New().String()

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return Subscription{ID: id, C: ch}
}

// Unsubscribe removes a consumer and closes its channel. Unknown IDs are
// ignored, so double-unsubscribe on disconnect is harmless.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every current subscriber independently. Each
// subscriber sees events in publish order; a slow subscriber loses its
// oldest unread event instead of holding up delivery to the rest.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}

		// Buffer full: evict the oldest unread event, then retry once.
		// The receiver may have drained concurrently, making either
		// select a no-op, which is fine.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
