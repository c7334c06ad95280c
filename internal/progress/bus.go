// Package progress implements the "coroutine-style progress callback"
// re-architecture guidance of spec.md §9: the Discovery and Download
// engines emit Events onto a Bus; any number of observers subscribe
// independently (the metrics package is the one in this module). An engine that
// publishes to a Bus with no subscribers never blocks, matching the
// teacher's progressReporter goroutine (downloader/main.go) which reads
// atomic counters a producer updates regardless of whether anyone is
// watching.
package progress

import "sync"

// Kind discriminates the Event union.
type Kind string

const (
	KindFacetUpdate    Kind = "facet_update"
	KindSessionUpdate  Kind = "session_update"
	KindQueueItemDone  Kind = "queue_item_done"
	KindPageDownloaded Kind = "page_downloaded"
	KindCaptchaBlocked Kind = "captcha_blocked"
)

// Event is a single observable state change. Only the fields relevant to
// Kind are populated; this mirrors spec.md §9's "narrow typed record
// holding only the fields the engine reads" guidance applied to the
// outbound side.
type Event struct {
	Kind Kind

	// facet_update / captcha_blocked
	FacetID     string
	FacetStatus string

	// session_update
	SessionName string

	// queue_item_done / page_downloaded
	ReferenceID string
	Success     bool
	Bytes       int64

	// free-form detail for logging observers
	Message string
}

// Bus is a fan-out publisher. The zero value is not usable; construct
// with New. Safe for concurrent Publish and Subscribe/Unsubscribe.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer and returns a channel of future
// events plus an unsubscribe function. The channel is buffered; a slow
// or absent observer never blocks Publish — events queued past the
// buffer are dropped for that subscriber, not for others.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans an event out to every current subscriber without
// blocking. A nil Bus is a valid no-op publisher, so engines can be
// constructed without one in tests that don't care about observability.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
