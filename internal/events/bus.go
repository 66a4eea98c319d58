package events

import (
	"sync"
	"time"
)

// Type identifies what changed.
type Type string

const (
	CatalogUpdated Type = "catalog-updated"
	IconsReloaded  Type = "icons-reloaded"
	HealthUpdated  Type = "health-updated"
)

// Event is one notification pushed to UI observers, e.g. to invalidate
// cached icon renderings after a reconciliation.
type Event struct {
	Type         Type      `json:"type"`
	ConnectionID string    `json:"connection_id,omitempty"`
	At           time.Time `json:"at"`
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber that stopped draining its channel misses events instead of
// stalling the sync or health loops.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called when the observer goes away.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
