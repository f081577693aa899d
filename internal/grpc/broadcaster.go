package grpc

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-safe-routes/internal/models"
)

// subscriberBuffer is how many snapshot events a slow subscriber may lag
// behind before events are dropped for it.
const subscriberBuffer = 16

// Broadcaster fans snapshot events out to stream subscribers. It remembers
// the latest event so a new subscriber learns the serving version at once.
type Broadcaster struct {
	subscribers map[uint64]chan *models.SnapshotEvent
	latest      *models.SnapshotEvent
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.SnapshotEvent),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan *models.SnapshotEvent) {
	id := b.nextID.Add(1)
	ch := make(chan *models.SnapshotEvent, subscriberBuffer)

	b.mu.Lock()
	if b.latest != nil {
		ch <- b.latest
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(e *models.SnapshotEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.latest != nil && e.Version < b.latest.Version {
		// A refresh that finished late must not roll subscribers back.
		return
	}
	b.latest = e

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Skip slow subscribers
		}
	}
}

// Latest returns the most recent event, or nil before the first snapshot.
func (b *Broadcaster) Latest() *models.SnapshotEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
