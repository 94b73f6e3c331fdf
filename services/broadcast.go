package services

import (
	"log/slog"
	"sync"

	"cronwatch/metrics"
	"cronwatch/models"
)

// Publisher receives state-change events. Publish must not block.
type Publisher interface {
	Publish(ev models.Event)
}

// Broadcaster fans events out to in-process observers (SSE clients).
// Delivery is best effort: an observer whose buffer is full misses the event
// and is expected to re-query.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan models.Event
	nextID int
	buffer int
	closed bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{subs: make(map[int]chan models.Event), buffer: buffer}
}

// Subscribe registers an observer. The returned func unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan models.Event, func()) {
	ch := make(chan models.Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	metrics.Observers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
				metrics.Observers.Dec()
			}
			b.mu.Unlock()
		})
	}
}

func (b *Broadcaster) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
			slog.Debug("dropping event, observer buffer full", "type", ev.Type, "job_id", ev.JobID)
		}
	}
}

func (b *Broadcaster) Observers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every observer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		metrics.Observers.Dec()
	}
}
