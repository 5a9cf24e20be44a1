// Package eventbus is an in-memory fan-out for chat delivery lifecycle
// signals.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a slow subscriber misses events.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topics published by the app.
const (
	TopicBatchFlushed = "chat.batch.flushed"
	TopicBatchFailed  = "chat.batch.failed"
	TopicEventDropped = "chat.event.dropped"
	TopicSinkReloaded = "chat.sink.reloaded"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// BatchFailed is the Data of TopicBatchFailed.
type BatchFailed struct {
	BatchID   string
	Size      int
	Failures  int
	Attempted int
	Err       error
}

// BatchFlushed is the Data of TopicBatchFlushed.
type BatchFlushed struct {
	BatchID string
	Size    int
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscriber) send(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.send(e) {
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.close()
	}
	return s.ch, unsub
}

// Dropped reports events lost to full subscriber buffers.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
