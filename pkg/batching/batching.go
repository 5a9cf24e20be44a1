// Package batching accumulates log events and hands them to a BatchedSink on
// a timer.
//
// Emit never blocks: when the queue is full the event is dropped. A batch that
// fails is reported through Hooks.OnError and discarded; there is no retry.
package batching

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gchatlog/pkg/logevent"
)

const (
	DefaultBatchSizeLimit = 1
	DefaultPeriod         = time.Second
	DefaultQueueLimit     = 1000
)

// BatchedSink receives batches.
type BatchedSink interface {
	EmitBatch(ctx context.Context, batch []logevent.Event) error
	// OnEmptyBatch is called on a tick with nothing queued.
	OnEmptyBatch(ctx context.Context) error
}

type Options struct {
	BatchSizeLimit int
	Period         time.Duration
	QueueLimit     int
	// EagerlyEmitFirstEvent flushes the first event ever queued without
	// waiting for the first tick.
	EagerlyEmitFirstEvent bool
}

func DefaultOptions() Options {
	return Options{
		BatchSizeLimit:        DefaultBatchSizeLimit,
		Period:                DefaultPeriod,
		QueueLimit:            DefaultQueueLimit,
		EagerlyEmitFirstEvent: true,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSizeLimit <= 0 {
		o.BatchSizeLimit = DefaultBatchSizeLimit
	}
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = DefaultQueueLimit
	}
	return o
}

// Hooks are optional callbacks. They run on the batcher goroutine (OnError,
// OnFlush) or on the caller of Emit (OnDrop) and must not block.
type Hooks struct {
	OnError func(err error)
	OnDrop  func(ev logevent.Event)
	OnFlush func(batchID string, size int)
}

// FlushError wraps a failed batch.
type FlushError struct {
	BatchID string
	Size    int
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("batch %s (%d events): %v", e.BatchID, e.Size, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

type Batcher struct {
	sink  BatchedSink
	opts  Options
	hooks Hooks

	queue chan logevent.Event
	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}

	eagerUsed atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	dropped atomic.Uint64
	flushed atomic.Uint64
	failed  atomic.Uint64
}

// New starts a batcher. Zero-valued options fall back to the defaults.
func New(sink BatchedSink, opts Options, hooks Hooks) *Batcher {
	opts = opts.withDefaults()
	b := &Batcher{
		sink:  sink,
		opts:  opts,
		hooks: hooks,
		queue: make(chan logevent.Event, opts.QueueLimit),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Batcher) Options() Options { return b.opts }

// Emit queues ev. It returns false when the event was dropped because the
// queue is full or the batcher is closed. Events emitted concurrently with
// Close may be lost.
func (b *Batcher) Emit(ev logevent.Event) bool {
	if b.closed.Load() {
		b.drop(ev)
		return false
	}
	select {
	case b.queue <- ev:
	default:
		b.drop(ev)
		return false
	}
	if b.opts.EagerlyEmitFirstEvent && b.eagerUsed.CompareAndSwap(false, true) {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
	return true
}

func (b *Batcher) drop(ev logevent.Event) {
	b.dropped.Add(1)
	if b.hooks.OnDrop != nil {
		b.hooks.OnDrop(ev)
	}
}

// Stats are best-effort counters.
type Stats struct {
	Queued  int
	Dropped uint64
	Flushed uint64
	Failed  uint64
}

func (b *Batcher) Stats() Stats {
	return Stats{
		Queued:  len(b.queue),
		Dropped: b.dropped.Load(),
		Flushed: b.flushed.Load(),
		Failed:  b.failed.Load(),
	}
}

// Close flushes everything still queued, then closes the sink if it is an
// io.Closer. It is safe to call more than once.
func (b *Batcher) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stop)
		<-b.done
		if c, ok := b.sink.(io.Closer); ok {
			b.closeErr = c.Close()
		}
	})
	return b.closeErr
}

func (b *Batcher) run() {
	defer close(b.done)
	t := time.NewTicker(b.opts.Period)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			b.drain(true)
			return
		case <-b.wake:
			b.drain(false)
		case <-t.C:
			b.drain(false)
		}
	}
}

// drain emits queued events. On a tick it keeps going while full batches are
// available; on close it empties the queue.
func (b *Batcher) drain(final bool) {
	first := true
	for {
		batch := b.take()
		if len(batch) == 0 {
			if first && !final {
				b.empty()
			}
			return
		}
		first = false
		b.emit(batch)
		if !final && len(batch) < b.opts.BatchSizeLimit {
			return
		}
	}
}

func (b *Batcher) take() []logevent.Event {
	var batch []logevent.Event
	for len(batch) < b.opts.BatchSizeLimit {
		select {
		case ev := <-b.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (b *Batcher) emit(batch []logevent.Event) {
	id := uuid.NewString()
	err := b.safeEmit(batch)
	if err != nil {
		b.failed.Add(1)
		if b.hooks.OnError != nil {
			b.hooks.OnError(&FlushError{BatchID: id, Size: len(batch), Err: err})
		}
		return
	}
	b.flushed.Add(1)
	if b.hooks.OnFlush != nil {
		b.hooks.OnFlush(id, len(batch))
	}
}

func (b *Batcher) safeEmit(batch []logevent.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in batched sink: %v", r)
		}
	}()
	return b.sink.EmitBatch(context.Background(), batch)
}

func (b *Batcher) empty() {
	defer func() { _ = recover() }()
	if err := b.sink.OnEmptyBatch(context.Background()); err != nil && b.hooks.OnError != nil {
		b.hooks.OnError(err)
	}
}
