package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"gchatlog/internal/eventbus"
	"gchatlog/internal/storage"
	"gchatlog/pkg/batching"
	"gchatlog/pkg/gchat"
	"gchatlog/pkg/logevent"
	logx "gchatlog/pkg/logx"
)

// failureReporter is the chat sink's failure channel. It writes to the
// diagnostics logger, which never feeds the chat sink, so a broken webhook
// cannot cause a delivery loop.
type failureReporter struct {
	diag  logx.Logger
	bus   eventbus.Bus
	store storage.Store

	dropped   atomic.Uint64
	dropNotes rate.Sometimes
}

func newFailureReporter(diag logx.Logger, bus eventbus.Bus, store storage.Store) *failureReporter {
	return &failureReporter{
		diag:      diag,
		bus:       bus,
		store:     store,
		dropNotes: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

func (r *failureReporter) hooks() batching.Hooks {
	return batching.Hooks{
		OnError: r.onError,
		OnDrop:  r.onDrop,
		OnFlush: r.onFlush,
	}
}

func (r *failureReporter) onFlush(batchID string, size int) {
	r.bus.Publish(eventbus.Event{Type: eventbus.TopicBatchFlushed, Data: eventbus.BatchFlushed{BatchID: batchID, Size: size}})
}

func (r *failureReporter) onDrop(ev logevent.Event) {
	n := r.dropped.Add(1)
	r.bus.Publish(eventbus.Event{Type: eventbus.TopicEventDropped, Data: ev})
	r.dropNotes.Do(func() {
		r.diag.Warn("chat queue full; dropping events", logx.Uint64("dropped_total", n))
	})
}

func (r *failureReporter) onError(err error) {
	var (
		batchID string
		size    int
	)
	var fe *batching.FlushError
	if errors.As(err, &fe) {
		batchID, size = fe.BatchID, fe.Size
	}

	entries := failureEntries(err)
	attempted := 0
	var be *gchat.BatchError
	if errors.As(err, &be) {
		attempted = be.Attempted
	}

	r.bus.Publish(eventbus.Event{
		Type: eventbus.TopicBatchFailed,
		Data: eventbus.BatchFailed{BatchID: batchID, Size: size, Failures: len(entries), Attempted: attempted, Err: err},
	})

	for _, e := range entries {
		e.BatchID, e.Size = batchID, size
		r.diag.Warn("chat delivery failed",
			logx.String("batch", batchID),
			logx.String("kind", e.Kind),
			logx.String("webhook", e.Webhook),
			logx.Int("status", e.StatusCode),
			logx.String("err", e.Error),
		)
		if r.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if jerr := r.store.AppendFailure(ctx, e); jerr != nil {
			r.diag.Debug("failure journal append failed", logx.Err(jerr))
		}
		cancel()
	}
}

// failureEntries flattens a batch failure into one entry per cause.
func failureEntries(err error) []storage.FailureEntry {
	now := time.Now()
	var be *gchat.BatchError
	if !errors.As(err, &be) {
		return []storage.FailureEntry{{At: now, Kind: storage.KindFlush, Error: err.Error()}}
	}
	out := make([]storage.FailureEntry, 0, len(be.Failures))
	for _, f := range be.Failures {
		out = append(out, classify(now, f))
	}
	return out
}

func classify(at time.Time, err error) storage.FailureEntry {
	e := storage.FailureEntry{At: at, Error: err.Error()}
	var (
		unauth    *gchat.UnauthorizedWebhookError
		delivery  *gchat.DeliveryError
		transport *gchat.TransportError
		format    *gchat.FormatError
	)
	switch {
	case errors.As(err, &unauth):
		e.Kind = storage.KindUnauthorized
		e.Webhook = gchat.RedactWebhook(unauth.Webhook)
		e.StatusCode = 401
	case errors.As(err, &delivery):
		e.Kind = storage.KindDelivery
		e.Webhook = gchat.RedactWebhook(delivery.Webhook)
		e.StatusCode = delivery.StatusCode
		e.Body = delivery.Body
	case errors.As(err, &transport):
		e.Kind = storage.KindTransport
		e.Webhook = gchat.RedactWebhook(transport.Webhook)
	case errors.As(err, &format):
		e.Kind = storage.KindFormat
	default:
		e.Kind = storage.KindFlush
	}
	return e
}
