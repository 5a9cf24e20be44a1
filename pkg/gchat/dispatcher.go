package gchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"gchatlog/pkg/logevent"
	"gchatlog/pkg/msgfmt"
)

const (
	replyOption  = "REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD"
	contentType  = "application/json; charset=utf-8"
	maxErrorBody = 1 << 20
)

// Doer is the HTTP transport used to POST messages. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type DispatcherOption func(*Dispatcher)

// WithHTTPClient sets the transport. The dispatcher does not close a client
// it was given.
func WithHTTPClient(c Doer) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
			d.ownsClient = false
		}
	}
}

// Dispatcher delivers batches of events to a fixed set of Google Chat
// webhooks. Configuration is immutable after construction, so a Dispatcher is
// safe for concurrent use.
type Dispatcher struct {
	webhooks   []string
	threadKey  string
	formatter  msgfmt.Formatter
	client     Doer
	ownsClient bool

	closeOnce sync.Once
}

// NewDispatcher validates the webhook set and builds a dispatcher.
// Webhooks are trimmed and de-duplicated; an empty result is ErrNoWebhooks.
func NewDispatcher(webhooks []string, threadKey string, f msgfmt.Formatter, opts ...DispatcherOption) (*Dispatcher, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: formatter is required", ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(webhooks))
	uniq := make([]string, 0, len(webhooks))
	for _, w := range webhooks {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		uniq = append(uniq, w)
	}
	if len(uniq) == 0 {
		return nil, ErrNoWebhooks
	}

	d := &Dispatcher{
		webhooks:   uniq,
		threadKey:  strings.TrimSpace(threadKey),
		formatter:  f,
		client:     &http.Client{},
		ownsClient: true,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Webhooks returns a copy of the configured webhook set.
func (d *Dispatcher) Webhooks() []string { return append([]string(nil), d.webhooks...) }

func (d *Dispatcher) ThreadKey() string { return d.threadKey }

// DeliverBatch formats every event and POSTs it to every webhook. All requests
// run concurrently; DeliverBatch returns after each one has settled. If any
// failed the result is a *BatchError holding every failure.
func (d *Dispatcher) DeliverBatch(ctx context.Context, batch []logevent.Event) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		wg        sync.WaitGroup
		fmtErrs   []error
		attempted = len(batch) * len(d.webhooks)
		// One slot per request; goroutines never share a slot.
		slots = make([]error, attempted)
	)

	next := 0
	for _, ev := range batch {
		text, err := d.formatter.Format(ev)
		if err != nil {
			fmtErrs = append(fmtErrs, &FormatError{Err: err})
			next += len(d.webhooks)
			continue
		}
		body, err := Payload(text)
		if err != nil {
			fmtErrs = append(fmtErrs, &FormatError{Err: err})
			next += len(d.webhooks)
			continue
		}
		for _, webhook := range d.webhooks {
			webhook := webhook
			idx := next
			next++
			wg.Add(1)
			go func() {
				defer wg.Done()
				slots[idx] = d.notify(ctx, webhook, body)
			}()
		}
	}
	wg.Wait()

	failures := fmtErrs
	for _, err := range slots {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &BatchError{Failures: failures, Attempted: attempted}
}

func (d *Dispatcher) notify(ctx context.Context, webhook string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, BuildURL(webhook, d.threadKey), bytes.NewReader(body))
	if err != nil {
		return &TransportError{Webhook: webhook, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return &TransportError{Webhook: webhook, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	case http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return &UnauthorizedWebhookError{Webhook: webhook}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{Webhook: webhook, StatusCode: resp.StatusCode, Body: string(b)}
	}
}

// EmitBatch implements batching.BatchedSink.
func (d *Dispatcher) EmitBatch(ctx context.Context, batch []logevent.Event) error {
	return d.DeliverBatch(ctx, batch)
}

// OnEmptyBatch implements batching.BatchedSink. Nothing is sent.
func (d *Dispatcher) OnEmptyBatch(context.Context) error { return nil }

// Close releases idle connections of a client the dispatcher created itself.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		if !d.ownsClient {
			return
		}
		if c, ok := d.client.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	})
	return nil
}

// BuildURL appends the thread parameters to webhook when threadKey is set.
// The webhook itself is used as-is: Google Chat webhook URLs already carry a
// query string (key, token).
func BuildURL(webhook, threadKey string) string {
	threadKey = strings.TrimSpace(threadKey)
	if threadKey == "" {
		return webhook
	}
	return webhook + "&threadKey=" + url.QueryEscape(threadKey) + "&messageReplyOption=" + replyOption
}

type payload struct {
	Text string `json:"text"`
}

// Payload encodes the request body for one message.
func Payload(text string) ([]byte, error) {
	return json.Marshal(payload{Text: text})
}
