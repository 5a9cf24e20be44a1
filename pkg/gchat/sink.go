package gchat

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"gchatlog/pkg/batching"
	"gchatlog/pkg/logevent"
	"gchatlog/pkg/msgfmt"
)

// SinkOption configures NewSink.
type SinkOption func(*sinkConfig)

type sinkConfig struct {
	threadKey string
	client    Doer
	timeout   time.Duration
	locale    language.Tag
	minLevel  zerolog.Level
	batch     batching.Options
	hooks     batching.Hooks
}

// WithThreadKey groups every message into one chat thread.
func WithThreadKey(key string) SinkOption { return func(c *sinkConfig) { c.threadKey = key } }

// WithClient sets the HTTP transport. Default: a new *http.Client owned by the sink.
func WithClient(d Doer) SinkOption { return func(c *sinkConfig) { c.client = d } }

// WithTimeout sets the timeout of the default client. Ignored with WithClient.
func WithTimeout(d time.Duration) SinkOption { return func(c *sinkConfig) { c.timeout = d } }

// WithLocale sets the number format locale. Default: host locale.
func WithLocale(tag language.Tag) SinkOption { return func(c *sinkConfig) { c.locale = tag } }

// WithMinLevel drops events below l. Default: accept every level.
func WithMinLevel(l zerolog.Level) SinkOption { return func(c *sinkConfig) { c.minLevel = l } }

// WithBatching overrides the batching policy. Default: batching.DefaultOptions().
func WithBatching(o batching.Options) SinkOption { return func(c *sinkConfig) { c.batch = o } }

// WithHooks receives delivery failures, drops and flushes.
func WithHooks(h batching.Hooks) SinkOption { return func(c *sinkConfig) { c.hooks = h } }

// Sink is the complete chat pipeline: level filter, batching queue, formatter
// and dispatcher.
type Sink struct {
	minLevel   zerolog.Level
	dispatcher *Dispatcher
	batcher    *batching.Batcher
}

// NewSink builds a sink for outputTemplate and webhooks. Configuration errors
// (empty webhook set, empty template) are returned before anything starts.
func NewSink(outputTemplate string, webhooks []string, opts ...SinkOption) (*Sink, error) {
	cfg := sinkConfig{
		locale:   language.Und,
		minLevel: zerolog.TraceLevel,
		batch:    batching.DefaultOptions(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	tpl, err := msgfmt.New(outputTemplate, msgfmt.WithLocale(cfg.locale))
	if err != nil {
		return nil, err
	}

	var dopts []DispatcherOption
	if cfg.client != nil {
		dopts = append(dopts, WithHTTPClient(cfg.client))
	}
	d, err := NewDispatcher(webhooks, cfg.threadKey, tpl, dopts...)
	if err != nil {
		return nil, err
	}
	if cfg.client == nil && cfg.timeout > 0 {
		d.client = &http.Client{Timeout: cfg.timeout}
	}

	return &Sink{
		minLevel:   cfg.minLevel,
		dispatcher: d,
		batcher:    batching.New(d, cfg.batch, cfg.hooks),
	}, nil
}

// Emit queues ev for delivery. It returns false when ev is below the minimum
// level or was dropped by the queue.
func (s *Sink) Emit(ev logevent.Event) bool {
	if ev.Level < s.minLevel {
		return false
	}
	return s.batcher.Emit(ev)
}

func (s *Sink) MinLevel() zerolog.Level { return s.minLevel }

func (s *Sink) Dispatcher() *Dispatcher { return s.dispatcher }

func (s *Sink) Stats() batching.Stats { return s.batcher.Stats() }

// Close flushes queued events and releases the dispatcher.
func (s *Sink) Close() error { return s.batcher.Close() }
