package gchat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gchatlog/pkg/logevent"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

// plainFormatter renders just the event template.
type plainFormatter struct{ fail string }

func (p plainFormatter) Format(ev logevent.Event) (string, error) {
	if p.fail != "" && ev.Template == p.fail {
		return "", errors.New("render failed")
	}
	return ev.Template, nil
}

func events(msgs ...string) []logevent.Event {
	out := make([]logevent.Event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, logevent.New(time.Now(), zerolog.InfoLevel, m, nil))
	}
	return out
}

type capture struct {
	mu   sync.Mutex
	reqs []captured
}

type captured struct {
	path        string
	query       url.Values
	contentType string
	body        []byte
}

func (c *capture) add(r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.reqs = append(c.reqs, captured{path: r.URL.Path, query: r.URL.Query(), contentType: r.Header.Get("Content-Type"), body: b})
	c.mu.Unlock()
}

func (c *capture) all() []captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]captured(nil), c.reqs...)
}

func webhook(srv *httptest.Server, space string) string {
	return srv.URL + "/v1/spaces/" + space + "/messages?key=K&token=T"
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t,
		"https://x/y&threadKey=abc&messageReplyOption=REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD",
		BuildURL("https://x/y", "abc"))
	assert.Equal(t, "https://x/y", BuildURL("https://x/y", ""))
	assert.Equal(t, "https://x/y", BuildURL("https://x/y", "   "))
}

func TestPayloadHasOnlyText(t *testing.T) {
	b, err := Payload("hello")
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hello"}`, string(b))

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, map[string]any{"text": "hello"}, m)
}

func TestNewDispatcherRejectsEmptyWebhooks(t *testing.T) {
	var calls atomic.Int32
	client := doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unexpected call")
	})

	for _, hooks := range [][]string{nil, {}, {" ", ""}} {
		d, err := NewDispatcher(hooks, "", plainFormatter{}, WithHTTPClient(client))
		assert.Nil(t, d)
		assert.ErrorIs(t, err, ErrNoWebhooks)
		assert.ErrorIs(t, err, ErrConfiguration)
	}
	assert.Zero(t, calls.Load())

	_, err := NewDispatcher([]string{"https://x/y"}, "", nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewDispatcherDeduplicatesWebhooks(t *testing.T) {
	d, err := NewDispatcher([]string{"https://a/1", " https://a/1 ", "https://b/2"}, " k ", plainFormatter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a/1", "https://b/2"}, d.Webhooks())
	assert.Equal(t, "k", d.ThreadKey())
}

func TestDeliverBatchFansOutToEveryWebhook(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.add(r)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hooks := []string{webhook(srv, "A"), webhook(srv, "B")}
	d, err := NewDispatcher(hooks, "ops", plainFormatter{})
	require.NoError(t, err)
	defer d.Close()

	batch := events("one", "two", "three")
	require.NoError(t, d.DeliverBatch(context.Background(), batch))

	reqs := c.all()
	require.Len(t, reqs, len(batch)*len(hooks))

	perEvent := map[string]map[string]bool{}
	for _, r := range reqs {
		assert.Equal(t, "application/json; charset=utf-8", r.contentType)
		assert.Equal(t, "ops", r.query.Get("threadKey"))
		assert.Equal(t, "REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD", r.query.Get("messageReplyOption"))
		assert.Equal(t, "T", r.query.Get("token"))

		var p map[string]string
		require.NoError(t, json.Unmarshal(r.body, &p))
		if perEvent[p["text"]] == nil {
			perEvent[p["text"]] = map[string]bool{}
		}
		perEvent[p["text"]][r.path] = true
	}
	for _, m := range []string{"one", "two", "three"} {
		assert.Len(t, perEvent[m], 2, "event %q must reach both webhooks", m)
	}
}

func TestDeliverBatchWithoutThreadKeyUsesWebhookAsIs(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.add(r)
	}))
	defer srv.Close()

	d, err := NewDispatcher([]string{webhook(srv, "A")}, "", plainFormatter{})
	require.NoError(t, err)
	require.NoError(t, d.DeliverBatch(context.Background(), events("x")))

	reqs := c.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, url.Values{"key": {"K"}, "token": {"T"}}, reqs[0].query)
}

func TestDeliverBatchEmptyMakesNoRequests(t *testing.T) {
	var calls atomic.Int32
	client := doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unexpected call")
	})
	d, err := NewDispatcher([]string{"https://x/y"}, "k", plainFormatter{}, WithHTTPClient(client))
	require.NoError(t, err)

	assert.NoError(t, d.DeliverBatch(context.Background(), nil))
	assert.NoError(t, d.DeliverBatch(context.Background(), []logevent.Event{}))
	assert.Zero(t, calls.Load())
}

func TestDeliverBatchClassifiesResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/ok/"):
			w.WriteHeader(http.StatusOK)
		case strings.Contains(r.URL.Path, "/gone/"):
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "oops")
		}
	}))
	defer srv.Close()

	deliver := func(space string) error {
		d, err := NewDispatcher([]string{webhook(srv, space)}, "", plainFormatter{})
		require.NoError(t, err)
		return d.DeliverBatch(context.Background(), events("m"))
	}

	assert.NoError(t, deliver("ok"))

	err := deliver("gone")
	var unauth *UnauthorizedWebhookError
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, webhook(srv, "gone"), unauth.Webhook)
	assert.NotContains(t, err.Error(), "token=T")

	err = deliver("broken")
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusInternalServerError, de.StatusCode)
	assert.Equal(t, "oops", de.Body)
	assert.Equal(t, webhook(srv, "broken"), de.Webhook)
}

func TestDeliverBatchWaitsForAllAndAggregates(t *testing.T) {
	var completed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/bad/") {
			completed.Add(1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		// Successful deliveries finish well after the failures.
		time.Sleep(100 * time.Millisecond)
		completed.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hooks := []string{webhook(srv, "good1"), webhook(srv, "bad"), webhook(srv, "good2")}
	d, err := NewDispatcher(hooks, "", plainFormatter{})
	require.NoError(t, err)

	err = d.DeliverBatch(context.Background(), events("a", "b"))
	assert.Equal(t, int32(6), completed.Load(), "must return only after every request settled")

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Len(t, be.Failures, 2)
	assert.Equal(t, 6, be.Attempted)
	for _, f := range be.Failures {
		var de *DeliveryError
		require.ErrorAs(t, f, &de)
		assert.Equal(t, http.StatusBadGateway, de.StatusCode)
	}
	assert.Contains(t, be.Error(), "2 of 6 deliveries failed")
}

func TestDeliverBatchRunsRequestsConcurrently(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer srv.Close()

	d, err := NewDispatcher([]string{webhook(srv, "A"), webhook(srv, "B")}, "", plainFormatter{})
	require.NoError(t, err)
	require.NoError(t, d.DeliverBatch(context.Background(), events("1", "2")))
	assert.Equal(t, int32(4), peak.Load())
}

func TestDeliverBatchTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		return nil, &url.Error{Op: "Post", URL: r.URL.String(), Err: cause}
	})
	hook := "https://chat.example/v1/spaces/S/messages?key=K&token=SECRET"
	d, err := NewDispatcher([]string{hook}, "", plainFormatter{}, WithHTTPClient(client))
	require.NoError(t, err)

	err = d.DeliverBatch(context.Background(), events("x"))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, hook, te.Webhook)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestDeliverBatchFormatErrorSkipsOnlyThatEvent(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.add(r)
	}))
	defer srv.Close()

	d, err := NewDispatcher([]string{webhook(srv, "A"), webhook(srv, "B")}, "", plainFormatter{fail: "bad"})
	require.NoError(t, err)

	err = d.DeliverBatch(context.Background(), events("ok", "bad"))
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Len(t, c.all(), 2)
}

func TestCloseLeavesInjectedClientAlone(t *testing.T) {
	closed := false
	client := &closeTracker{onClose: func() { closed = true }}
	d, err := NewDispatcher([]string{"https://x/y"}, "", plainFormatter{}, WithHTTPClient(client))
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.False(t, closed)

	owned, err := NewDispatcher([]string{"https://x/y"}, "", plainFormatter{})
	require.NoError(t, err)
	require.NoError(t, owned.Close())
	require.NoError(t, owned.Close())
}

type closeTracker struct{ onClose func() }

func (c *closeTracker) Do(*http.Request) (*http.Response, error) { return nil, errors.New("unused") }
func (c *closeTracker) CloseIdleConnections()                    { c.onClose() }

func TestRedactWebhook(t *testing.T) {
	assert.Equal(t,
		"https://chat.googleapis.com/v1/spaces/S/messages?key=REDACTED&token=REDACTED",
		RedactWebhook("https://chat.googleapis.com/v1/spaces/S/messages?key=abc&token=def"))
	assert.Equal(t, "https://x/y", RedactWebhook("https://user:pw@x/y"))
	assert.Equal(t, "<invalid webhook>", RedactWebhook("not a url"))
}
