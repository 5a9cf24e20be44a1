package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gchatlog/internal/config"
	"gchatlog/internal/eventbus"
	"gchatlog/internal/storage"
	"gchatlog/pkg/batching"
	"gchatlog/pkg/gchat"
	"gchatlog/pkg/logevent"
	logx "gchatlog/pkg/logx"
)

type chatServer struct {
	*httptest.Server
	mu    sync.Mutex
	texts []string
}

func newChatServer(t *testing.T, status int) *chatServer {
	t.Helper()
	cs := &chatServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var p struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(b, &p)
		cs.mu.Lock()
		cs.texts = append(cs.texts, p.Text)
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *chatServer) webhook() string {
	return cs.URL + "/v1/spaces/A/messages?key=K&token=T"
}

func (cs *chatServer) received() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.texts...)
}

func writeConfig(t *testing.T, dir string, cfg config.Config) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	p := filepath.Join(dir, "gchatlog.json")
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p
}

func chatConfig(webhook string) config.ChatConfig {
	return config.ChatConfig{
		Enabled:        true,
		OutputTemplate: "{Message}",
		Webhooks:       []string{webhook},
		MinLevel:       "warn",
		Locale:         "en",
		Batch:          config.BatchConfig{Period: "20ms"},
	}
}

func TestAppRelaysStdinToChat(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	dir := t.TempDir()
	path := writeConfig(t, dir, config.Config{
		Logging: config.LoggingConfig{Level: "info"},
		Chat:    chatConfig(srv.webhook()),
		Sources: []config.SourceConfig{{Type: "stdin", Level: "error"}},
	})

	a, err := New(path, WithStdin(strings.NewReader("deploy {api} finished\nnoise\n")))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	select {
	case <-a.StdinDone():
	case <-time.After(3 * time.Second):
		t.Fatal("stdin not drained")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopInputClosed))

	got := srv.received()
	assert.Contains(t, got, "deploy {api} finished")
	assert.Contains(t, got, "noise")
	assert.Nil(t, a.Sink())
}

func TestAppJournalsUnauthorizedWebhook(t *testing.T) {
	srv := newChatServer(t, http.StatusUnauthorized)
	dir := t.TempDir()
	path := writeConfig(t, dir, config.Config{
		Chat:    chatConfig(srv.webhook()),
		Storage: &config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "journal")},
	})

	a, err := New(path)
	require.NoError(t, err)
	events, unsub := a.Bus().Subscribe(16)
	defer unsub()
	require.NoError(t, a.Start(context.Background()))

	a.Logger().Error("payment service down")

	var failed eventbus.BatchFailed
	deadline := time.After(3 * time.Second)
wait:
	for {
		select {
		case e := <-events:
			if e.Type == eventbus.TopicBatchFailed {
				failed = e.Data.(eventbus.BatchFailed)
				break wait
			}
		case <-deadline:
			t.Fatal("no failure published")
		}
	}
	assert.Equal(t, 1, failed.Failures)
	var unauth *gchat.UnauthorizedWebhookError
	assert.ErrorAs(t, failed.Err, &unauth)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSIGTERM))

	var buf strings.Builder
	require.NoError(t, PrintFailures(path, 10, &buf))
	assert.Contains(t, buf.String(), `"kind":"unauthorized"`)
	assert.Contains(t, buf.String(), "key=REDACTED")
	assert.NotContains(t, buf.String(), "token=T")
}

func TestAppReloadSwapsSink(t *testing.T) {
	first := newChatServer(t, http.StatusOK)
	second := newChatServer(t, http.StatusOK)
	dir := t.TempDir()
	oldCfg := config.Config{Chat: chatConfig(first.webhook())}
	path := writeConfig(t, dir, oldCfg)

	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopUnknown)
	}()

	before := a.Sink()
	require.NotNil(t, before)

	newCfg := oldCfg
	newCfg.Chat = chatConfig(second.webhook())
	a.apply(context.Background(), &oldCfg, &newCfg)

	after := a.Sink()
	require.NotNil(t, after)
	assert.NotSame(t, before, after)
	assert.Equal(t, []string{second.webhook()}, after.Dispatcher().Webhooks())
	// The previous sink was flushed and closed.
	assert.False(t, before.Emit(logevent.New(time.Now(), zerolog.ErrorLevel, "late", nil)))
}

func TestClassifyFailures(t *testing.T) {
	hook := "https://chat.googleapis.com/v1/spaces/A/messages?key=K&token=T"
	err := &batching.FlushError{BatchID: "b1", Size: 2, Err: &gchat.BatchError{
		Attempted: 4,
		Failures: []error{
			&gchat.UnauthorizedWebhookError{Webhook: hook},
			&gchat.DeliveryError{Webhook: hook, StatusCode: 500, Body: "oops"},
			&gchat.TransportError{Webhook: hook, Err: errors.New("refused")},
			&gchat.FormatError{Err: errors.New("bad")},
		},
	}}

	entries := failureEntries(err)
	require.Len(t, entries, 4)
	assert.Equal(t, storage.KindUnauthorized, entries[0].Kind)
	assert.Equal(t, 401, entries[0].StatusCode)
	assert.NotContains(t, entries[0].Webhook, "token=T")
	assert.Equal(t, storage.KindDelivery, entries[1].Kind)
	assert.Equal(t, "oops", entries[1].Body)
	assert.Equal(t, storage.KindTransport, entries[2].Kind)
	assert.Equal(t, storage.KindFormat, entries[3].Kind)

	other := failureEntries(errors.New("panic in batched sink: x"))
	require.Len(t, other, 1)
	assert.Equal(t, storage.KindFlush, other[0].Kind)
}

func TestMapSinkOptions(t *testing.T) {
	_, err := mapSinkOptions(config.ChatConfig{Timeout: "never"}, batching.Hooks{}, nil)
	assert.ErrorContains(t, err, "chat.timeout")

	_, err = mapSinkOptions(config.ChatConfig{Locale: "??"}, batching.Hooks{}, nil)
	assert.ErrorContains(t, err, "chat.locale")

	no := false
	bo, err := mapBatchOptions(config.BatchConfig{SizeLimit: 3, EagerFirstEvent: &no})
	require.NoError(t, err)
	assert.Equal(t, batching.Options{BatchSizeLimit: 3, Period: time.Second}, bo)
}

func TestMapStorageConfig(t *testing.T) {
	_, enabled, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "/tmp/x.db"}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	_, _, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}})
	assert.Error(t, err)
}

func TestHeartbeat(t *testing.T) {
	hb, err := startHeartbeat(nil, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, hb)

	hb, err = startHeartbeat(&config.HeartbeatConfig{Schedule: "@every 1s"}, logx.Nop())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return hb.beats.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	hb.stop(context.Background())
}

func TestAppServesHealth(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	dir := t.TempDir()
	path := writeConfig(t, dir, config.Config{
		Chat:  chatConfig(srv.webhook()),
		Admin: &config.AdminConfig{Enabled: true, Addr: "127.0.0.1:0", Token: "tok"},
	})

	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopSIGINT)
	}()

	a.Logger().Warn("disk almost full")
	assert.Eventually(t, func() bool {
		c := a.Health().Chat
		return c != nil && c.Flushed == 1
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + a.admin.Addr() + "/healthz?token=tok")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	require.NotNil(t, h.Chat)
	assert.Equal(t, 1, h.Chat.Webhooks)
	assert.EqualValues(t, 1, h.Chat.Flushed)
	assert.False(t, h.Journal)
}
