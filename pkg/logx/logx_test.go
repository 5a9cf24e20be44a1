package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gchatlog/pkg/logevent"
)

type recordingSink struct {
	mu     sync.Mutex
	events []logevent.Event
	accept bool
}

func (r *recordingSink) Emit(ev logevent.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.accept
}

func (r *recordingSink) all() []logevent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logevent.Event(nil), r.events...)
}

func TestChatWriterForwardsStructuredEvents(t *testing.T) {
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true}})
	defer svc.Close()
	sink := &recordingSink{accept: true}
	svc.SetSink(sink)

	log.With(String("comp", "deploy")).Warn("rollout {stage} failed", Int("attempt", 3), Err(assert.AnError))

	got := sink.all()
	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, zerolog.WarnLevel, ev.Level)
	assert.Equal(t, "rollout {{stage}} failed", ev.Template)
	assert.Equal(t, assert.AnError.Error(), ev.Error)
	comp, _ := ev.Property("comp")
	assert.Equal(t, "deploy", comp)
	attempt, _ := ev.Property("attempt")
	assert.Equal(t, int64(3), attempt)
	assert.False(t, ev.Time.IsZero())
}

func TestChatWriterMinLevelAndDetach(t *testing.T) {
	svc, log := New(Config{Level: "trace", Chat: ChatConfig{Enabled: true, MinLevel: "error"}})
	defer svc.Close()
	sink := &recordingSink{accept: true}
	svc.SetSink(sink)

	log.Info("ignored")
	log.Error("kept")
	require.Len(t, sink.all(), 1)

	svc.SetSink(nil)
	log.Error("detached")
	assert.Len(t, sink.all(), 1)
}

func TestChatWriterRateLimit(t *testing.T) {
	svc, log := New(Config{Chat: ChatConfig{Enabled: true, RatePerSec: 2}})
	defer svc.Close()
	sink := &recordingSink{}
	svc.SetSink(sink)

	for i := 0; i < 5; i++ {
		log.Info("burst")
	}
	assert.Len(t, sink.all(), 2)
	throttled, rejected := svc.ChatStats()
	assert.Equal(t, uint64(3), throttled)
	assert.Equal(t, uint64(2), rejected)
}

func TestApplySwapsOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info"})
	defer svc.Close()

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("hidden")
	log.Info("written", String("k", "v"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"written"`)
	assert.Contains(t, string(b), `"k":"v"`)
	assert.NotContains(t, string(b), "hidden")
}

func TestNewWriterAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("quiet-line")
	l.Warn("loud-line")
	assert.NotContains(t, buf.String(), "quiet-line")
	assert.Contains(t, buf.String(), "loud-line")

	assert.True(t, l.Enabled(LevelError))
	assert.False(t, l.Enabled(LevelDebug))
	assert.True(t, Logger{}.IsZero())
	assert.False(t, Nop().IsZero())

	assert.Equal(t, zerolog.InfoLevel, ParseLevel("Information", zerolog.NoLevel))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("bogus", zerolog.DebugLevel))
	assert.True(t, ValidLevel(""))
	assert.False(t, ValidLevel("loud"))
}
