package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gchatlog/pkg/logevent"
)

// EventSink receives log events for chat delivery. Emit must not block and
// reports whether the event was accepted. *gchat.Sink satisfies it.
type EventSink interface {
	Emit(ev logevent.Event) bool
}

// chatWriter turns each zerolog line back into a logevent.Event.
type chatWriter struct{ svc *Service }

func (w *chatWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	sink := s.currentSink()
	if sink == nil {
		return len(p), nil
	}

	s.mu.Lock()
	lim := s.limiter
	minLvl := s.minLevel
	s.mu.Unlock()

	if level < minLvl {
		return len(p), nil
	}
	if lim != nil && !lim.Allow() {
		s.throttled.Add(1)
		return len(p), nil
	}

	ev, err := logevent.ParseJSON(p)
	if err != nil {
		ev = logevent.FromText(strings.TrimRight(string(p), "\r\n"), level, time.Now(), nil)
	}
	if !sink.Emit(ev) {
		s.rejected.Add(1)
	}
	// Never fail the other writers of the MultiLevelWriter.
	return len(p), nil
}
