package app

import (
	"sync/atomic"

	"gchatlog/pkg/gchat"
	"gchatlog/pkg/logevent"
)

// relay forwards events to whichever chat sink is current. Reload swaps the
// sink underneath the log service and the sources.
type relay struct {
	cur atomic.Pointer[gchat.Sink]
}

func (r *relay) Emit(ev logevent.Event) bool {
	s := r.cur.Load()
	if s == nil {
		return false
	}
	return s.Emit(ev)
}

// swap installs s (nil disables chat) and returns the previous sink.
func (r *relay) swap(s *gchat.Sink) *gchat.Sink { return r.cur.Swap(s) }

func (r *relay) current() *gchat.Sink { return r.cur.Load() }
